package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	mediadomain "github.com/smallbiznis/cookiejar/internal/media/domain"
)

// multipartOverhead leaves room for boundaries and part headers.
const multipartOverhead = 64 << 10

func (s *Server) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, mediadomain.MaxUploadBytes+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			AbortWithError(c, mediadomain.ErrFileTooLarge)
			return
		}
		AbortWithError(c, newValidationError("file", "invalid_file", "file is required"))
		return
	}
	if header.Size > mediadomain.MaxUploadBytes {
		AbortWithError(c, mediadomain.ErrFileTooLarge)
		return
	}

	file, err := header.Open()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, mediadomain.MaxUploadBytes+1))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.mediaSvc.UploadProductImage(c.Request.Context(), mediadomain.UploadRequest{
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
