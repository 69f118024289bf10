package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type availabilityRequest struct {
	ProductID   string `json:"product_id"`
	IsAvailable *bool  `json:"is_available"`
}

type bulkAvailabilityRequest struct {
	ProductIDs  []string `json:"product_ids"`
	IsAvailable *bool    `json:"is_available"`
}

// GetInventorySales lists units sold per product since the given time
// (default: the last 30 days).
func (s *Server) GetInventorySales(c *gin.Context) {
	since, err := parseOptionalTime(c.Query("since"))
	if err != nil {
		AbortWithError(c, newValidationError("since", "invalid_since", "invalid since"))
		return
	}

	resp, err := s.reportingSvc.ProductSales(c.Request.Context(), since)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsAvailable == nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.SetAvailability(c.Request.Context(), strings.TrimSpace(req.ProductID), *req.IsAvailable)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BulkSetAvailability(c *gin.Context) {
	var req bulkAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsAvailable == nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ids := make([]string, 0, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}

	resp, err := s.catalogSvc.BulkSetAvailability(c.Request.Context(), ids, *req.IsAvailable)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
