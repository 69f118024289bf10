package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxWebhookBytes matches the provider's documented payload ceiling.
const maxWebhookBytes = 64 << 10

func (s *Server) HandleBillingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes+1))
	if err != nil || len(payload) > maxWebhookBytes {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.reconcileSvc.Ingest(c.Request.Context(), payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("billing_event_outcome", string(outcome))

	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}
