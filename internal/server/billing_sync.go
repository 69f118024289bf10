package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingsyncdomain "github.com/smallbiznis/cookiejar/internal/billingsync/domain"
)

const (
	syncScopeAll      = "all"
	syncScopeUnsynced = "unsynced"
)

type syncSummary struct {
	Scope   string                         `json:"scope"`
	Total   int                            `json:"total"`
	Counts  map[string]int                 `json:"counts"`
	Results []billingsyncdomain.SyncResult `json:"results"`
}

// SyncBilling mirrors the catalog into the billing provider. Per-product
// failures are reported in the results, not as a request error.
func (s *Server) SyncBilling(c *gin.Context) {
	scope := strings.ToLower(strings.TrimSpace(c.DefaultQuery("scope", syncScopeUnsynced)))

	var (
		results []billingsyncdomain.SyncResult
		err     error
	)
	switch scope {
	case syncScopeAll:
		results, err = s.billingSyncSvc.SyncAllProducts(c.Request.Context())
	case syncScopeUnsynced:
		results, err = s.billingSyncSvc.SyncUnsyncedProducts(c.Request.Context())
	default:
		AbortWithError(c, newValidationError("scope", "invalid_scope", "scope must be all or unsynced"))
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	counts := map[string]int{}
	for _, result := range results {
		counts[result.Action]++
	}

	c.JSON(http.StatusOK, gin.H{"data": syncSummary{
		Scope:   scope,
		Total:   len(results),
		Counts:  counts,
		Results: results,
	}})
}
