package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/cookiejar/internal/audit/domain"
	"github.com/smallbiznis/cookiejar/internal/observability/logger"
	"github.com/smallbiznis/cookiejar/pkg/db/pagination"
	"go.uber.org/zap"
)

// audited records the wrapped admin mutation once it has succeeded.
func (s *Server) audited(action, targetType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if s.auditSvc == nil || len(c.Errors) > 0 || c.Writer.Status() >= http.StatusBadRequest {
			return
		}

		metadata := map[string]any{
			"method": c.Request.Method,
			"route":  c.FullPath(),
			"status": c.Writer.Status(),
		}
		if scope := strings.TrimSpace(c.Query("scope")); scope != "" {
			metadata["scope"] = scope
		}

		ctx := c.Request.Context()
		err := s.auditSvc.Record(ctx, auditdomain.Entry{
			Action:     action,
			TargetType: targetType,
			TargetID:   strings.TrimSpace(c.Param("id")),
			Metadata:   metadata,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("audit record failed", zap.String("action", action), zap.Error(err))
		}
	}
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Action     string `form:"action"`
		TargetType string `form:"target_type"`
		TargetID   string `form:"target_id"`
		ActorID    string `form:"actor_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		PageToken:  query.PageToken,
		PageSize:   int32(query.PageSize),
		Action:     strings.TrimSpace(query.Action),
		TargetType: strings.TrimSpace(query.TargetType),
		TargetID:   strings.TrimSpace(query.TargetID),
		ActorID:    strings.TrimSpace(query.ActorID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
