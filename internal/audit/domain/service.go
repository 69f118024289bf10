package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/cookiejar/pkg/db/pagination"
)

// Entry describes a mutation to record. The actor and request id are taken
// from the context.
type Entry struct {
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
}

type ListAuditLogRequest struct {
	PageToken  string
	PageSize   int32
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
}

type ListAuditLogResponse struct {
	PageInfo  pagination.PageInfo `json:"page_info"`
	AuditLogs []AuditLog          `json:"audit_logs"`
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAction    = errors.New("invalid_action")
)
