package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/cookiejar/internal/audit/domain"
	"github.com/smallbiznis/cookiejar/internal/audit/repository"
	"github.com/smallbiznis/cookiejar/internal/clock"
	obscontext "github.com/smallbiznis/cookiejar/internal/observability/context"
	"github.com/smallbiznis/cookiejar/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) auditdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	return NewService(Params{
		DB:    dbtest.Open(t),
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestRecordResolvesActorFromContext(t *testing.T) {
	svc := newTestService(t)
	ctx := obscontext.WithRequestID(obscontext.WithAdmin(context.Background(), "42"), "req-9")

	require.NoError(t, svc.Record(ctx, auditdomain.Entry{
		Action:     "order.refund",
		TargetType: "order",
		TargetID:   " 1001 ",
		Metadata:   map[string]any{"status": 200, "": "dropped"},
		IPAddress:  "10.0.0.1",
	}))
	require.NoError(t, svc.Record(context.Background(), auditdomain.Entry{Action: "billing_sync.run"}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)

	system := resp.AuditLogs[0]
	assert.Equal(t, "billing_sync.run", system.Action)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), system.ActorType)
	assert.Equal(t, "unknown", system.TargetType)
	assert.Nil(t, system.ActorID)

	refund := resp.AuditLogs[1]
	assert.Equal(t, string(auditdomain.ActorTypeAdmin), refund.ActorType)
	require.NotNil(t, refund.ActorID)
	assert.Equal(t, "42", *refund.ActorID)
	require.NotNil(t, refund.TargetID)
	assert.Equal(t, "1001", *refund.TargetID)
	assert.Equal(t, "req-9", refund.Metadata["request_id"])
	assert.NotContains(t, refund.Metadata, "")
	assert.Nil(t, refund.UserAgent)
}

func TestRecordRequiresAction(t *testing.T) {
	svc := newTestService(t)
	err := svc.Record(context.Background(), auditdomain.Entry{Action: "  "})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPagesAndFilters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(ctx, auditdomain.Entry{Action: "order.ship", TargetType: "order"}))
	}
	require.NoError(t, svc.Record(ctx, auditdomain.Entry{Action: "product.update", TargetType: "product"}))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{PageSize: 2, TargetType: "order"})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.PageInfo.HasMore)
	require.NotEmpty(t, first.PageInfo.NextPageToken)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{PageSize: 2, TargetType: "order", PageToken: first.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.PageInfo.HasMore)
	assert.Less(t, second.AuditLogs[0].ID, first.AuditLogs[1].ID)

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{PageToken: "not-base64!"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
