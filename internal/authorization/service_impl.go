package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectProduct     = "product"
	ObjectOrder       = "order"
	ObjectCustomer    = "customer"
	ObjectReport      = "report"
	ObjectInventory   = "inventory"
	ObjectBillingSync = "billing_sync"
	ObjectDispute     = "dispute"
	ObjectUpload      = "upload"
	ObjectAudit       = "audit"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"

	ActionProductSync     = "product.sync"
	ActionOrderFulfill    = "order.fulfill"
	ActionOrderCancel     = "order.cancel"
	ActionOrderRefund     = "order.refund"
	ActionBillingSyncRun  = "billing_sync.run"
	ActionDisputeEvidence = "dispute.evidence"
	ActionInventoryUpdate = "inventory.update"
	ActionUploadImage     = "upload.image"
	ActionReceiptDownload = "order.receipt"
)

const (
	RoleOwner = "role:owner"
	RoleStaff = "role:staff"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, subject, role, object, action string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrInvalidActor
	}
	roleName, err := roleFor(role)
	if err != nil {
		return err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("role", roleName),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func roleFor(role string) (string, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case "owner":
		return RoleOwner, nil
	case "staff":
		return RoleStaff, nil
	default:
		return "", ErrInvalidRole
	}
}

// ensureGrouping keeps exactly one role link per subject, so a role change in
// admin_users takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleOwner, "*", "*"},

		// Staff run the shop floor but cannot move money or touch the catalog
		// sync.
		{RoleStaff, ObjectProduct, ActionView},
		{RoleStaff, ObjectProduct, ActionUpdate},
		{RoleStaff, ObjectOrder, ActionView},
		{RoleStaff, ObjectOrder, ActionOrderFulfill},
		{RoleStaff, ObjectOrder, ActionReceiptDownload},
		{RoleStaff, ObjectCustomer, ActionView},
		{RoleStaff, ObjectInventory, ActionView},
		{RoleStaff, ObjectInventory, ActionInventoryUpdate},
		{RoleStaff, ObjectReport, ActionView},
		{RoleStaff, ObjectUpload, ActionUploadImage},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
