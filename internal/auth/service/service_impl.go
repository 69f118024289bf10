package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cookiejar/internal/auth/domain"
	"github.com/smallbiznis/cookiejar/internal/auth/password"
	"github.com/smallbiznis/cookiejar/internal/cache"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// Basic auth re-sends credentials on every request; argon2 on each one is
	// too slow for the admin UI.
	credentialCacheTTL = time.Minute

	minPasswordLength = 8
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	verified cache.Cache[string, int64]

	dummyOnce sync.Once
	dummyHash string
}

func New(p Params) domain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("auth.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		clock:    p.Clock,
		verified: cache.NewTTLCacheWithClock[string, int64](p.Clock.Now),
	}
}

func (s *Service) Authenticate(ctx context.Context, rawEmail, secret string) (*domain.AdminUser, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil || secret == "" {
		return nil, domain.ErrInvalidCredentials
	}

	key := credentialKey(email, secret)
	if id, ok := s.verified.Get(key); ok {
		user, err := s.repo.FindByID(ctx, id)
		if err == nil && user.IsActive && user.Email == email {
			return user, nil
		}
		s.verified.Delete(key)
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			// Keep the miss as slow as a wrong password.
			password.Verify(secret, s.dummy())
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !password.Verify(secret, user.PasswordHash) || !user.IsActive {
		return nil, domain.ErrInvalidCredentials
	}

	now := s.clock.Now().UTC()
	if password.NeedsRehash(user.PasswordHash) {
		if hashed, err := password.Hash(secret); err == nil {
			if err := s.repo.UpdateFields(ctx, user.ID, map[string]any{
				"password_hash": hashed,
				"updated_at":    now,
			}); err != nil {
				s.log.Warn("password rehash failed", zap.Int64("user_id", user.ID), zap.Error(err))
			} else {
				user.PasswordHash = hashed
			}
		}
	}
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("failed to record login", zap.Int64("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	s.verified.Set(key, user.ID, credentialCacheTTL)
	return user, nil
}

func (s *Service) CreateAdmin(ctx context.Context, req domain.CreateAdminRequest) (*domain.AdminUser, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if len(req.Password) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}
	role := req.Role
	if role == "" {
		role = domain.RoleStaff
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultDisplayName(email)
	}

	now := s.clock.Now().UTC()
	user := &domain.AdminUser{
		ID:           s.genID.Generate().Int64(),
		Email:        email,
		Name:         name,
		PasswordHash: hashed,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}
	s.log.Info("admin user created", zap.String("email", email), zap.String("role", string(role)))
	return user, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = password.Hash("cookiejar-dummy-password")
	})
	return s.dummyHash
}

func credentialKey(email, secret string) string {
	sum := sha256.Sum256([]byte(email + "\x00" + secret))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func defaultDisplayName(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0])
	}
	return email
}
