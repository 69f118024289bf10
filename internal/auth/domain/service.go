package domain

import "context"

type Service interface {
	// Authenticate checks an email and password pair against active admin users.
	Authenticate(ctx context.Context, email, password string) (*AdminUser, error)
	CreateAdmin(ctx context.Context, req CreateAdminRequest) (*AdminUser, error)
}

type CreateAdminRequest struct {
	Email    string
	Name     string
	Password string
	Role     Role
}
