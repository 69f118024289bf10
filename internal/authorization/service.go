package authorization

import "context"

// Service decides whether an admin subject holding a role may act on an object.
type Service interface {
	Authorize(ctx context.Context, subject, role, object, action string) error
}
