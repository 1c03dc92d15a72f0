package port

import (
	"context"
	"time"

	"github.com/readzone/identity-core/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
// Email lookups are case-folded by the implementation.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	UpdateRole(ctx context.Context, id string, role domain.UserRole) error
	UpdateStatus(ctx context.Context, id string, status domain.UserStatus, suspendedUntil *time.Time) error
	SetMFAEnabled(ctx context.Context, id string, enabled bool) error
	SetEmailVerified(ctx context.Context, id string, verifiedAt time.Time) error
	RecordLogin(ctx context.Context, id string, at time.Time, ip string) error
	Delete(ctx context.Context, id string) error
}
