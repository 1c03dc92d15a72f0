package port

import (
	"context"
	"time"

	"github.com/readzone/identity-core/internal/core/domain"
)

// SessionRepository deals with session storage.
//
// CreateWithLimit enforces the per-user concurrent-session cap inside one
// serialized unit: it revokes the oldest active sessions until the cap allows
// the insert, then inserts. Implementations must serialize the evict+insert
// per user (the PostgreSQL backend takes a per-user advisory lock inside a
// transaction) so concurrent logins cannot overshoot the cap.
type SessionRepository interface {
	CreateWithLimit(ctx context.Context, session domain.Session, maxActive int) (evicted []string, err error)
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)
	Revoke(ctx context.Context, sessionID string, at time.Time, reason string) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time, reason string, exceptID string) (int, error)
	Touch(ctx context.Context, sessionID string, at time.Time) error
	Extend(ctx context.Context, sessionID string, expiresAt, at time.Time) error
	DeleteAllForUser(ctx context.Context, userID string) error
}
