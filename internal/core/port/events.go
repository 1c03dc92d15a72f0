package port

import (
	"context"

	"github.com/readzone/identity-core/internal/core/domain"
)

// EventPublisher publishes security events to the message bus. Publishing is
// best-effort: callers treat failures the same way as audit-write failures.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error
	PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishAccountSuspended(ctx context.Context, event domain.AccountSuspendedEvent) error
	PublishAccountDeleted(ctx context.Context, event domain.AccountDeletedEvent) error
}
