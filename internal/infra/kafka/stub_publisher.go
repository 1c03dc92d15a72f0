package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs identity.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent("identity.user.registered", event.UserID, event.RegisteredAt, event)
	return nil
}

// PublishLoginSucceeded logs identity.login.succeeded events.
func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	p.logEvent("identity.login.succeeded", event.UserID, event.LoggedAt, event)
	return nil
}

// PublishLoginFailed logs identity.login.failed events.
func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	p.logEvent("identity.login.failed", "", event.FailedAt, event)
	return nil
}

// PublishSessionRevoked logs identity.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.logEvent("identity.session.revoked", event.UserID, event.RevokedAt, event)
	return nil
}

// PublishAccountSuspended logs identity.account.suspended events.
func (p *StubPublisher) PublishAccountSuspended(_ context.Context, event domain.AccountSuspendedEvent) error {
	p.logEvent("identity.account.suspended", event.UserID, event.SuspendedAt, event)
	return nil
}

// PublishAccountDeleted logs identity.account.deleted events.
func (p *StubPublisher) PublishAccountDeleted(_ context.Context, event domain.AccountDeletedEvent) error {
	p.logEvent("identity.account.deleted", event.UserID, event.DeletedAt, event)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
