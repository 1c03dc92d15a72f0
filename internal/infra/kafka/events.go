package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/core/port"
	"github.com/readzone/identity-core/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
	prefix   string
}

// NewEventPublisher constructs a Kafka-backed security event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, topicPrefix string, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topicPrefix == "" {
		topicPrefix = "identity"
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, prefix: topicPrefix, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(_ context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	p.producer.Send(fmt.Sprintf("%s.%s", p.prefix, eventType), userID, bytes)
	return nil
}

// PublishUserRegistered emits identity.user.registered.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	return p.publish(ctx, event.EventID, "user.registered", event.UserID, event.RegisteredAt, event)
}

// PublishLoginSucceeded emits identity.login.succeeded.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	return p.publish(ctx, event.EventID, "login.succeeded", event.UserID, event.LoggedAt, event)
}

// PublishLoginFailed emits identity.login.failed. The payload carries only a
// masked email.
func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error {
	return p.publish(ctx, event.EventID, "login.failed", "", event.FailedAt, event)
}

// PublishSessionRevoked emits identity.session.revoked.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	return p.publish(ctx, event.EventID, "session.revoked", event.UserID, event.RevokedAt, event)
}

// PublishAccountSuspended emits identity.account.suspended.
func (p *EventPublisher) PublishAccountSuspended(ctx context.Context, event domain.AccountSuspendedEvent) error {
	return p.publish(ctx, event.EventID, "account.suspended", event.UserID, event.SuspendedAt, event)
}

// PublishAccountDeleted emits identity.account.deleted.
func (p *EventPublisher) PublishAccountDeleted(ctx context.Context, event domain.AccountDeletedEvent) error {
	return p.publish(ctx, event.EventID, "account.deleted", event.UserID, event.DeletedAt, event)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
