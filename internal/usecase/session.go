package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/core/port"
	"github.com/readzone/identity-core/internal/infra/config"
	"github.com/readzone/identity-core/internal/infra/telemetry"
	"github.com/readzone/identity-core/internal/repository"
)

var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInvalid indicates the session is revoked, expired, or missing.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionForbidden indicates the session is not owned by the caller.
	ErrSessionForbidden = errors.New("session not owned by user")
)

// SessionService coordinates session creation, validation, and revocation. It
// owns the per-user concurrency cap: the oldest active sessions are evicted
// before a new one is inserted, so the cap never overshoots even transiently.
type SessionService struct {
	sessions port.SessionRepository
	events   port.EventPublisher
	cfg      config.SessionSettings
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions port.SessionRepository, events port.EventPublisher, cfg config.SessionSettings, metrics *telemetry.Metrics, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &SessionService{
		sessions: sessions,
		events:   events,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) *SessionService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// CreateSessionInput carries the request context a new session is bound to.
type CreateSessionInput struct {
	UserID     string
	IPAddress  string
	UserAgent  string
	RememberMe bool
	RefreshTTL time.Duration
}

// Create inserts a new active session, evicting the user's oldest active
// sessions when the cap would otherwise be exceeded.
func (s *SessionService) Create(ctx context.Context, input CreateSessionInput) (*domain.Session, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	now := s.now()
	ttl := s.cfg.TTL
	if input.RememberMe && s.cfg.RememberTTL > 0 {
		ttl = s.cfg.RememberTTL
	}
	refreshTTL := input.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = ttl
	}

	session := domain.Session{
		ID:               uuid.NewString(),
		UserID:           input.UserID,
		IPAddress:        input.IPAddress,
		UserAgent:        input.UserAgent,
		Device:           domain.ParseUserAgent(input.UserAgent),
		RememberMe:       input.RememberMe,
		CreatedAt:        now,
		LastActivityAt:   now,
		ExpiresAt:        now.Add(ttl),
		RefreshExpiresAt: now.Add(refreshTTL),
		Active:           true,
	}

	evicted, err := s.sessions.CreateWithLimit(ctx, session, s.cfg.MaxPerUser)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	for _, evictedID := range evicted {
		if s.metrics != nil {
			s.metrics.SessionsEvicted.Inc()
		}
		s.publishRevoked(ctx, evictedID, input.UserID, now, "session_limit")
	}

	return &session, nil
}

// Validate returns the session when it is still active. Missing, revoked, and
// expired sessions all map to ErrSessionInvalid; callers treat them alike.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionInvalid
	}

	session, err := s.get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	if !session.IsActive(s.now()) {
		return nil, ErrSessionInvalid
	}

	return session, nil
}

// ValidateForRefresh returns the session when it may still rotate tokens. A
// lapsed access window is fine here; only revocation and the refresh expiry
// close the door, and both map to ErrSessionInvalid.
func (s *SessionService) ValidateForRefresh(ctx context.Context, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionInvalid
	}

	session, err := s.get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	if !session.CanRefresh(s.now()) {
		return nil, ErrSessionInvalid
	}

	return session, nil
}

// Renew moves the session's access expiry forward after a refresh rotation.
// The new window gets the configured TTL (the remember-me TTL for remember-me
// sessions) but never passes RefreshExpiresAt, which stays fixed from login.
// The session is updated in place on success.
func (s *SessionService) Renew(ctx context.Context, session *domain.Session) error {
	now := s.now()
	ttl := s.cfg.TTL
	if session.RememberMe && s.cfg.RememberTTL > 0 {
		ttl = s.cfg.RememberTTL
	}

	expiresAt := now.Add(ttl)
	if expiresAt.After(session.RefreshExpiresAt) {
		expiresAt = session.RefreshExpiresAt
	}

	if err := s.sessions.Extend(ctx, session.ID, expiresAt, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("extend session: %w", err)
	}

	session.ExpiresAt = expiresAt
	session.LastActivityAt = now
	return nil
}

// Revoke terminates the session. Revoking an already-revoked session is a
// no-op, not an error.
func (s *SessionService) Revoke(ctx context.Context, sessionID, reason string) error {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return err
	}

	if session.RevokedAt != nil {
		return nil
	}

	now := s.now()
	if err := s.sessions.Revoke(ctx, sessionID, now, reason); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.publishRevoked(ctx, sessionID, session.UserID, now, reason)
	return nil
}

// RevokeOwned revokes a session after checking it belongs to the caller.
func (s *SessionService) RevokeOwned(ctx context.Context, userID, sessionID, reason string) error {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrSessionForbidden
	}

	return s.Revoke(ctx, sessionID, reason)
}

// RevokeAll revokes every active session of the user and returns the count.
func (s *SessionService) RevokeAll(ctx context.Context, userID, reason string) (int, error) {
	return s.revokeAll(ctx, userID, reason, "")
}

// RevokeAllExcept revokes every active session of the user except the one
// named, typically the session driving a password change.
func (s *SessionService) RevokeAllExcept(ctx context.Context, userID, keepSessionID, reason string) (int, error) {
	return s.revokeAll(ctx, userID, reason, keepSessionID)
}

func (s *SessionService) revokeAll(ctx context.Context, userID, reason, exceptID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user id is required")
	}

	count, err := s.sessions.RevokeAllForUser(ctx, userID, s.now(), reason, exceptID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions for user: %w", err)
	}

	return count, nil
}

// ListActive returns summaries of the user's active sessions, newest first.
// Summaries expose device and activity data but never tokens.
func (s *SessionService) ListActive(ctx context.Context, userID, currentSessionID string) ([]domain.SessionSummary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	now := s.now()
	summaries := make([]domain.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		if !session.IsActive(now) {
			continue
		}
		summary := session.Summary()
		summary.Current = session.ID == currentSessionID
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// Touch records activity on the session. Called opportunistically by the
// transport layer, not on every request.
func (s *SessionService) Touch(ctx context.Context, sessionID string) error {
	if err := s.sessions.Touch(ctx, sessionID, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeleteAll removes the user's session rows entirely, used by force delete.
func (s *SessionService) DeleteAll(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

func (s *SessionService) get(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

func (s *SessionService) publishRevoked(ctx context.Context, sessionID, userID string, at time.Time, reason string) {
	if s.events == nil {
		return
	}
	event := domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		RevokedAt: at,
		Reason:    reason,
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("publish session revoked failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}
