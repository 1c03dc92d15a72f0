package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/core/port"
	"github.com/readzone/identity-core/internal/repository"
)

// In-memory fakes implementing the core ports. The session fake serializes
// the evict+insert under its mutex and the MFA fake consumes backup codes
// with a conditional update, matching the concurrency contracts the real
// PostgreSQL backends provide.

type fakeUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{users: make(map[string]*domain.User)}
}

func (f *fakeUserRepository) Create(_ context.Context, user domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return repository.ErrConflict
		}
	}
	copied := user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	normalized := domain.NormalizeEmail(email)
	for _, user := range f.users {
		if user.Email == normalized {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepository) UpdatePassword(_ context.Context, id, passwordHash string, changedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = changedAt
	return nil
}

func (f *fakeUserRepository) UpdateRole(_ context.Context, id string, role domain.UserRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.Role = role
	return nil
}

func (f *fakeUserRepository) UpdateStatus(_ context.Context, id string, status domain.UserStatus, suspendedUntil *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.Status = status
	user.IsSuspended = status == domain.UserStatusSuspended
	user.SuspendedUntil = suspendedUntil
	return nil
}

func (f *fakeUserRepository) SetMFAEnabled(_ context.Context, id string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.MFAEnabled = enabled
	return nil
}

func (f *fakeUserRepository) SetEmailVerified(_ context.Context, id string, verifiedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailVerified = true
	user.EmailVerifiedAt = &verifiedAt
	return nil
}

func (f *fakeUserRepository) RecordLogin(_ context.Context, id string, at time.Time, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LastLoginAt = &at
	user.LastLoginIP = &ip
	return nil
}

func (f *fakeUserRepository) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

var _ port.UserRepository = (*fakeUserRepository)(nil)

type fakeSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	order    []string
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{sessions: make(map[string]*domain.Session)}
}

func (f *fakeSessionRepository) CreateWithLimit(_ context.Context, session domain.Session, maxActive int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var evicted []string
	if maxActive > 0 {
		var active []*domain.Session
		for _, id := range f.order {
			s, ok := f.sessions[id]
			if ok && s.UserID == session.UserID && s.IsActive(session.CreatedAt) {
				active = append(active, s)
			}
		}
		excess := len(active) - maxActive + 1
		for i := 0; i < excess; i++ {
			active[i].Revoke(session.CreatedAt, "session_limit")
			evicted = append(evicted, active[i].ID)
		}
	}

	copied := session
	f.sessions[session.ID] = &copied
	f.order = append(f.order, session.ID)
	return evicted, nil
}

func (f *fakeSessionRepository) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionRepository) ListByUser(_ context.Context, userID string) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sessions []domain.Session
	// Newest first, as the PostgreSQL backend orders by created_at DESC.
	for i := len(f.order) - 1; i >= 0; i-- {
		session, ok := f.sessions[f.order[i]]
		if ok && session.UserID == userID {
			sessions = append(sessions, *session)
		}
	}
	return sessions, nil
}

func (f *fakeSessionRepository) Revoke(_ context.Context, sessionID string, at time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.Revoke(at, reason)
	return nil
}

func (f *fakeSessionRepository) RevokeAllForUser(_ context.Context, userID string, at time.Time, reason string, exceptID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, session := range f.sessions {
		if session.UserID != userID || session.ID == exceptID {
			continue
		}
		if session.Revoke(at, reason) {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionRepository) Touch(_ context.Context, sessionID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.LastActivityAt = at
	return nil
}

func (f *fakeSessionRepository) Extend(_ context.Context, sessionID string, expiresAt, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	session.ExpiresAt = expiresAt
	session.LastActivityAt = at
	return nil
}

func (f *fakeSessionRepository) DeleteAllForUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, session := range f.sessions {
		if session.UserID == userID {
			delete(f.sessions, id)
		}
	}
	return nil
}

func (f *fakeSessionRepository) activeCount(userID string, at time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, session := range f.sessions {
		if session.UserID == userID && session.IsActive(at) {
			count++
		}
	}
	return count
}

var _ port.SessionRepository = (*fakeSessionRepository)(nil)

type fakeMFARepository struct {
	mu       sync.Mutex
	settings map[string]*domain.MFASettings
	codes    map[string][]*domain.BackupCode
}

func newFakeMFARepository() *fakeMFARepository {
	return &fakeMFARepository{
		settings: make(map[string]*domain.MFASettings),
		codes:    make(map[string][]*domain.BackupCode),
	}
}

func (f *fakeMFARepository) UpsertSettings(_ context.Context, settings domain.MFASettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := settings
	f.settings[settings.UserID] = &copied
	return nil
}

func (f *fakeMFARepository) GetSettings(_ context.Context, userID string) (*domain.MFASettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	settings, ok := f.settings[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *settings
	return &copied, nil
}

func (f *fakeMFARepository) ConfirmSettings(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	settings, ok := f.settings[userID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	settings.Confirmed = true
	settings.ConfirmedAt = &now
	return nil
}

func (f *fakeMFARepository) DeleteSettings(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.settings, userID)
	return nil
}

func (f *fakeMFARepository) ReplaceBackupCodes(_ context.Context, userID string, codes []domain.BackupCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	replacement := make([]*domain.BackupCode, 0, len(codes))
	for _, code := range codes {
		copied := code
		replacement = append(replacement, &copied)
	}
	f.codes[userID] = replacement
	return nil
}

func (f *fakeMFARepository) ListBackupCodes(_ context.Context, userID string) ([]domain.BackupCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := make([]domain.BackupCode, 0, len(f.codes[userID]))
	for _, code := range f.codes[userID] {
		codes = append(codes, *code)
	}
	return codes, nil
}

func (f *fakeMFARepository) ConsumeBackupCode(_ context.Context, codeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, codes := range f.codes {
		for _, code := range codes {
			if code.ID == codeID {
				if code.UsedAt != nil {
					return false, nil
				}
				now := time.Now().UTC()
				code.UsedAt = &now
				return true, nil
			}
		}
	}
	return false, nil
}

var _ port.MFARepository = (*fakeMFARepository)(nil)

type fakeAuditRepository struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	failErr error
}

func newFakeAuditRepository() *fakeAuditRepository {
	return &fakeAuditRepository{}
}

func (f *fakeAuditRepository) Append(_ context.Context, entry domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepository) ListByUser(_ context.Context, userID string, limit int) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []domain.AuditEntry
	for i := len(f.entries) - 1; i >= 0; i-- {
		entry := f.entries[i]
		if entry.UserID != nil && *entry.UserID == userID {
			entries = append(entries, entry)
			if limit > 0 && len(entries) == limit {
				break
			}
		}
	}
	return entries, nil
}

func (f *fakeAuditRepository) AnonymizeUser(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for i := range f.entries {
		if f.entries[i].UserID != nil && *f.entries[i].UserID == userID {
			f.entries[i].UserID = nil
			count++
		}
	}
	return count, nil
}

func (f *fakeAuditRepository) byAction(action domain.AuditAction) []domain.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []domain.AuditEntry
	for _, entry := range f.entries {
		if entry.Action == action {
			matched = append(matched, entry)
		}
	}
	return matched
}

var _ port.AuditRepository = (*fakeAuditRepository)(nil)

type rateLimitWindow struct {
	count     int64
	expiresAt time.Time
}

type fakeRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*rateLimitWindow
	now     func() time.Time
}

func newFakeRateLimitStore() *fakeRateLimitStore {
	return &fakeRateLimitStore{
		windows: make(map[string]*rateLimitWindow),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (f *fakeRateLimitStore) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	existing, ok := f.windows[key]
	if !ok || !existing.expiresAt.After(now) {
		existing = &rateLimitWindow{expiresAt: now.Add(window)}
		f.windows[key] = existing
	}
	existing.count++
	return existing.count, existing.expiresAt.Sub(now), nil
}

func (f *fakeRateLimitStore) Reset(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.windows, key)
	return nil
}

var _ port.RateLimitStore = (*fakeRateLimitStore)(nil)

type fakeEventPublisher struct {
	mu         sync.Mutex
	registered []domain.UserRegisteredEvent
	succeeded  []domain.LoginSucceededEvent
	failed     []domain.LoginFailedEvent
	revoked    []domain.SessionRevokedEvent
	suspended  []domain.AccountSuspendedEvent
	deleted    []domain.AccountDeletedEvent
}

func newFakeEventPublisher() *fakeEventPublisher {
	return &fakeEventPublisher{}
}

func (f *fakeEventPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, event)
	return nil
}

func (f *fakeEventPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.succeeded = append(f.succeeded, event)
	return nil
}

func (f *fakeEventPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, event)
	return nil
}

func (f *fakeEventPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, event)
	return nil
}

func (f *fakeEventPublisher) PublishAccountSuspended(_ context.Context, event domain.AccountSuspendedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspended = append(f.suspended, event)
	return nil
}

func (f *fakeEventPublisher) PublishAccountDeleted(_ context.Context, event domain.AccountDeletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, event)
	return nil
}

var _ port.EventPublisher = (*fakeEventPublisher)(nil)

type fakeEmailSender struct {
	mu            sync.Mutex
	verifications []port.EmailMessage
	resets        []port.EmailMessage
}

func newFakeEmailSender() *fakeEmailSender {
	return &fakeEmailSender{}
}

func (f *fakeEmailSender) SendVerificationEmail(_ context.Context, msg port.EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifications = append(f.verifications, msg)
	return nil
}

func (f *fakeEmailSender) SendPasswordResetEmail(_ context.Context, msg port.EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, msg)
	return nil
}

var _ port.EmailSender = (*fakeEmailSender)(nil)
