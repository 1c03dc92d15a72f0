package domain

import "time"

// UserRegisteredEvent represents the payload for identity.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// LoginSucceededEvent represents the payload for identity.login.succeeded messages.
type LoginSucceededEvent struct {
	EventID   string
	UserID    string
	SessionID string
	IPAddress string
	MFAUsed   bool
	LoggedAt  time.Time
	Metadata  map[string]any
}

// LoginFailedEvent represents the payload for identity.login.failed messages.
// Email is pre-masked by the publisher; the raw address never leaves the core.
type LoginFailedEvent struct {
	EventID     string
	MaskedEmail string
	IPAddress   string
	Reason      string
	FailedAt    time.Time
	Metadata    map[string]any
}

// SessionRevokedEvent represents the payload for identity.session.revoked messages.
type SessionRevokedEvent struct {
	EventID   string
	SessionID string
	UserID    string
	RevokedAt time.Time
	RevokedBy string
	Reason    string
	Metadata  map[string]any
}

// AccountSuspendedEvent represents the payload for identity.account.suspended messages.
type AccountSuspendedEvent struct {
	EventID         string
	UserID          string
	AdminID         string
	SuspendedAt     time.Time
	SessionsRevoked int
	Metadata        map[string]any
}

// AccountDeletedEvent represents the payload for identity.account.deleted messages.
// UserID carries the former identifier; by the time consumers see this event
// the user row is gone.
type AccountDeletedEvent struct {
	EventID   string
	UserID    string
	AdminID   string
	DeletedAt time.Time
	Metadata  map[string]any
}
