package domain

import "time"

// MFASettings holds the TOTP secret and confirmation state for one user.
// Settings exist in a pending state between BeginEnable and ConfirmEnable;
// only confirmed settings participate in login challenges.
type MFASettings struct {
	UserID      string
	Secret      string
	Confirmed   bool
	ConfirmedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BackupCode is a single-use MFA fallback credential. Only the hash is
// persisted; the plaintext is shown to the user exactly once.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	CreatedAt time.Time
	UsedAt    *time.Time
}

// Consumed reports whether the code has already been redeemed.
func (c BackupCode) Consumed() bool {
	return c.UsedAt != nil
}
