package domain

import (
	"strings"
	"time"
)

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
	UserStatusDeleted   UserStatus = "DELETED"
)

// UserRole enumerates the ordered role hierarchy. Comparison uses RoleRank.
type UserRole string

const (
	RoleAnonymous  UserRole = "ANONYMOUS"
	RoleUser       UserRole = "USER"
	RoleModerator  UserRole = "MODERATOR"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPERADMIN"
)

var roleRanks = map[UserRole]int{
	RoleAnonymous:  0,
	RoleUser:       1,
	RoleModerator:  2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// RoleRank returns the ordinal position of the role within the hierarchy.
// Unknown roles rank below ANONYMOUS.
func RoleRank(role UserRole) int {
	if rank, ok := roleRanks[role]; ok {
		return rank
	}
	return -1
}

// RoleAtLeast reports whether role meets or exceeds the required role.
func RoleAtLeast(role, required UserRole) bool {
	return RoleRank(role) >= RoleRank(required)
}

// ValidRole reports whether the supplied value names a known role.
func ValidRole(role UserRole) bool {
	_, ok := roleRanks[role]
	return ok
}

// User mirrors the persisted representation in the users table.
// PasswordHash is empty for OAuth-only accounts.
type User struct {
	ID              string
	Email           string
	DisplayName     string
	PasswordHash    string
	Role            UserRole
	Status          UserStatus
	EmailVerified   bool
	EmailVerifiedAt *time.Time
	MFAEnabled      bool
	IsSuspended     bool
	SuspendedUntil  *time.Time
	LastLoginAt     *time.Time
	LastLoginIP     *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanAuthenticate reports whether the account is eligible for login.
// A suspension with an elapsed SuspendedUntil is still blocking: reinstatement
// is an explicit admin action, never a side effect of the auth path.
func (u User) CanAuthenticate() bool {
	if u.Status != UserStatusActive {
		return false
	}
	return !u.IsSuspended
}

// PublicProfile is the externally visible projection of a user.
// It never carries the password hash.
type PublicProfile struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"name"`
	Role          UserRole   `json:"role"`
	EmailVerified bool       `json:"emailVerified"`
	MFAEnabled    bool       `json:"mfaEnabled"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

// Profile derives the public projection of the user.
func (u User) Profile() PublicProfile {
	return PublicProfile{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		MFAEnabled:    u.MFAEnabled,
		CreatedAt:     u.CreatedAt,
		LastLoginAt:   u.LastLoginAt,
	}
}

// NormalizeEmail lowercases and trims an email for case-insensitive matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
