package domain

import (
	"strings"
	"time"
)

// DeviceInfo captures the coarse device classification parsed from a User-Agent.
type DeviceInfo struct {
	Browser string
	OS      string
	Device  string
}

// Session represents a persisted login session bound to a device.
type Session struct {
	ID               string
	UserID           string
	IPAddress        string
	UserAgent        string
	Device           DeviceInfo
	RememberMe       bool
	CreatedAt        time.Time
	LastActivityAt   time.Time
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	Active           bool
	RevokedAt        *time.Time
	RevokeReason     *string
}

// IsActive reports whether the session is still valid (not revoked and not
// expired at the supplied moment).
func (s Session) IsActive(at time.Time) bool {
	if !s.Active || s.RevokedAt != nil {
		return false
	}
	return s.ExpiresAt.After(at)
}

// CanRefresh reports whether the session may still mint new token pairs.
// Refresh outlives the access window: only revocation or the refresh expiry
// ends it, so a lapsed ExpiresAt does not block rotation.
func (s Session) CanRefresh(at time.Time) bool {
	if !s.Active || s.RevokedAt != nil {
		return false
	}
	return s.RefreshExpiresAt.After(at)
}

// Revoke marks the session as revoked. Returns true when the session changed
// state; a second call is a no-op.
func (s *Session) Revoke(at time.Time, reason string) bool {
	if s.RevokedAt != nil {
		return false
	}
	s.Active = false
	s.RevokedAt = &at
	s.RevokeReason = &reason
	return true
}

// SessionSummary is the listing projection exposed to users reviewing their
// devices. It never includes tokens.
type SessionSummary struct {
	ID             string     `json:"id"`
	IPAddress      string     `json:"ipAddress"`
	Browser        string     `json:"browser"`
	OS             string     `json:"os"`
	Device         string     `json:"device"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	Current        bool       `json:"current"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
}

// Summary derives the listing projection of the session.
func (s Session) Summary() SessionSummary {
	return SessionSummary{
		ID:             s.ID,
		IPAddress:      s.IPAddress,
		Browser:        s.Device.Browser,
		OS:             s.Device.OS,
		Device:         s.Device.Device,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		RevokedAt:      s.RevokedAt,
	}
}

// ParseUserAgent derives coarse device info from a raw User-Agent header.
// Deliberately simple: the session record needs a human-readable label, not a
// full UA database.
func ParseUserAgent(userAgent string) DeviceInfo {
	info := DeviceInfo{Browser: "Unknown", OS: "Unknown", Device: "Desktop"}

	switch {
	case strings.Contains(userAgent, "Edg"):
		info.Browser = "Edge"
	case strings.Contains(userAgent, "Chrome"):
		info.Browser = "Chrome"
	case strings.Contains(userAgent, "Firefox"):
		info.Browser = "Firefox"
	case strings.Contains(userAgent, "Safari"):
		info.Browser = "Safari"
	}

	switch {
	case strings.Contains(userAgent, "Windows"):
		info.OS = "Windows"
	case strings.Contains(userAgent, "iPhone"), strings.Contains(userAgent, "iPad"):
		// Before Mac: iOS agents carry "like Mac OS X".
		info.OS = "iOS"
	case strings.Contains(userAgent, "Mac"):
		info.OS = "macOS"
	case strings.Contains(userAgent, "Android"):
		info.OS = "Android"
	case strings.Contains(userAgent, "Linux"):
		info.OS = "Linux"
	}

	if strings.Contains(userAgent, "Mobile") {
		info.Device = "Mobile"
	}

	return info
}
