package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest defines the payload for account creation.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"name" binding:"required"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"rememberMe"`
}

// MFAChallengeRequest completes a login that was deferred pending a TOTP or
// backup code.
type MFAChallengeRequest struct {
	UserID     string `json:"userId" binding:"required"`
	Code       string `json:"code" binding:"required"`
	RememberMe bool   `json:"rememberMe"`
}

// RefreshRequest carries the refresh token to exchange.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// ChangePasswordRequest defines the payload for an authenticated password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// TokenPairResponse carries a freshly issued access/refresh pair.
type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResponse is returned by login and MFA verification. When MFARequired is
// set only UserID is populated and the client must call the MFA endpoint.
type LoginResponse struct {
	MFARequired bool                  `json:"mfaRequired"`
	UserID      string                `json:"userId,omitempty"`
	Tokens      *TokenPairResponse    `json:"tokens,omitempty"`
	User        *domain.PublicProfile `json:"user,omitempty"`
	SessionID   string                `json:"sessionId,omitempty"`
}

// MFAEnrollmentResponse carries the provisioning material for a pending setup.
// The backup codes are shown exactly once.
type MFAEnrollmentResponse struct {
	Secret       string   `json:"secret"`
	ProvisionURI string   `json:"provisionUri"`
	BackupCodes  []string `json:"backupCodes"`
}

// MFAConfirmRequest confirms a pending enrollment with a TOTP code.
type MFAConfirmRequest struct {
	Code string `json:"code" binding:"required"`
}

// MFADisableRequest requires password re-confirmation before disabling.
type MFADisableRequest struct {
	Password string `json:"password" binding:"required"`
}

// BackupCodesResponse carries a freshly regenerated backup code set.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backupCodes"`
}

// SessionListResponse lists the caller's active sessions.
type SessionListResponse struct {
	Sessions []domain.SessionSummary `json:"sessions"`
}

// EmailConfirmRequest redeems an email verification token.
type EmailConfirmRequest struct {
	Token string `json:"token" binding:"required"`
}

// PasswordForgotRequest initiates a password reset for the given email.
type PasswordForgotRequest struct {
	Email string `json:"email" binding:"required"`
}

// PasswordResetRequest redeems a reset token and sets a new password.
type PasswordResetRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// AdminUpdateUserRequest patches a user's role and/or status.
type AdminUpdateUserRequest struct {
	Role           *string    `json:"role"`
	Status         *string    `json:"status"`
	SuspendedUntil *time.Time `json:"suspendedUntil"`
}

// AuditEntryView is the API projection of an audit trail entry.
type AuditEntryView struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"userId,omitempty"`
	Action    string         `json:"action"`
	IPAddress string         `json:"ipAddress"`
	UserAgent string         `json:"userAgent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Severity  string         `json:"severity"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditTrailResponse lists audit entries, newest first.
type AuditTrailResponse struct {
	Entries []AuditEntryView `json:"entries"`
}

func newAuditEntryView(e domain.AuditEntry) AuditEntryView {
	return AuditEntryView{
		ID:        e.ID,
		UserID:    e.UserID,
		Action:    string(e.Action),
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		Metadata:  e.Metadata,
		Severity:  string(e.Severity),
		CreatedAt: e.CreatedAt,
	}
}

// HealthResponse reports service status and start time.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
