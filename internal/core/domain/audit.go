package domain

import "time"

// AuditAction enumerates the closed set of security-relevant actions.
type AuditAction string

const (
	AuditLogin                AuditAction = "LOGIN"
	AuditLogout               AuditAction = "LOGOUT"
	AuditLoginFailed          AuditAction = "LOGIN_FAILED"
	AuditPasswordChange       AuditAction = "PASSWORD_CHANGE"
	AuditPasswordReset        AuditAction = "PASSWORD_RESET"
	AuditPasswordResetRequest AuditAction = "PASSWORD_RESET_REQUEST"
	AuditMFAEnable            AuditAction = "MFA_ENABLE"
	AuditMFADisable           AuditAction = "MFA_DISABLE"
	AuditMFABackupRegenerate  AuditAction = "MFA_BACKUP_REGENERATE"
	AuditRoleChange           AuditAction = "ROLE_CHANGE"
	AuditAccountSuspend       AuditAction = "ACCOUNT_SUSPEND"
	AuditAccountDelete        AuditAction = "ACCOUNT_DELETE"
	AuditOAuthConnect         AuditAction = "OAUTH_CONNECT"
	AuditOAuthDisconnect      AuditAction = "OAUTH_DISCONNECT"
	AuditEmailVerify          AuditAction = "EMAIL_VERIFY"
	AuditEmailVerifyRequest   AuditAction = "EMAIL_VERIFY_REQUEST"
	AuditProfileUpdate        AuditAction = "PROFILE_UPDATE"
	AuditReviewReport         AuditAction = "REVIEW_REPORT"
)

// AuditSeverity grades the significance of an audit entry.
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "INFO"
	SeverityWarning  AuditSeverity = "WARNING"
	SeverityCritical AuditSeverity = "CRITICAL"
)

// AuditEntry is an append-only record of a security-relevant action.
// UserID is nil either when the subject could not be resolved (failed login
// for an unknown email) or after the subject user was permanently deleted;
// the row itself is never removed.
type AuditEntry struct {
	ID        string
	UserID    *string
	Action    AuditAction
	IPAddress string
	UserAgent string
	Metadata  map[string]any
	Severity  AuditSeverity
	CreatedAt time.Time
}
