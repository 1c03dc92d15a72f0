package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/core/port"
	"github.com/readzone/identity-core/internal/repository"
)

// ErrForbidden indicates an admin mutation the acting user may not perform:
// insufficient role, self-modification, or a reserved role/status assignment.
// Raised before any state change; admin mutations fail closed.
var ErrForbidden = errors.New("forbidden")

// UpdateUserInput describes an admin mutation of a user's role or status.
// Nil fields are left untouched.
type UpdateUserInput struct {
	Role           *domain.UserRole
	Status         *domain.UserStatus
	SuspendedUntil *time.Time
	IPAddress      string
	UserAgent      string
}

// AdminService performs privileged user mutations. Every operation takes the
// acting user explicitly and checks capability with the role hierarchy; there
// is no ambient notion of "current admin".
type AdminService struct {
	users    port.UserRepository
	sessions *SessionService
	mfa      port.MFARepository
	audits   port.AuditRepository
	audit    *AuditRecorder
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewAdminService constructs an AdminService.
func NewAdminService(
	users port.UserRepository,
	sessions *SessionService,
	mfa port.MFARepository,
	audits port.AuditRepository,
	audit *AuditRecorder,
	events port.EventPublisher,
	logger *zap.Logger,
) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &AdminService{
		users:    users,
		sessions: sessions,
		mfa:      mfa,
		audits:   audits,
		audit:    audit,
		events:   events,
		logger:   logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AdminService) WithClock(clock func() time.Time) *AdminService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// IsAuthorized reports whether the role satisfies any of the required roles.
func IsAuthorized(role domain.UserRole, required ...domain.UserRole) bool {
	for _, req := range required {
		if domain.RoleAtLeast(role, req) {
			return true
		}
	}
	return len(required) == 0
}

// UpdateUser changes a user's role and/or status. Self-modification is
// forbidden, as are the reserved ANONYMOUS role and DELETED status (deletion
// goes through ForceDelete). Suspending a user synchronously revokes all
// their sessions. The audit entry is CRITICAL and records before/after values
// plus the acting admin.
func (s *AdminService) UpdateUser(ctx context.Context, actor domain.User, targetID string, input UpdateUserInput) (*domain.PublicProfile, error) {
	if !IsAuthorized(actor.Role, domain.RoleAdmin) {
		return nil, ErrForbidden
	}
	if actor.ID == targetID {
		return nil, ErrForbidden
	}
	if input.Role != nil {
		if *input.Role == domain.RoleAnonymous || !domain.ValidRole(*input.Role) {
			return nil, ErrForbidden
		}
	}
	if input.Status != nil {
		switch *input.Status {
		case domain.UserStatusActive, domain.UserStatusSuspended:
		default:
			return nil, ErrForbidden
		}
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	changes := map[string]any{"admin_id": actor.ID}

	if input.Role != nil && *input.Role != target.Role {
		if err := s.users.UpdateRole(ctx, targetID, *input.Role); err != nil {
			return nil, fmt.Errorf("update role: %w", err)
		}
		changes["role_before"] = string(target.Role)
		changes["role_after"] = string(*input.Role)

		s.audit.Record(ctx, AuditRecord{
			UserID:    auditUser(targetID),
			Action:    domain.AuditRoleChange,
			IPAddress: input.IPAddress,
			UserAgent: input.UserAgent,
			Metadata:  changes,
			Severity:  domain.SeverityCritical,
		})

		target.Role = *input.Role
	}

	if input.Status != nil && *input.Status != target.Status {
		if err := s.users.UpdateStatus(ctx, targetID, *input.Status, input.SuspendedUntil); err != nil {
			return nil, fmt.Errorf("update status: %w", err)
		}

		statusChanges := map[string]any{
			"admin_id":      actor.ID,
			"status_before": string(target.Status),
			"status_after":  string(*input.Status),
		}

		if *input.Status == domain.UserStatusSuspended {
			revoked, err := s.sessions.RevokeAll(ctx, targetID, "account_suspended")
			if err != nil {
				return nil, err
			}
			statusChanges["sessions_revoked"] = revoked

			s.audit.Record(ctx, AuditRecord{
				UserID:    auditUser(targetID),
				Action:    domain.AuditAccountSuspend,
				IPAddress: input.IPAddress,
				UserAgent: input.UserAgent,
				Metadata:  statusChanges,
				Severity:  domain.SeverityCritical,
			})

			s.publishSuspended(ctx, targetID, actor.ID, revoked)
		} else {
			s.audit.Record(ctx, AuditRecord{
				UserID:    auditUser(targetID),
				Action:    domain.AuditProfileUpdate,
				IPAddress: input.IPAddress,
				UserAgent: input.UserAgent,
				Metadata:  statusChanges,
				Severity:  domain.SeverityCritical,
			})
		}

		target.Status = *input.Status
		target.IsSuspended = *input.Status == domain.UserStatusSuspended
		target.SuspendedUntil = input.SuspendedUntil
	}

	profile := target.Profile()
	return &profile, nil
}

// ForceDelete irreversibly removes a user: sessions and MFA material are
// destroyed, the audit trail keeps its rows but loses the subject reference,
// and one final CRITICAL entry records the former identity in metadata.
func (s *AdminService) ForceDelete(ctx context.Context, actor domain.User, targetID, ip, userAgent string) error {
	if !IsAuthorized(actor.Role, domain.RoleAdmin) {
		return ErrForbidden
	}
	if actor.ID == targetID {
		return ErrForbidden
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if err := s.sessions.DeleteAll(ctx, targetID); err != nil {
		return err
	}

	if err := s.mfa.ReplaceBackupCodes(ctx, targetID, nil); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}
	if err := s.mfa.DeleteSettings(ctx, targetID); err != nil {
		return fmt.Errorf("delete mfa settings: %w", err)
	}

	anonymized, err := s.audits.AnonymizeUser(ctx, targetID)
	if err != nil {
		return fmt.Errorf("anonymize audit trail: %w", err)
	}

	if err := s.users.Delete(ctx, targetID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	// The final entry intentionally has no subject: the user row is gone.
	s.audit.Record(ctx, AuditRecord{
		UserID:    nil,
		Action:    domain.AuditAccountDelete,
		IPAddress: ip,
		UserAgent: userAgent,
		Metadata: map[string]any{
			"admin_id":        actor.ID,
			"deleted_user_id": targetID,
			"deleted_email":   target.Email,
			"rows_anonymized": anonymized,
		},
		Severity: domain.SeverityCritical,
	})

	s.publishDeleted(ctx, targetID, actor.ID)

	return nil
}

// ListAuditTrail returns a user's audit entries for admin review.
func (s *AdminService) ListAuditTrail(ctx context.Context, actor domain.User, userID string, limit int) ([]domain.AuditEntry, error) {
	if !IsAuthorized(actor.Role, domain.RoleAdmin) {
		return nil, ErrForbidden
	}

	entries, err := s.audits.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit trail: %w", err)
	}

	return entries, nil
}

func (s *AdminService) publishSuspended(ctx context.Context, userID, adminID string, revoked int) {
	if s.events == nil {
		return
	}
	event := domain.AccountSuspendedEvent{
		EventID:         uuid.NewString(),
		UserID:          userID,
		AdminID:         adminID,
		SuspendedAt:     s.now(),
		SessionsRevoked: revoked,
	}
	if err := s.events.PublishAccountSuspended(ctx, event); err != nil {
		s.logger.Warn("publish account suspended failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *AdminService) publishDeleted(ctx context.Context, userID, adminID string) {
	if s.events == nil {
		return
	}
	event := domain.AccountDeletedEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		AdminID:   adminID,
		DeletedAt: s.now(),
	}
	if err := s.events.PublishAccountDeleted(ctx, event); err != nil {
		s.logger.Warn("publish account deleted failed", zap.String("user_id", userID), zap.Error(err))
	}
}
