package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/core/port"
	"github.com/readzone/identity-core/internal/infra/config"
	"github.com/readzone/identity-core/internal/infra/logger"
	"github.com/readzone/identity-core/internal/infra/security"
	"github.com/readzone/identity-core/internal/repository"
)

// ErrInvalidVerificationToken indicates an email or reset token that is
// malformed, expired, or of the wrong purpose.
var ErrInvalidVerificationToken = errors.New("invalid verification token")

// VerificationService drives the email verification and password reset
// flows. Both mint purpose-bound tokens; a reset token cannot confirm an
// email and vice versa.
type VerificationService struct {
	users     port.UserRepository
	sessions  *SessionService
	limiter   *Limiter
	hasher    *security.PasswordHasher
	tokens    *security.TokenIssuer
	validator *security.PasswordValidator
	email     port.EmailSender
	audit     *AuditRecorder
	cfg       config.JWTSettings
	logger    *zap.Logger
	now       func() time.Time
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(
	users port.UserRepository,
	sessions *SessionService,
	limiter *Limiter,
	hasher *security.PasswordHasher,
	tokens *security.TokenIssuer,
	validator *security.PasswordValidator,
	email port.EmailSender,
	audit *AuditRecorder,
	cfg config.JWTSettings,
	log *zap.Logger,
) *VerificationService {
	if log == nil {
		log = zap.NewNop()
	}
	service := &VerificationService{
		users:     users,
		sessions:  sessions,
		limiter:   limiter,
		hasher:    hasher,
		tokens:    tokens,
		validator: validator,
		email:     email,
		audit:     audit,
		cfg:       cfg,
		logger:    log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *VerificationService) WithClock(clock func() time.Time) *VerificationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// RequestEmailVerification mints a 24h verification token and hands it to the
// email collaborator. Delivery is fire-and-forget: a failed send is logged,
// never surfaced.
func (s *VerificationService) RequestEmailVerification(ctx context.Context, userID, ip, userAgent string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.EmailVerified {
		return nil
	}

	token, err := s.tokens.Issue(security.IssueOptions{
		Purpose: security.PurposeEmailVerification,
		UserID:  user.ID,
		Email:   user.Email,
		TTL:     s.cfg.EmailTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("issue verification token: %w", err)
	}

	if s.email != nil {
		msg := port.EmailMessage{To: user.Email, Token: token, UserID: user.ID}
		if err := s.email.SendVerificationEmail(ctx, msg); err != nil {
			s.logger.Warn("send verification email failed",
				zap.String("to", logger.MaskEmail(user.Email)),
				zap.Error(err),
			)
		}
	}

	s.audit.Record(ctx, AuditRecord{
		UserID:    auditUser(user.ID),
		Action:    domain.AuditEmailVerifyRequest,
		IPAddress: ip,
		UserAgent: userAgent,
		Severity:  domain.SeverityInfo,
	})

	return nil
}

// ConfirmEmail marks the token's subject as verified.
func (s *VerificationService) ConfirmEmail(ctx context.Context, token, ip, userAgent string) error {
	claims, err := s.tokens.Verify(token, security.PurposeEmailVerification)
	if err != nil {
		return ErrInvalidVerificationToken
	}

	now := s.now()
	if err := s.users.SetEmailVerified(ctx, claims.Subject, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidVerificationToken
		}
		return fmt.Errorf("set email verified: %w", err)
	}

	s.audit.Record(ctx, AuditRecord{
		UserID:    auditUser(claims.Subject),
		Action:    domain.AuditEmailVerify,
		IPAddress: ip,
		UserAgent: userAgent,
		Severity:  domain.SeverityInfo,
	})

	return nil
}

// RequestPasswordReset mints a 1h reset token for the account. Unknown and
// blocked emails return success with nothing sent: a caller probing for
// accounts learns nothing, and the attempt still lands in the audit trail
// with no subject.
func (s *VerificationService) RequestPasswordReset(ctx context.Context, email, ip, userAgent string) error {
	if s.limiter != nil {
		if err := s.limiter.AllowPasswordReset(ctx, ip); err != nil {
			return err
		}
	}

	normalized := domain.NormalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.auditSilentReset(ctx, ip, userAgent, normalized)
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !user.CanAuthenticate() {
		s.auditSilentReset(ctx, ip, userAgent, normalized)
		return nil
	}

	token, err := s.tokens.Issue(security.IssueOptions{
		Purpose: security.PurposePasswordReset,
		UserID:  user.ID,
		Email:   user.Email,
		TTL:     s.cfg.ResetTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}

	if s.email != nil {
		msg := port.EmailMessage{To: user.Email, Token: token, UserID: user.ID}
		if err := s.email.SendPasswordResetEmail(ctx, msg); err != nil {
			s.logger.Warn("send password reset email failed",
				zap.String("to", logger.MaskEmail(user.Email)),
				zap.Error(err),
			)
		}
	}

	s.audit.Record(ctx, AuditRecord{
		UserID:    auditUser(user.ID),
		Action:    domain.AuditPasswordResetRequest,
		IPAddress: ip,
		UserAgent: userAgent,
		Severity:  domain.SeverityInfo,
	})

	return nil
}

// ConfirmPasswordReset stores the new password and logs the account out
// everywhere.
func (s *VerificationService) ConfirmPasswordReset(ctx context.Context, token, newPassword, ip, userAgent string) error {
	claims, err := s.tokens.Verify(token, security.PurposePasswordReset)
	if err != nil {
		return ErrInvalidVerificationToken
	}

	if err := s.validator.Validate(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	if err := s.users.UpdatePassword(ctx, claims.Subject, hash, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidVerificationToken
		}
		return fmt.Errorf("update password: %w", err)
	}

	revoked, err := s.sessions.RevokeAll(ctx, claims.Subject, "password_reset")
	if err != nil {
		return err
	}

	s.audit.Record(ctx, AuditRecord{
		UserID:    auditUser(claims.Subject),
		Action:    domain.AuditPasswordReset,
		IPAddress: ip,
		UserAgent: userAgent,
		Metadata:  map[string]any{"sessions_revoked": revoked},
		Severity:  domain.SeverityWarning,
	})

	return nil
}

func (s *VerificationService) auditSilentReset(ctx context.Context, ip, userAgent, email string) {
	s.audit.Record(ctx, AuditRecord{
		UserID:    nil,
		Action:    domain.AuditPasswordResetRequest,
		IPAddress: ip,
		UserAgent: userAgent,
		Metadata:  map[string]any{"masked_email": logger.MaskEmail(email), "known_account": false},
		Severity:  domain.SeverityWarning,
	})
}
