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
	"github.com/readzone/identity-core/internal/infra/security"
	"github.com/readzone/identity-core/internal/infra/telemetry"
	"github.com/readzone/identity-core/internal/repository"
)

var (
	// ErrMFAAlreadyEnabled indicates the user already confirmed MFA.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrNoPendingSetup indicates confirmation was attempted without a prior setup.
	ErrNoPendingSetup = errors.New("no pending mfa setup")
	// ErrMFANotEnabled indicates the operation requires confirmed MFA.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrInvalidCode indicates the supplied TOTP or backup code did not verify.
	ErrInvalidCode = errors.New("invalid mfa code")
)

// MFAEnrollment is the one-time payload returned by BeginEnable. The secret
// and plaintext backup codes are shown to the user exactly once and are never
// retrievable afterwards.
type MFAEnrollment struct {
	Secret       string
	ProvisionURI string
	BackupCodes  []string
}

// MFAService manages TOTP enrollment, challenge verification, and backup
// codes. Settings stay pending between BeginEnable and ConfirmEnable; only a
// confirmed secret participates in login challenges.
type MFAService struct {
	users   port.UserRepository
	mfa     port.MFARepository
	hasher  *security.PasswordHasher
	totp    *security.TOTPManager
	audit   *AuditRecorder
	cfg     config.MFASettings
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewMFAService constructs an MFAService.
func NewMFAService(
	users port.UserRepository,
	mfa port.MFARepository,
	hasher *security.PasswordHasher,
	totp *security.TOTPManager,
	audit *AuditRecorder,
	cfg config.MFASettings,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *MFAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &MFAService{
		users:   users,
		mfa:     mfa,
		hasher:  hasher,
		totp:    totp,
		audit:   audit,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *MFAService) WithClock(clock func() time.Time) *MFAService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// BeginEnable generates a fresh secret and backup code set in pending state.
// Re-running setup before confirmation replaces the pending secret; a user
// with confirmed MFA gets ErrMFAAlreadyEnabled.
func (s *MFAService) BeginEnable(ctx context.Context, userID string) (*MFAEnrollment, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	settings, err := s.mfa.GetSettings(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load mfa settings: %w", err)
	}
	if user.MFAEnabled || (settings != nil && settings.Confirmed) {
		return nil, ErrMFAAlreadyEnabled
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	now := s.now()
	plaintext, hashed, err := s.generateBackupCodes(userID, now)
	if err != nil {
		return nil, err
	}

	if err := s.mfa.UpsertSettings(ctx, domain.MFASettings{
		UserID:    userID,
		Secret:    secret,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("store mfa settings: %w", err)
	}
	if err := s.mfa.ReplaceBackupCodes(ctx, userID, hashed); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	return &MFAEnrollment{
		Secret:       secret,
		ProvisionURI: s.totp.ProvisionURI(secret, user.Email),
		BackupCodes:  plaintext,
	}, nil
}

// ConfirmEnable proves possession of the enrolled authenticator: one valid
// TOTP code flips the pending settings to confirmed and sets the user flag.
func (s *MFAService) ConfirmEnable(ctx context.Context, userID, code, ip, userAgent string) error {
	settings, err := s.mfa.GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoPendingSetup
		}
		return fmt.Errorf("load mfa settings: %w", err)
	}
	if settings.Confirmed {
		return ErrMFAAlreadyEnabled
	}

	ok, err := s.totp.VerifyCode(settings.Secret, code, s.now())
	if err != nil {
		return fmt.Errorf("verify totp: %w", err)
	}
	if !ok {
		return ErrInvalidCode
	}

	if err := s.mfa.ConfirmSettings(ctx, userID); err != nil {
		return fmt.Errorf("confirm mfa settings: %w", err)
	}
	if err := s.users.SetMFAEnabled(ctx, userID, true); err != nil {
		return fmt.Errorf("set mfa flag: %w", err)
	}

	s.audit.Record(ctx, AuditRecord{
		UserID:    auditUser(userID),
		Action:    domain.AuditMFAEnable,
		IPAddress: ip,
		UserAgent: userAgent,
		Severity:  domain.SeverityInfo,
	})

	return nil
}

// VerifyChallenge accepts a current TOTP code or an unused backup code.
// Backup codes are consumed in the same conditional update that checks them,
// so replaying one fails even when attempts race.
func (s *MFAService) VerifyChallenge(ctx context.Context, userID, code string) error {
	settings, err := s.mfa.GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMFANotEnabled
		}
		return fmt.Errorf("load mfa settings: %w", err)
	}
	if !settings.Confirmed {
		return ErrMFANotEnabled
	}

	ok, err := s.totp.VerifyCode(settings.Secret, code, s.now())
	if err != nil {
		return fmt.Errorf("verify totp: %w", err)
	}
	if ok {
		s.countVerification("totp", "success")
		return nil
	}

	consumed, err := s.redeemBackupCode(ctx, userID, code)
	if err != nil {
		return err
	}
	if consumed {
		s.countVerification("backup_code", "success")
		return nil
	}

	s.countVerification("totp", "failure")
	return ErrInvalidCode
}

// redeemBackupCode scans the user's unused codes for a hash match and then
// races to consume the winner. Bcrypt hashes cannot be looked up by value, so
// the scan is a comparison loop; consumption stays a single conditional write.
func (s *MFAService) redeemBackupCode(ctx context.Context, userID, code string) (bool, error) {
	normalized := security.NormalizeBackupCode(code)
	if normalized == "" {
		return false, nil
	}

	codes, err := s.mfa.ListBackupCodes(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list backup codes: %w", err)
	}

	for _, candidate := range codes {
		if candidate.Consumed() {
			continue
		}
		match, err := s.hasher.Verify(normalized, candidate.CodeHash)
		if err != nil {
			return false, fmt.Errorf("compare backup code: %w", err)
		}
		if !match {
			continue
		}

		won, err := s.mfa.ConsumeBackupCode(ctx, candidate.ID)
		if err != nil {
			return false, fmt.Errorf("consume backup code: %w", err)
		}
		return won, nil
	}

	return false, nil
}

// Disable turns MFA off after re-verifying the current password, and clears
// the secret and all backup codes.
func (s *MFAService) Disable(ctx context.Context, userID, currentPassword, ip, userAgent string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return ErrMFANotEnabled
	}

	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := s.mfa.ReplaceBackupCodes(ctx, userID, nil); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}
	if err := s.mfa.DeleteSettings(ctx, userID); err != nil {
		return fmt.Errorf("delete mfa settings: %w", err)
	}
	if err := s.users.SetMFAEnabled(ctx, userID, false); err != nil {
		return fmt.Errorf("clear mfa flag: %w", err)
	}

	s.audit.Record(ctx, AuditRecord{
		UserID:    auditUser(userID),
		Action:    domain.AuditMFADisable,
		IPAddress: ip,
		UserAgent: userAgent,
		Severity:  domain.SeverityWarning,
	})

	return nil
}

// RegenerateBackupCodes invalidates every previous backup code and issues a
// fresh set in one swap.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID, ip, userAgent string) ([]string, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled {
		return nil, ErrMFANotEnabled
	}

	plaintext, hashed, err := s.generateBackupCodes(userID, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.mfa.ReplaceBackupCodes(ctx, userID, hashed); err != nil {
		return nil, fmt.Errorf("replace backup codes: %w", err)
	}

	s.audit.Record(ctx, AuditRecord{
		UserID:    auditUser(userID),
		Action:    domain.AuditMFABackupRegenerate,
		IPAddress: ip,
		UserAgent: userAgent,
		Severity:  domain.SeverityInfo,
	})

	return plaintext, nil
}

// generateBackupCodes mints the configured number of fresh codes, returning
// the plaintext for one-time display and the hashed records for storage.
func (s *MFAService) generateBackupCodes(userID string, now time.Time) ([]string, []domain.BackupCode, error) {
	count := s.cfg.BackupCodeCount
	if count <= 0 {
		count = 10
	}

	plaintext := make([]string, 0, count)
	hashed := make([]domain.BackupCode, 0, count)
	for i := 0; i < count; i++ {
		code, err := security.GenerateBackupCode()
		if err != nil {
			return nil, nil, fmt.Errorf("generate backup code: %w", err)
		}
		hash, err := s.hasher.Hash(security.NormalizeBackupCode(code))
		if err != nil {
			return nil, nil, fmt.Errorf("hash backup code: %w", err)
		}
		plaintext = append(plaintext, code)
		hashed = append(hashed, domain.BackupCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			CodeHash:  hash,
			CreatedAt: now,
		})
	}

	return plaintext, hashed, nil
}

func (s *MFAService) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *MFAService) countVerification(method, outcome string) {
	if s.metrics != nil {
		s.metrics.MFAVerifications.WithLabelValues(method, outcome).Inc()
	}
}
