package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/readzone/identity-core/internal/core/domain"
	"github.com/readzone/identity-core/internal/infra/config"
	"github.com/readzone/identity-core/internal/infra/security"
	"github.com/readzone/identity-core/internal/infra/telemetry"
)

const testPassword = "Vermillion-Harbor-42!"

var testBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// testClock is an adjustable clock shared by every service in the harness.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(at time.Time) *testClock {
	return &testClock{t: at}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var (
	testHashOnce sync.Once
	testHash     string
	testHashErr  error
)

// hashedTestPassword computes the bcrypt hash of testPassword once; every
// harness user shares the same password so repeated hashing is wasted time.
func hashedTestPassword(t *testing.T, hasher *security.PasswordHasher) string {
	t.Helper()
	testHashOnce.Do(func() {
		testHash, testHashErr = hasher.Hash(testPassword)
	})
	if testHashErr != nil {
		t.Fatalf("hash test password: %v", testHashErr)
	}
	return testHash
}

type testEnv struct {
	users    *fakeUserRepository
	sessions *fakeSessionRepository
	mfaRepo  *fakeMFARepository
	audits   *fakeAuditRepository
	store    *fakeRateLimitStore
	events   *fakeEventPublisher
	email    *fakeEmailSender

	hasher *security.PasswordHasher
	tokens *security.TokenIssuer
	totp   *security.TOTPManager
	clock  *testClock
	cfg    *config.AppConfig

	limiter      *Limiter
	sessionSvc   *SessionService
	mfaSvc       *MFAService
	auth         *AuthService
	admin        *AdminService
	verification *VerificationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.AppConfig{
		JWT: config.JWTSettings{
			Secret:             "unit-test-secret-at-least-32-characters",
			Issuer:             "identity-core",
			Audience:           "readzone",
			AccessTokenTTL:     15 * time.Minute,
			RefreshTokenTTL:    7 * 24 * time.Hour,
			RefreshRememberTTL: 30 * 24 * time.Hour,
			EmailTokenTTL:      24 * time.Hour,
			ResetTokenTTL:      time.Hour,
		},
		Session: config.SessionSettings{
			MaxPerUser:  10,
			TTL:         24 * time.Hour,
			RememberTTL: 30 * 24 * time.Hour,
		},
		RateLimit: config.RateLimitSettings{
			LoginMaxAttempts:         5,
			LoginWindow:              15 * time.Minute,
			RegisterMaxAttempts:      3,
			RegisterWindow:           time.Hour,
			PasswordResetMaxAttempts: 3,
			PasswordResetWindow:      time.Hour,
			AnonymousMaxRequests:     100,
			AnonymousWindow:          time.Minute,
			AuthenticatedMaxRequests: 1000,
			AuthenticatedWindow:      time.Minute,
		},
		MFA: config.MFASettings{
			Issuer:          "ReadZone",
			BackupCodeCount: 10,
			TOTPDigits:      6,
			TOTPPeriodSec:   30,
			TOTPSkew:        1,
		},
	}

	clock := newTestClock(testBase)

	users := newFakeUserRepository()
	sessions := newFakeSessionRepository()
	mfaRepo := newFakeMFARepository()
	audits := newFakeAuditRepository()
	store := newFakeRateLimitStore()
	store.now = clock.Now
	events := newFakeEventPublisher()
	email := newFakeEmailSender()

	hasher := security.NewPasswordHasher(security.MinBcryptCost)
	tokens, err := security.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		t.Fatalf("new token issuer: %v", err)
	}
	tokens.WithClock(clock.Now)

	totp := security.NewTOTPManager(security.TOTPConfig{
		Issuer: cfg.MFA.Issuer,
		Digits: cfg.MFA.TOTPDigits,
		Period: cfg.MFA.TOTPPeriodSec,
		Skew:   cfg.MFA.TOTPSkew,
	})

	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	validator := security.DefaultPasswordValidator()

	auditRec := NewAuditRecorder(audits, metrics, nil).WithClock(clock.Now)
	limiter := NewLimiter(store, cfg.RateLimit, metrics, nil)
	sessionSvc := NewSessionService(sessions, events, cfg.Session, metrics, nil).WithClock(clock.Now)
	mfaSvc := NewMFAService(users, mfaRepo, hasher, totp, auditRec, cfg.MFA, metrics, nil).WithClock(clock.Now)
	auth := NewAuthService(cfg, users, sessionSvc, mfaSvc, limiter, hasher, tokens, validator, auditRec, events, metrics, nil).WithClock(clock.Now)
	admin := NewAdminService(users, sessionSvc, mfaRepo, audits, auditRec, events, nil).WithClock(clock.Now)
	verification := NewVerificationService(users, sessionSvc, limiter, hasher, tokens, validator, email, auditRec, cfg.JWT, nil).WithClock(clock.Now)

	return &testEnv{
		users:        users,
		sessions:     sessions,
		mfaRepo:      mfaRepo,
		audits:       audits,
		store:        store,
		events:       events,
		email:        email,
		hasher:       hasher,
		tokens:       tokens,
		totp:         totp,
		clock:        clock,
		cfg:          cfg,
		limiter:      limiter,
		sessionSvc:   sessionSvc,
		mfaSvc:       mfaSvc,
		auth:         auth,
		admin:        admin,
		verification: verification,
	}
}

// createUser seeds an ACTIVE user with testPassword, bypassing the register
// rate limit and validation that Register would apply.
func (e *testEnv) createUser(t *testing.T, emailAddr string) *domain.User {
	t.Helper()
	now := e.clock.Now()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        domain.NormalizeEmail(emailAddr),
		DisplayName:  "Test Reader",
		PasswordHash: hashedTestPassword(t, e.hasher),
		Role:         domain.RoleUser,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return &user
}

func (e *testEnv) createAdmin(t *testing.T, emailAddr string) *domain.User {
	t.Helper()
	admin := e.createUser(t, emailAddr)
	if err := e.users.UpdateRole(context.Background(), admin.ID, domain.RoleAdmin); err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	admin.Role = domain.RoleAdmin
	return admin
}

func (e *testEnv) login(t *testing.T, emailAddr, ip string) *LoginResult {
	t.Helper()
	result, err := e.auth.Login(context.Background(), Credentials{
		Email:     emailAddr,
		Password:  testPassword,
		IPAddress: ip,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.MFARequired {
		t.Fatalf("login unexpectedly demanded mfa")
	}
	return result
}

// enableMFA walks the full enrollment: BeginEnable, then ConfirmEnable with a
// code minted from the pending secret. Returns the secret and the plaintext
// backup codes shown to the user.
func (e *testEnv) enableMFA(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := e.mfaSvc.BeginEnable(ctx, userID)
	if err != nil {
		t.Fatalf("begin mfa enable: %v", err)
	}

	code, err := e.totp.CurrentCode(enrollment.Secret, e.clock.Now())
	if err != nil {
		t.Fatalf("mint totp code: %v", err)
	}
	if err := e.mfaSvc.ConfirmEnable(ctx, userID, code, "198.51.100.7", "ua"); err != nil {
		t.Fatalf("confirm mfa enable: %v", err)
	}

	return enrollment.Secret, enrollment.BackupCodes
}
