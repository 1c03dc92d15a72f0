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
	"github.com/readzone/identity-core/internal/infra/logger"
	"github.com/readzone/identity-core/internal/infra/security"
	"github.com/readzone/identity-core/internal/infra/telemetry"
	"github.com/readzone/identity-core/internal/repository"
)

var (
	// ErrInvalidCredentials indicates a bad email, password, or MFA code. The
	// message never reveals which factor failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive indicates the account cannot authenticate. Suspended
	// and deleted accounts surface identically.
	ErrAccountInactive = errors.New("account cannot authenticate")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRefreshToken indicates the refresh token is malformed, expired,
	// or of the wrong purpose.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrInvalidAccessToken indicates the access token is malformed, expired,
	// or of the wrong purpose.
	ErrInvalidAccessToken = errors.New("invalid access token")
)

// TokenPair carries the minted access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is the outcome of Login or VerifyMFA. When MFARequired is set
// only UserID is populated: the caller must complete the challenge before any
// session or tokens exist.
type LoginResult struct {
	MFARequired bool
	UserID      string
	Tokens      *TokenPair
	Profile     *domain.PublicProfile
	SessionID   string
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	IPAddress   string
	UserAgent   string
}

// Credentials carries a login request.
type Credentials struct {
	Email      string
	Password   string
	IPAddress  string
	UserAgent  string
	RememberMe bool
}

// AuthContext is the resolved identity of a validated access token.
type AuthContext struct {
	User    *domain.User
	Session *domain.Session
}

// AuthService drives the authentication state machine: password verification,
// the optional MFA challenge, session creation, and token issuance.
type AuthService struct {
	cfg       *config.AppConfig
	users     port.UserRepository
	sessions  *SessionService
	mfa       *MFAService
	limiter   *Limiter
	hasher    *security.PasswordHasher
	tokens    *security.TokenIssuer
	validator *security.PasswordValidator
	audit     *AuditRecorder
	events    port.EventPublisher
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	sessions *SessionService,
	mfa *MFAService,
	limiter *Limiter,
	hasher *security.PasswordHasher,
	tokens *security.TokenIssuer,
	validator *security.PasswordValidator,
	audit *AuditRecorder,
	events port.EventPublisher,
	metrics *telemetry.Metrics,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	service := &AuthService{
		cfg:       cfg,
		users:     users,
		sessions:  sessions,
		mfa:       mfa,
		limiter:   limiter,
		hasher:    hasher,
		tokens:    tokens,
		validator: validator,
		audit:     audit,
		events:    events,
		metrics:   metrics,
		logger:    log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Register creates a new ACTIVE user with role USER and an unverified email.
// The returned profile never carries the password hash.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.PublicProfile, error) {
	email := domain.NormalizeEmail(input.Email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if strings.TrimSpace(input.DisplayName) == "" {
		return nil, fmt.Errorf("display name is required")
	}

	if s.limiter != nil {
		if err := s.limiter.AllowRegister(ctx, input.IPAddress); err != nil {
			return nil, err
		}
	}

	if err := s.validator.Validate(input.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.publishRegistered(ctx, user, now)

	profile := user.Profile()
	return &profile, nil
}

// Login verifies credentials. When MFA is enabled for the account it returns
// an MFARequired result carrying only the user id; otherwise it completes the
// session and token issuance directly.
//
// The rate limit is checked before the credential store is touched, so brute
// force pressure never reaches the expensive hash. Unknown emails, wrong
// passwords, and blocked accounts all audit LOGIN_FAILED.
func (s *AuthService) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if s.limiter != nil {
		if err := s.limiter.AllowLogin(ctx, creds.IPAddress); err != nil {
			return nil, err
		}
	}

	email := domain.NormalizeEmail(creds.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.failLogin(ctx, nil, email, creds, "unknown_email")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.CanAuthenticate() {
		s.failLogin(ctx, user, email, creds, "account_blocked")
		return nil, ErrAccountInactive
	}

	ok, err := s.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.failLogin(ctx, user, email, creds, "wrong_password")
		return nil, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		return &LoginResult{MFARequired: true, UserID: user.ID}, nil
	}

	return s.finishLogin(ctx, user, creds, false)
}

// VerifyMFA completes a login that Login answered with MFARequired. A failed
// challenge audits LOGIN_FAILED and surfaces as ErrInvalidCredentials; the
// caller cannot tell a bad TOTP code from a spent backup code.
func (s *AuthService) VerifyMFA(ctx context.Context, userID, code string, creds Credentials) (*LoginResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.CanAuthenticate() {
		return nil, ErrAccountInactive
	}
	if !user.MFAEnabled {
		return nil, ErrInvalidCredentials
	}

	if err := s.mfa.VerifyChallenge(ctx, userID, code); err != nil {
		if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrMFANotEnabled) {
			s.failLogin(ctx, user, user.Email, creds, "mfa")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	return s.finishLogin(ctx, user, creds, true)
}

// finishLogin is the shared success path: create the session under the cap,
// mint the token pair, stamp last-login, audit, and publish.
func (s *AuthService) finishLogin(ctx context.Context, user *domain.User, creds Credentials, mfaUsed bool) (*LoginResult, error) {
	refreshTTL := s.cfg.JWT.RefreshTokenTTL
	if creds.RememberMe && s.cfg.JWT.RefreshRememberTTL > 0 {
		refreshTTL = s.cfg.JWT.RefreshRememberTTL
	}

	session, err := s.sessions.Create(ctx, CreateSessionInput{
		UserID:     user.ID,
		IPAddress:  creds.IPAddress,
		UserAgent:  creds.UserAgent,
		RememberMe: creds.RememberMe,
		RefreshTTL: refreshTTL,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := s.issuePair(user, session.ID, refreshTTL)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.RecordLogin(ctx, user.ID, now, creds.IPAddress); err != nil {
		// The login already succeeded; a missing last-login stamp is not
		// worth failing it over.
		s.logger.Warn("record login failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.audit.Record(ctx, AuditRecord{
		UserID:    auditUser(user.ID),
		Action:    domain.AuditLogin,
		IPAddress: creds.IPAddress,
		UserAgent: creds.UserAgent,
		Metadata:  map[string]any{"session_id": session.ID, "mfa_used": mfaUsed},
		Severity:  domain.SeverityInfo,
	})

	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues("success").Inc()
	}
	s.publishLoginSucceeded(ctx, user.ID, session.ID, creds.IPAddress, mfaUsed, now)

	profile := user.Profile()
	return &LoginResult{
		UserID:    user.ID,
		Tokens:    tokens,
		Profile:   &profile,
		SessionID: session.ID,
	}, nil
}

// Logout revokes the caller's session. Logging out an already-revoked session
// is not an error.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID, ip, userAgent string) error {
	if err := s.sessions.RevokeOwned(ctx, userID, sessionID, "logout"); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	s.audit.Record(ctx, AuditRecord{
		UserID:    auditUser(userID),
		Action:    domain.AuditLogout,
		IPAddress: ip,
		UserAgent: userAgent,
		Metadata:  map[string]any{"session_id": sessionID},
		Severity:  domain.SeverityInfo,
	})

	return nil
}

// Refresh rotates the token pair bound to a session that is still inside its
// refresh window. A lapsed access expiry does not block rotation; the old
// refresh token dies with the session: revoking the session is what
// invalidates outstanding tokens, not a denylist.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, security.PurposeRefresh)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	session, err := s.sessions.ValidateForRefresh(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.CanAuthenticate() {
		return nil, ErrAccountInactive
	}

	refreshTTL := session.RefreshExpiresAt.Sub(s.now())
	if refreshTTL <= 0 {
		return nil, ErrSessionInvalid
	}

	tokens, err := s.issuePair(user, session.ID, refreshTTL)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Renew(ctx, session); err != nil {
		s.logger.Warn("renew session failed", zap.String("session_id", session.ID), zap.Error(err))
	}

	return tokens, nil
}

// ValidateAccess resolves an access token into the caller's identity. The
// token signature alone is not trusted: the bound session must still be
// active and the account must still be allowed to authenticate, so a
// suspension takes effect on the next request, not at token expiry.
func (s *AuthService) ValidateAccess(ctx context.Context, accessToken string) (*AuthContext, error) {
	claims, err := s.tokens.Verify(accessToken, security.PurposeAccess)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}

	session, err := s.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		return nil, ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidAccessToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.CanAuthenticate() {
		return nil, ErrAccountInactive
	}

	return &AuthContext{User: user, Session: session}, nil
}

// ChangePassword verifies the current password, stores the new hash, and logs
// out every other session.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, keepSessionID, ip, userAgent string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := s.validator.Validate(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	if err := s.users.UpdatePassword(ctx, userID, hash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	revoked, err := s.sessions.RevokeAllExcept(ctx, userID, keepSessionID, "password_change")
	if err != nil {
		return err
	}

	s.audit.Record(ctx, AuditRecord{
		UserID:    auditUser(userID),
		Action:    domain.AuditPasswordChange,
		IPAddress: ip,
		UserAgent: userAgent,
		Metadata:  map[string]any{"sessions_revoked": revoked},
		Severity:  domain.SeverityWarning,
	})

	return nil
}

func (s *AuthService) issuePair(user *domain.User, sessionID string, refreshTTL time.Duration) (*TokenPair, error) {
	access, err := s.tokens.Issue(security.IssueOptions{
		Purpose:   security.PurposeAccess,
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: sessionID,
		TTL:       s.cfg.JWT.AccessTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := s.tokens.Issue(security.IssueOptions{
		Purpose:   security.PurposeRefresh,
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: sessionID,
		TTL:       refreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TokensIssued.WithLabelValues(string(security.PurposeAccess)).Inc()
		s.metrics.TokensIssued.WithLabelValues(string(security.PurposeRefresh)).Inc()
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// failLogin audits and publishes a failed attempt. The user pointer is nil
// for unknown emails; the audit row then carries no subject.
func (s *AuthService) failLogin(ctx context.Context, user *domain.User, email string, creds Credentials, reason string) {
	var userRef *string
	if user != nil {
		userRef = auditUser(user.ID)
	}

	s.audit.Record(ctx, AuditRecord{
		UserID:    userRef,
		Action:    domain.AuditLoginFailed,
		IPAddress: creds.IPAddress,
		UserAgent: creds.UserAgent,
		Metadata:  map[string]any{"reason": reason},
		Severity:  domain.SeverityWarning,
	})

	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues("failure").Inc()
	}

	if s.events != nil {
		event := domain.LoginFailedEvent{
			EventID:     uuid.NewString(),
			MaskedEmail: logger.MaskEmail(email),
			IPAddress:   creds.IPAddress,
			Reason:      reason,
			FailedAt:    s.now(),
		}
		if err := s.events.PublishLoginFailed(ctx, event); err != nil {
			s.logger.Warn("publish login failed event", zap.Error(err))
		}
	}
}

func (s *AuthService) publishRegistered(ctx context.Context, user domain.User, at time.Time) {
	if s.events == nil {
		return
	}
	event := domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       user.ID,
		Email:        user.Email,
		RegisteredAt: at,
	}
	if err := s.events.PublishUserRegistered(ctx, event); err != nil {
		s.logger.Warn("publish user registered failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (s *AuthService) publishLoginSucceeded(ctx context.Context, userID, sessionID, ip string, mfaUsed bool, at time.Time) {
	if s.events == nil {
		return
	}
	event := domain.LoginSucceededEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: ip,
		MFAUsed:   mfaUsed,
		LoggedAt:  at,
	}
	if err := s.events.PublishLoginSucceeded(ctx, event); err != nil {
		s.logger.Warn("publish login succeeded failed", zap.String("user_id", userID), zap.Error(err))
	}
}
