package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/readzone/identity-core/internal/core/domain"
)

func TestVerificationService_EmailVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "reader@example.com")

	if err := env.verification.RequestEmailVerification(ctx, user.ID, "ip", "ua"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(env.email.verifications) != 1 {
		t.Fatalf("verification emails = %d, want 1", len(env.email.verifications))
	}
	msg := env.email.verifications[0]
	if msg.To != user.Email || msg.Token == "" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	if err := env.verification.ConfirmEmail(ctx, msg.Token, "ip", "ua"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	fresh, err := env.users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !fresh.EmailVerified || fresh.EmailVerifiedAt == nil {
		t.Fatal("email not marked verified")
	}
	if len(env.audits.byAction(domain.AuditEmailVerify)) != 1 {
		t.Fatal("missing EMAIL_VERIFY audit entry")
	}

	// A verified account gets no further verification mail.
	if err := env.verification.RequestEmailVerification(ctx, user.ID, "ip", "ua"); err != nil {
		t.Fatalf("re-request: %v", err)
	}
	if len(env.email.verifications) != 1 {
		t.Fatalf("verification emails after re-request = %d, want 1", len(env.email.verifications))
	}
}

func TestVerificationService_ConfirmEmail_PurposeIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "reader@example.com")

	// A reset token must never verify an email, even for the right subject.
	if err := env.verification.RequestPasswordReset(ctx, user.Email, "ip", "ua"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	resetToken := env.email.resets[0].Token

	if err := env.verification.ConfirmEmail(ctx, resetToken, "ip", "ua"); !errors.Is(err, ErrInvalidVerificationToken) {
		t.Fatalf("err = %v, want ErrInvalidVerificationToken", err)
	}
}

func TestVerificationService_PasswordReset_SilentForUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.verification.RequestPasswordReset(ctx, "ghost@example.com", "ip", "ua"); err != nil {
		t.Fatalf("request returned %v, want nil", err)
	}
	if len(env.email.resets) != 0 {
		t.Fatalf("reset emails = %d, want 0", len(env.email.resets))
	}

	requests := env.audits.byAction(domain.AuditPasswordResetRequest)
	if len(requests) != 1 {
		t.Fatalf("PASSWORD_RESET_REQUEST entries = %d, want 1", len(requests))
	}
	entry := requests[0]
	if entry.UserID != nil {
		t.Fatal("silent reset entry should have no subject")
	}
	if entry.Severity != domain.SeverityWarning {
		t.Fatalf("severity = %s, want WARNING", entry.Severity)
	}
	if entry.Metadata["known_account"] != false {
		t.Fatalf("known_account = %v, want false", entry.Metadata["known_account"])
	}
	if entry.Metadata["masked_email"] == "ghost@example.com" {
		t.Fatal("raw email leaked into the trail")
	}
}

func TestVerificationService_PasswordReset_SilentForSuspended(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "suspended@example.com")
	if err := env.users.UpdateStatus(ctx, user.ID, domain.UserStatusSuspended, nil); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	if err := env.verification.RequestPasswordReset(ctx, user.Email, "ip", "ua"); err != nil {
		t.Fatalf("request returned %v, want nil", err)
	}
	if len(env.email.resets) != 0 {
		t.Fatalf("reset emails = %d, want 0", len(env.email.resets))
	}
}

func TestVerificationService_PasswordReset_Flow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "reader@example.com")
	env.login(t, "reader@example.com", "203.0.113.9")
	env.login(t, "reader@example.com", "203.0.113.9")

	if err := env.verification.RequestPasswordReset(ctx, "reader@example.com", "ip", "ua"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(env.email.resets) != 1 {
		t.Fatalf("reset emails = %d, want 1", len(env.email.resets))
	}
	token := env.email.resets[0].Token

	if err := env.verification.ConfirmPasswordReset(ctx, token, "password1", "ip", "ua"); err == nil {
		t.Fatal("weak replacement password accepted")
	}

	const newPassword = "Lighthouse-Meadow-73#"
	if err := env.verification.ConfirmPasswordReset(ctx, token, newPassword, "ip", "ua"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Every session is gone; the new password works.
	if got := env.sessions.activeCount(user.ID, env.clock.Now()); got != 0 {
		t.Fatalf("active sessions after reset = %d, want 0", got)
	}
	result, err := env.auth.Login(ctx, Credentials{
		Email:     "reader@example.com",
		Password:  newPassword,
		IPAddress: "198.51.100.4",
	})
	if err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if result.Tokens == nil {
		t.Fatal("login returned no tokens")
	}

	resets := env.audits.byAction(domain.AuditPasswordReset)
	if len(resets) != 1 {
		t.Fatalf("PASSWORD_RESET entries = %d, want 1", len(resets))
	}
	if resets[0].Severity != domain.SeverityWarning {
		t.Fatalf("severity = %s, want WARNING", resets[0].Severity)
	}
	if resets[0].Metadata["sessions_revoked"] != 2 {
		t.Fatalf("sessions_revoked = %v, want 2", resets[0].Metadata["sessions_revoked"])
	}
}

func TestVerificationService_PasswordReset_ExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "reader@example.com")

	if err := env.verification.RequestPasswordReset(ctx, "reader@example.com", "ip", "ua"); err != nil {
		t.Fatalf("request: %v", err)
	}
	token := env.email.resets[0].Token

	env.clock.Advance(env.cfg.JWT.ResetTokenTTL + time.Minute)

	err := env.verification.ConfirmPasswordReset(ctx, token, "Lighthouse-Meadow-73#", "ip", "ua")
	if !errors.Is(err, ErrInvalidVerificationToken) {
		t.Fatalf("err = %v, want ErrInvalidVerificationToken", err)
	}
}

func TestVerificationService_PasswordReset_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "reader@example.com")

	for i := 0; i < env.cfg.RateLimit.PasswordResetMaxAttempts; i++ {
		if err := env.verification.RequestPasswordReset(ctx, "reader@example.com", "203.0.113.9", "ua"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}

	err := env.verification.RequestPasswordReset(ctx, "reader@example.com", "203.0.113.9", "ua")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}
