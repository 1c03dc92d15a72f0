package security

import (
	"errors"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T, at time.Time) *TokenIssuer {
	t.Helper()

	issuer, err := NewTokenIssuer("test-secret-at-least-32-characters!!", "identity-core", "readzone")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	issuer.WithClock(func() time.Time { return at })
	return issuer
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, now)

	token, err := issuer.Issue(IssueOptions{
		Purpose:   PurposeAccess,
		UserID:    "user-1",
		Email:     "alice@example.com",
		SessionID: "session-1",
		TTL:       15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims, err := issuer.Verify(token, PurposeAccess)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %s", claims.Subject)
	}
	if claims.SessionID != "session-1" {
		t.Fatalf("expected session session-1, got %s", claims.SessionID)
	}
	if claims.ID == "" {
		t.Fatalf("expected a jti claim")
	}
}

func TestTokenIssuer_PurposeIsolation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, now)

	emailToken, err := issuer.Issue(IssueOptions{
		Purpose: PurposeEmailVerification,
		UserID:  "user-1",
		Email:   "alice@example.com",
		TTL:     24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := issuer.Verify(emailToken, PurposeAccess); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("expected ErrWrongPurpose for email token as access, got %v", err)
	}

	accessToken, err := issuer.Issue(IssueOptions{
		Purpose:   PurposeAccess,
		UserID:    "user-1",
		SessionID: "session-1",
		TTL:       15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := issuer.Verify(accessToken, PurposeEmailVerification); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("expected ErrWrongPurpose for access token as email, got %v", err)
	}
}

func TestTokenIssuer_Expiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, now)

	token, err := issuer.Issue(IssueOptions{
		Purpose:   PurposeAccess,
		UserID:    "user-1",
		SessionID: "session-1",
		TTL:       15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	issuer.WithClock(func() time.Time { return now.Add(16 * time.Minute) })

	if _, err := issuer.Verify(token, PurposeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuer_RejectsForeignSignature(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, now)

	other, err := NewTokenIssuer("a-completely-different-signing-secret", "identity-core", "readzone")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	other.WithClock(func() time.Time { return now })

	token, err := other.Issue(IssueOptions{
		Purpose:   PurposeAccess,
		UserID:    "user-1",
		SessionID: "session-1",
		TTL:       15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := issuer.Verify(token, PurposeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestTokenIssuer_SessionRequiredForAccess(t *testing.T) {
	issuer := newTestIssuer(t, time.Now().UTC())

	if _, err := issuer.Issue(IssueOptions{
		Purpose: PurposeAccess,
		UserID:  "user-1",
		TTL:     15 * time.Minute,
	}); err == nil {
		t.Fatalf("expected error issuing access token without session id")
	}
}
