package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// TokenPurpose binds a token to exactly one use. Verification rejects tokens
// presented for a purpose other than the one they were minted with.
type TokenPurpose string

const (
	PurposeAccess            TokenPurpose = "access"
	PurposeRefresh           TokenPurpose = "refresh"
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

var (
	// ErrInvalidToken indicates the token is malformed or its signature does not verify.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired indicates the token's exp claim has elapsed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenNotYetValid indicates the token's nbf claim is in the future.
	ErrTokenNotYetValid = errors.New("token not yet valid")
	// ErrWrongPurpose indicates a structurally valid token presented for the wrong purpose.
	ErrWrongPurpose = errors.New("token purpose mismatch")
)

// Claims is the signed payload shared by all token purposes. SessionID is set
// only for access and refresh tokens.
type Claims struct {
	Email     string       `json:"email,omitempty"`
	SessionID string       `json:"sid,omitempty"`
	Purpose   TokenPurpose `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies purpose-bound HMAC-signed tokens.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer. The secret must be non-empty.
func NewTokenIssuer(secret, issuer, audience string) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("token issuer is required")
	}

	return &TokenIssuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (t *TokenIssuer) WithClock(clock func() time.Time) *TokenIssuer {
	if clock != nil {
		t.now = clock
	}
	return t
}

// IssueOptions describes one token to mint.
type IssueOptions struct {
	Purpose   TokenPurpose
	UserID    string
	Email     string
	SessionID string
	TTL       time.Duration
}

// Issue mints a signed token for the supplied subject and purpose.
func (t *TokenIssuer) Issue(opts IssueOptions) (string, error) {
	if strings.TrimSpace(opts.UserID) == "" {
		return "", fmt.Errorf("user id is required")
	}
	if opts.TTL <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}
	switch opts.Purpose {
	case PurposeAccess, PurposeRefresh:
		if strings.TrimSpace(opts.SessionID) == "" {
			return "", fmt.Errorf("session id is required for %s tokens", opts.Purpose)
		}
	case PurposeEmailVerification, PurposePasswordReset:
	default:
		return "", fmt.Errorf("unknown token purpose %q", opts.Purpose)
	}

	now := t.now()
	claims := Claims{
		Email:     opts.Email,
		SessionID: opts.SessionID,
		Purpose:   opts.Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   opts.UserID,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(opts.TTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Verify validates signature, expiry, issuer, audience, and purpose, and
// returns the claims. All failures map onto the four sentinel errors; callers
// treat each as unauthenticated but may log the distinction.
func (t *TokenIssuer) Verify(tokenString string, expected TokenPurpose) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != expected {
		return nil, ErrWrongPurpose
	}

	return claims, nil
}
