package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

// TOTPConfig tunes code generation and verification.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period int
	Skew   int
}

// TOTPManager generates shared secrets and verifies time-based codes per
// RFC 6238 (HMAC-SHA1).
type TOTPManager struct {
	cfg TOTPConfig
}

// NewTOTPManager constructs a manager, filling in unset digits and period
// with the conventional 6-digit / 30-second parameters. Skew is taken as
// configured: zero means exact-step matching, and a negative value clamps
// to the common ±1-step window.
func NewTOTPManager(cfg TOTPConfig) *TOTPManager {
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	if cfg.Period <= 0 {
		cfg.Period = 30
	}
	if cfg.Skew < 0 {
		cfg.Skew = 1
	}
	return &TOTPManager{cfg: cfg}
}

// GenerateSecret returns a fresh random secret as unpadded base32. The encoded
// form is 32 characters for the 20-byte secret.
func (m *TOTPManager) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return enc.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// payload encoded in the enrollment QR code.
func (m *TOTPManager) ProvisionURI(secret, account string) string {
	label := url.PathEscape(m.cfg.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", m.cfg.Issuer)
	v.Set("period", strconv.Itoa(m.cfg.Period))
	v.Set("digits", strconv.Itoa(m.cfg.Digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// CurrentCode returns the code for the time step containing the given moment.
func (m *TOTPManager) CurrentCode(secret string, at time.Time) (string, error) {
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	key, err := enc.DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	if err != nil {
		return "", fmt.Errorf("decode totp secret: %w", err)
	}
	if len(key) == 0 {
		return "", fmt.Errorf("empty totp secret")
	}

	counter := at.Unix() / int64(m.cfg.Period)
	return hotpCode(key, counter, m.cfg.Digits), nil
}

// VerifyCode checks the supplied code against the secret at the given moment,
// accepting codes within ±Skew time steps for clock drift. The comparison is
// constant-time per candidate step.
func (m *TOTPManager) VerifyCode(secret, code string, at time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.cfg.Digits || !isDigits(trimmed) {
		return false, nil
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	key, err := enc.DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	if err != nil {
		return false, fmt.Errorf("decode totp secret: %w", err)
	}
	if len(key) == 0 {
		return false, fmt.Errorf("empty totp secret")
	}

	baseCounter := at.Unix() / int64(m.cfg.Period)
	for step := -m.cfg.Skew; step <= m.cfg.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated := hotpCode(key, counter, m.cfg.Digits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

func hotpCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
