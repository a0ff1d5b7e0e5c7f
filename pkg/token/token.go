package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session cookie transport constants. The cookie is HTTP-only and SameSite=Lax
// so the token never leaks to scripts or cross-site POSTs.
const (
	CookieName = "hh_session"

	// DefaultTTL bounds token exposure since there is no revocation store.
	DefaultTTL = 7 * 24 * time.Hour
)

const (
	headerType      = "JWT"
	headerAlgorithm = "HS256"
)

type header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// Claims is the payload embedded in every session token. PlanID is a snapshot
// taken at issue time; the authoritative plan lives on the Subscription record.
type Claims struct {
	UserID    uuid.UUID `json:"uid"`
	Email     string    `json:"email"`
	PlanID    string    `json:"plan"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
}

// Expired reports whether the claims are at or past their expiry.
func (c Claims) Expired(now time.Time) bool {
	return c.ExpiresAt > 0 && now.Unix() >= c.ExpiresAt
}

// Config holds token service configuration.
type Config struct {
	SigningKey string        `env:"TOKEN_SIGNING_KEY,required"`
	TTL        time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
}

// Service signs and verifies session tokens with a server-held secret.
type Service struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// New creates a token service. The signing key should be at least 32 bytes
// for adequate HMAC-SHA256 security.
func New(signingKey []byte, ttl time.Duration) (*Service, error) {
	if len(signingKey) == 0 {
		return nil, ErrMissingSigningKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{signingKey: signingKey, ttl: ttl, now: time.Now}, nil
}

// NewFromConfig creates a token service from environment configuration.
func NewFromConfig(cfg Config) (*Service, error) {
	return New([]byte(cfg.SigningKey), cfg.TTL)
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue produces a signed, time-limited credential for the given identity.
func (s *Service) Issue(userID uuid.UUID, email, planID string) (string, error) {
	if userID == uuid.Nil {
		return "", ErrMissingSubject
	}

	now := s.now().UTC()
	claims := Claims{
		UserID:    userID,
		Email:     email,
		PlanID:    planID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}

	headerJSON, err := json.Marshal(header{Type: headerType, Algorithm: headerAlgorithm})
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	payload := base64URLEncode(headerJSON) + "." + base64URLEncode(claimsJSON)
	return payload + "." + s.sign(payload), nil
}

// Verify checks signature and expiry. It returns nil on any malformed,
// expired, or tampered input and never returns an error: verification
// failures are silent by contract, callers treat nil as unauthenticated.
func (s *Service) Verify(tokenString string) *Claims {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil
	}

	// Constant-time comparison prevents timing attacks on the signature.
	payload := parts[0] + "." + parts[1]
	expected := s.sign(payload)
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(expected)) != 1 {
		return nil
	}

	headerJSON, err := base64URLDecode(parts[0])
	if err != nil {
		return nil
	}
	var h header
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return nil
	}
	// Pin the algorithm to prevent confusion attacks.
	if h.Algorithm != headerAlgorithm {
		return nil
	}

	claimsJSON, err := base64URLDecode(parts[1])
	if err != nil {
		return nil
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil
	}
	if claims.UserID == uuid.Nil {
		return nil
	}
	if claims.Expired(s.now().UTC()) {
		return nil
	}

	return &claims
}

func (s *Service) sign(payload string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(payload))
	return base64URLEncode(h.Sum(nil))
}

// base64url without padding per RFC 7515.
func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
