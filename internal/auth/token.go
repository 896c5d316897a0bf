package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "parley"

// Grant type values embedded in token claims.
const (
	GrantAccessToken  = "access_token"
	GrantRefreshToken = "refresh_token"
)

// Claims is the token payload. Registered claims carry subject (username),
// issuer, issue and expiry times and a unique jti.
type Claims struct {
	Role           Role   `json:"role,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	Disabled       bool   `json:"disabled,omitempty"`
	GrantType      string `json:"grant_type,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a symmetric HS256 secret.
//
// Verify checks the signature and structure only; expiry is checked
// separately by the authorization pipeline so that "token expired" and
// "could not validate credentials" stay distinct rejections.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type CodecOption func(*Codec)

// WithCodecClock overrides the time source, for tests.
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// WithCodecIssuer overrides the issuer claim.
func WithCodecIssuer(issuer string) CodecOption {
	return func(c *Codec) { c.issuer = issuer }
}

// NewCodec builds a codec from a non-empty signing secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	c := &Codec{
		secret: []byte(secret),
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for the user with the given grant type and lifetime.
// It returns the compact token string and its expiry instant.
func (c *Codec) Issue(u *User, grantType string, ttl time.Duration) (string, time.Time, error) {
	now := c.now().UTC()
	expires := now.Add(ttl)
	claims := Claims{
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
		Disabled:       u.Disabled,
		GrantType:      grantType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Verify parses the token and checks its signature and issuer. Every
// failure collapses to ErrInvalidToken. Expiry is not validated here.
func (c *Codec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != c.issuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IsExpired reports whether the claims are at or past their expiry.
// A token whose expiry equals the current instant is already expired,
// and claims without an expiry are treated as expired.
func (c *Codec) IsExpired(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return !c.now().UTC().Before(claims.ExpiresAt.Time)
}
