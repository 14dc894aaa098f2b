// Package auth issues and checks bearer tokens, hashes passwords and decides
// which roles may run which operations.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oindividum/bankcards-service/internal/errs"
	"github.com/oindividum/bankcards-service/internal/models"
)

// MinSecretLength is the shortest accepted signing secret, in bytes.
const MinSecretLength = 32

// ErrWeakSecret is returned by NewTokenCodec for short secrets.
var ErrWeakSecret = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)

// roleClaim decodes the "roles" claim. Anything other than a list of strings
// decodes to the empty variant instead of failing the whole token.
type roleClaim struct {
	roles []models.Role
}

func (r roleClaim) MarshalJSON() ([]byte, error) {
	out := make([]string, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, string(role))
	}
	return json.Marshal(out)
}

func (r *roleClaim) UnmarshalJSON(data []byte) error {
	r.roles = nil
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for _, s := range raw {
		if role, err := models.ParseRole(s); err == nil {
			r.roles = append(r.roles, role)
		}
	}
	return nil
}

type claims struct {
	Roles roleClaim `json:"roles"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 access tokens. It is immutable after
// construction and safe for concurrent use.
type TokenCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec returns ErrWeakSecret when secret is shorter than MinSecretLength.
func NewTokenCodec(secret []byte, ttl time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	c := &TokenCodec{
		key: append([]byte(nil), secret...),
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for subject carrying roles in order.
func (c *TokenCodec) Issue(subject string, roles []models.Role) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Roles: roleClaim{roles: append([]models.Role(nil), roles...)},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(c.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (c *TokenCodec) parse(token string, opts ...jwt.ParserOption) (*claims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(*jwt.Token) (any, error) {
		return c.key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	cl, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return cl, nil
}

// Validate reports whether token is correctly signed, unexpired and issued
// for expectedSubject.
func (c *TokenCodec) Validate(token, expectedSubject string) bool {
	if expectedSubject == "" {
		return false
	}
	_, err := c.parse(token, jwt.WithSubject(expectedSubject))
	return err == nil
}

// ExtractSubject returns the subject of a valid token.
func (c *TokenCodec) ExtractSubject(token string) (string, error) {
	cl, err := c.parse(token)
	if err != nil {
		return "", invalidToken(err)
	}
	if cl.Subject == "" {
		return "", errs.Unauthorized("invalid token")
	}
	return cl.Subject, nil
}

// ExtractRoles returns the roles of a valid token. A missing or malformed
// roles claim yields an empty slice and no error.
func (c *TokenCodec) ExtractRoles(token string) ([]models.Role, error) {
	cl, err := c.parse(token)
	if err != nil {
		return nil, invalidToken(err)
	}
	if cl.Roles.roles == nil {
		return []models.Role{}, nil
	}
	return cl.Roles.roles, nil
}

func invalidToken(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return &errs.Error{Kind: errs.KindUnauthorized, Msg: "token has expired", Err: err}
	}
	return &errs.Error{Kind: errs.KindUnauthorized, Msg: "invalid token", Err: err}
}
