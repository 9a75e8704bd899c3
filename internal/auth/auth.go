// Package auth carries caller identities and issues the signed tokens that
// prove them.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
)

// Role is what a caller may do.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleJuror  Role = "juror"
	RolePublic Role = "public"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleJuror, RolePublic:
		return true
	}
	return false
}

// Identity is an authenticated caller.
type Identity struct {
	Subject string `json:"subject"`
	Role    Role   `json:"role"`
}

// Anonymous is the identity of unauthenticated callers.
var Anonymous = Identity{Role: RolePublic} //nolint:gochecknoglobals // zero identity

// IsAdmin reports whether the identity belongs to the control room.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// IsJuror reports whether the identity is the given juror.
func (i Identity) IsJuror(jurorID string) bool {
	return i.Role == RoleJuror && i.Subject != "" && i.Subject == jurorID
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity in ctx, or Anonymous.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(ctxKey{}).(Identity); ok {
		return id
	}
	return Anonymous
}

// RequireAdmin fails with ErrUnauthorized unless ctx carries an admin.
func RequireAdmin(ctx context.Context, op string) error {
	if !FromContext(ctx).IsAdmin() {
		return model.NewKind(op, model.ErrUnauthorized, "admin role required")
	}
	return nil
}

type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies identity tokens with HS256.
type TokenIssuer struct {
	secret   []byte
	adminKey []byte
	ttl      time.Duration
	now      func() time.Time
}

// IssuerOption configures a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithTTL sets the token lifetime.
func WithTTL(d time.Duration) IssuerOption {
	return func(t *TokenIssuer) {
		if d > 0 {
			t.ttl = d
		}
	}
}

// WithAdminKey sets the shared key exchanged for admin tokens.
func WithAdminKey(key string) IssuerOption {
	return func(t *TokenIssuer) { t.adminKey = []byte(key) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenIssuer creates an issuer signing with secret.
func NewTokenIssuer(secret string, opts ...IssuerOption) *TokenIssuer {
	t := &TokenIssuer{
		secret: []byte(secret),
		ttl:    12 * time.Hour,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Issue signs a token for id. It returns the token and its expiry.
func (t *TokenIssuer) Issue(id Identity) (string, time.Time, error) {
	const op = "auth.issue"
	if !id.Role.Valid() {
		return "", time.Time{}, model.NewKind(op, model.ErrInvalidInput, fmt.Sprintf("unknown role %q", id.Role))
	}
	now := t.now()
	exp := now.Add(t.ttl)
	c := claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, model.Wrap(op, err)
	}
	return signed, exp, nil
}

// Parse verifies a token and returns its identity.
func (t *TokenIssuer) Parse(token string) (Identity, error) {
	const op = "auth.parse"
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, model.WrapKind(op, model.ErrUnauthorized, err)
	}
	if !c.Role.Valid() {
		return Identity{}, model.NewKind(op, model.ErrUnauthorized, "invalid role claim")
	}
	return Identity{Subject: c.Subject, Role: c.Role}, nil
}

// AdminToken exchanges the admin key for an admin token.
func (t *TokenIssuer) AdminToken(key string) (string, time.Time, error) {
	const op = "auth.admin"
	if len(t.adminKey) == 0 || subtle.ConstantTimeCompare(t.adminKey, []byte(key)) != 1 {
		return "", time.Time{}, model.NewKind(op, model.ErrUnauthorized, "invalid admin key")
	}
	return t.Issue(Identity{Subject: "control-room", Role: RoleAdmin})
}
