// Package auth verifies the bearer tokens both budget transports accept and
// carries the resulting principal through the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openkfw/trubudget/internal/platform/requestctx"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
)

// ErrUnauthenticated is returned for missing, malformed or expired tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// tokenClaims is the JWT body issued to API users.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserID  string   `json:"userId"`
	Groups  []string `json:"groups,omitempty"`
	Address string   `json:"address,omitempty"`
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	key []byte
	now func() time.Time
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret string, now func() time.Time) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{key: []byte(secret), now: now}, nil
}

// Verify parses token and returns the principal it names.
func (v *Verifier) Verify(token string) (identity.ServiceUser, error) {
	if v == nil {
		return identity.ServiceUser{}, fmt.Errorf("%w: verifier is not configured", ErrUnauthenticated)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return identity.ServiceUser{}, fmt.Errorf("%w: token is required", ErrUnauthenticated)
	}
	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return identity.ServiceUser{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	userID := strings.TrimSpace(parsed.UserID)
	if userID == "" {
		return identity.ServiceUser{}, fmt.Errorf("%w: token has no userId", ErrUnauthenticated)
	}
	return identity.ServiceUser{ID: userID, Groups: parsed.Groups, Address: parsed.Address}, nil
}

// Issue signs a token for user that expires after ttl.
func (v *Verifier) Issue(user identity.ServiceUser, ttl time.Duration) (string, error) {
	if v == nil {
		return "", fmt.Errorf("verifier is not configured")
	}
	now := v.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:  user.ID,
		Groups:  user.Groups,
		Address: user.Address,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type userContextKey struct{}

// WithUser stores the authenticated principal in ctx.
func WithUser(ctx context.Context, user identity.ServiceUser) context.Context {
	ctx = requestctx.WithUserID(ctx, user.ID)
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the principal stored by WithUser.
func UserFromContext(ctx context.Context) (identity.ServiceUser, bool) {
	if ctx == nil {
		return identity.ServiceUser{}, false
	}
	user, ok := ctx.Value(userContextKey{}).(identity.ServiceUser)
	return user, ok
}
