// Package auth mints and verifies the bearer tokens the HTTP API accepts.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"xnom/internal/logging"
	"xnom/internal/model"
	"xnom/internal/store"
)

// ErrInvalidToken covers malformed, badly signed and expired tokens.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// Claims identify the dashboard user behind a request.
type Claims struct {
	UserID   string `json:"userId"`
	XUserID  string `json:"xUserId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs an HS256 token for acc.
func (i *Issuer) Issue(acc model.Account) (string, error) {
	now := i.now()
	c := Claims{
		UserID:   acc.ID,
		XUserID:  acc.XUserID,
		Username: acc.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify parses raw and checks its signature and expiry.
func (i *Issuer) Verify(raw string) (Claims, error) {
	var c Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	tok, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return i.secret, nil })
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	return c, nil
}

type ctxKey struct{}

// FromContext returns the claims Middleware attached.
func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(Claims)
	return c, ok
}

// WithClaims returns ctx carrying c.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// Middleware rejects requests without a valid token. The token comes from
// "Authorization: Bearer" or, for websocket clients, the token query param.
func (i *Issuer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractToken(r)
		if raw == "" {
			deny(w, "No authentication token provided")
			return
		}
		c, err := i.Verify(raw)
		if err != nil {
			logging.Debug("auth_rejected", map[string]any{"path": r.URL.Path})
			deny(w, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), c)))
	})
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}

// EnsureAccount upserts the local account for an X user and stamps the
// login time.
func EnsureAccount(ctx context.Context, st store.Accounts, u model.User, now time.Time) (model.Account, error) {
	if u.ID == "" {
		return model.Account{}, errors.New("auth: x user id is required")
	}
	name := u.Name
	if name == "" {
		name = u.Username
	}
	acc, err := st.UpsertAccount(ctx, model.Account{
		XUserID:         u.ID,
		Username:        u.Username,
		DisplayName:     name,
		ProfileImageURL: u.ProfileImageURL,
		CreatedAt:       now,
		LastLoginAt:     &now,
	})
	if err != nil {
		return model.Account{}, fmt.Errorf("upsert account: %w", err)
	}
	return acc, nil
}
