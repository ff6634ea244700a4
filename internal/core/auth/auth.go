// Package auth provides API account authentication: signed session tokens
// and the HTTP middleware that enforces them.
//
// Tokens are HS256 JWTs carried in the x-auth-token header. The signing
// secret is environment-only (RP_JWT_SECRET) and never appears in config
// files.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/reachpoint/reachpoint/internal/types"
)

// TokenHeader is the request header carrying the session token.
const TokenHeader = "x-auth-token"

type contextKey struct{}

// Authenticator issues and verifies session tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	log    zerolog.Logger
}

// New builds an authenticator from the signing secret and token lifetime.
func New(secret []byte, ttl time.Duration, log zerolog.Logger) *Authenticator {
	return &Authenticator{
		secret: secret,
		ttl:    ttl,
		log:    log.With().Str("component", "auth").Logger(),
	}
}

// IssueToken signs a session token for the given account.
func (a *Authenticator) IssueToken(userID types.UserID) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   string(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token and returns the account id it was issued
// for. Expired, malformed, or foreign-signed tokens all fail.
func (a *Authenticator) VerifyToken(tokenString string) (types.UserID, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("invalid token: missing subject")
	}
	return types.UserID(claims.Subject), nil
}

// Middleware rejects requests without a valid x-auth-token header and
// attaches the authenticated account id to the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(TokenHeader)
		if token == "" {
			unauthorized(w, "missing auth token")
			return
		}

		userID, err := a.VerifyToken(token)
		if err != nil {
			a.log.Debug().Err(err).Msg("token rejected")
			unauthorized(w, "invalid auth token")
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the authenticated account id placed by
// Middleware, or false outside an authenticated request.
func UserIDFromContext(ctx context.Context) (types.UserID, bool) {
	id, ok := ctx.Value(contextKey{}).(types.UserID)
	return id, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}
