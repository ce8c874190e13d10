// Package middleware provides HTTP middleware for the trust core REST surface.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nilelink/trustcore/internal/app/auth"
	"github.com/nilelink/trustcore/internal/errors"
	"github.com/nilelink/trustcore/pkg/logger"
)

type contextKey string

const actorContextKey contextKey = "actor"

// Claims are the token claims the core cares about: the caller address and
// its capability role. Everything else the identity layer puts in the token
// is ignored here.
type Claims struct {
	Address string `json:"addr"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware resolves a bearer token into an auth.Actor on the request
// context. Requests without a token pass through as an unprivileged actor;
// policy checks inside the services reject them where a role is required.
// Requests with an invalid token are rejected outright.
type AuthMiddleware struct {
	secret    []byte
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates an auth middleware verifying HMAC-signed tokens.
func NewAuthMiddleware(secret []byte, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	if log == nil {
		log = logger.NewDefault("middleware.auth")
	}
	return &AuthMiddleware{secret: secret, log: log, skipPaths: skip}
}

// Handler returns the authentication middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			// Anonymous caller. Read-only endpoints and policy-free
			// operations still work; gated ones fail in the service.
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), auth.Actor{})))
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			respondError(w, errors.Unauthorized("malformed authorization header"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.log.WithError(err).Warn("rejected bearer token")
			respondError(w, errors.Unauthorized("invalid token"))
			return
		}

		actor := auth.Actor{Address: claims.Address, Role: auth.Role(claims.Role)}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Unauthorized("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.Unauthorized("invalid token")
	}
	return claims, nil
}

// WithActor returns a context carrying the resolved caller.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFrom extracts the resolved caller from the request context. A request
// that never passed through the auth middleware resolves to an unprivileged
// actor.
func ActorFrom(ctx context.Context) auth.Actor {
	if actor, ok := ctx.Value(actorContextKey).(auth.Actor); ok {
		return actor
	}
	return auth.Actor{}
}

// respondError writes a ServiceError as the standard JSON error envelope.
func respondError(w http.ResponseWriter, err *errors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    err.Code,
		"message": err.Message,
	})
}
