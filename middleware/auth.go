package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

type contextKey string

// ActorContextKey stores the authenticated caller identity in request context.
const ActorContextKey contextKey = "actor"

// AuthMiddleware gates write endpoints behind a bearer token drawn from a
// configured admin token set. In development, with no tokens configured,
// the gate is bypassed entirely so the platform runs without setup.
type AuthMiddleware struct {
	logger  zerolog.Logger
	tokens  map[string]struct{}
	bypass  bool
	tokenMu sync.RWMutex
}

// NewAuthMiddleware creates a new authentication middleware from the
// configured admin token list. bypass disables the check outright.
func NewAuthMiddleware(logger zerolog.Logger, tokens []string, bypass bool) *AuthMiddleware {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return &AuthMiddleware{logger: logger, tokens: set, bypass: bypass}
}

// Handler returns the middleware handler function.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if am.bypass {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ActorContextKey, "dev")))
			return
		}

		authHeader := r.Header.Get("Authorization")
		token := authHeader
		if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			token = authHeader[len("bearer "):]
		}

		am.tokenMu.RLock()
		_, ok := am.tokens[token]
		am.tokenMu.RUnlock()

		if token == "" || !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"type":"unauthorized","message":"a valid bearer token is required"}}`))
			return
		}

		ctx := context.WithValue(r.Context(), ActorContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Actor extracts the authenticated caller identity from the request context.
func Actor(ctx context.Context) string {
	if v, ok := ctx.Value(ActorContextKey).(string); ok {
		return v
	}
	return ""
}
