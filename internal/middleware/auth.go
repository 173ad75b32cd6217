package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/PaulBabatuyi/skillswap/internal/auth"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// context key type for storing auth claims in context
type authContextKey struct{}

// TokenVerifier verifies a bearer token. *auth.JWTManager satisfies it.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, authContextKey{}, claims)
}

// ClaimsFromContext extracts auth claims from the context, if present.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(authContextKey{}).(*auth.Claims)
	return c, ok && c != nil
}

// UserIDFromContext returns the authenticated user's id.
func UserIDFromContext(ctx context.Context) (bson.ObjectID, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return bson.ObjectID{}, false
	}
	id, err := c.ObjectID()
	return id, err == nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
// Browsers cannot set headers on a websocket handshake, so a "token" query
// parameter is accepted as well.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// RequireAuth rejects requests without a valid bearer token and attaches the
// token's claims to the request context.
func RequireAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				unauthorized(w, "missing authorization header")
				return
			}

			claims, err := v.VerifyToken(token)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			// attach claims into context for handlers
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
