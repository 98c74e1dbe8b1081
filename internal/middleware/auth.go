package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/babynest/backend/internal/services"
	"github.com/babynest/backend/pkg/logger"
)

type sessionKey struct{}

// Authenticator resolves a bearer token to a session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*services.Session, error)
}

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *services.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the session set by RequireAuth.
func SessionFromContext(ctx context.Context) (*services.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*services.Session)
	return sess, ok && sess != nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireAuth rejects requests without a valid, unrevoked access token.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			sess, err := auth.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, services.ErrTokenExpired):
				writeError(w, http.StatusUnauthorized, "Token has expired")
				return
			case errors.Is(err, services.ErrTokenRevoked), errors.Is(err, services.ErrUnauthorized):
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			default:
				logger.Error("auth: token check failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "Unable to verify session")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}
