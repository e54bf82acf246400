// Package middleware provides HTTP middleware for the PingUp API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pingup/pingup/internal/core"
)

type contextKey string

const subjectKey contextKey = "subject_id"

// Subject returns the authenticated subject ID stored by Auth, or ""
// when the request was not authenticated.
func Subject(ctx context.Context) string {
	id, _ := ctx.Value(subjectKey).(string)
	return id
}

// WithSubject stores a subject ID on the context; tests use it to
// fabricate authenticated requests.
func WithSubject(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, subjectKey, subjectID)
}

// Auth resolves the bearer token to a subject ID through the identity
// provider and stores it on the request context. Tokens are read from
// the Authorization header, falling back to the token query parameter
// for transports that cannot set headers (the browser EventSource API).
func Auth(identity core.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"missing credentials"}`, http.StatusUnauthorized)
				return
			}

			subjectID, err := identity.Verify(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subjectID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
		return auth
	}
	return r.URL.Query().Get("token")
}
