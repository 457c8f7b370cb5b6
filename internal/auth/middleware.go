package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey int

const claimsKey contextKey = 0

// UserID returns the authenticated caller's id from the request context.
func UserID(ctx context.Context) (string, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	if !ok {
		return "", false
	}
	return claims.UserID, true
}

func IsAdmin(ctx context.Context) bool {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return ok && claims.IsAdmin
}

// RequireUser validates the bearer token and injects the caller identity
// into the request context. The identity travels in the context rather than
// any package-level state.
func (s *Service) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		claims, err := s.ValidateToken(header)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin additionally requires the admin claim.
func (s *Service) RequireAdmin(next http.Handler) http.Handler {
	return s.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
