package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/leenbank/leenbank/internal/auth"
	"github.com/leenbank/leenbank/internal/model"
	"github.com/leenbank/leenbank/internal/policy"
	"github.com/leenbank/leenbank/internal/store"
)

type contextKey string

const claimsKey contextKey = "claims"

// AuthMiddleware validates the bearer token, rejects revoked tokens and tokens
// of deleted accounts, and adds the claims to the request context.
func AuthMiddleware(issuer *auth.Issuer, db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, r, fmt.Errorf("missing or invalid authorization header: %w", model.ErrUnauthenticated))
				return
			}

			claims, err := issuer.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, r, fmt.Errorf("invalid token: %w", model.ErrUnauthenticated))
				return
			}

			revoked, err := store.IsTokenRevoked(r.Context(), db, claims.ID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if revoked {
				writeError(w, r, fmt.Errorf("token has been revoked: %w", model.ErrUnauthenticated))
				return
			}

			user, err := store.GetUser(r.Context(), db, claims.UserID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if user == nil {
				writeError(w, r, fmt.Errorf("account no longer exists: %w", model.ErrUnauthenticated))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that only lets the given role through.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				writeError(w, r, model.ErrUnauthenticated)
				return
			}
			if claims.Role != role {
				writeError(w, r, fmt.Errorf("insufficient permissions: %w", model.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims retrieves the JWT claims from the context.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// actorFrom returns the authenticated caller. Routes behind AuthMiddleware
// always have one.
func actorFrom(r *http.Request) policy.Actor {
	if claims := GetClaims(r.Context()); claims != nil {
		return claims.Actor()
	}
	return policy.Actor{}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs HTTP requests with method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}
