package jwtauth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"

	"stox_auth/internal/config"
	resp "stox_auth/internal/lib/api/response"
	"stox_auth/internal/lib/jwt"
	sl "stox_auth/internal/lib/logger"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	roleKey
)

// Denylist reports the cutoff before which a user's access tokens were
// revoked by logout. Optional.
type Denylist interface {
	TokensDeniedSince(ctx context.Context, userID int64) (time.Time, bool, error)
}

// New validates the Bearer token and puts the identity claims on the request
// context. A denylist hit rejects tokens issued at or before the logout
// cutoff; a denylist outage fails open so auth does not depend on the cache.
func New(log *slog.Logger, cfg config.JWT, denylist Denylist) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.jwtauth"

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				unauthorized(w, r)
				return
			}

			claims, err := jwt.ParseAccessToken(strings.TrimPrefix(authHeader, "Bearer "), cfg)
			if err != nil {
				log.Warn("rejected access token", slog.String("op", op), sl.Err(err))
				unauthorized(w, r)
				return
			}

			if denylist != nil {
				cutoff, found, err := denylist.TokensDeniedSince(r.Context(), claims.UserID)
				if err != nil {
					log.Warn("denylist unavailable", slog.String("op", op), sl.Err(err))
				} else if found && !claims.IssuedAt.After(cutoff) {
					unauthorized(w, r)
					return
				}
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			ctx = context.WithValue(ctx, roleKey, claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route group on the role claim set by New.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := Role(r.Context())
			if !ok || got != role {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Forbidden"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

func Role(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(roleKey).(string)
	return role, ok
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, resp.Error("Unauthorized"))
}
