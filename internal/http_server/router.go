package httpserver

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"

	"stox_auth/internal/auth"
	"stox_auth/internal/config"
	checkEmail "stox_auth/internal/http_server/handlers/check_email"
	forgotPassword "stox_auth/internal/http_server/handlers/forgot_password"
	"stox_auth/internal/http_server/handlers/login"
	"stox_auth/internal/http_server/handlers/logout"
	"stox_auth/internal/http_server/handlers/refresh"
	"stox_auth/internal/http_server/handlers/register"
	resetPassword "stox_auth/internal/http_server/handlers/reset_password"
	userActivity "stox_auth/internal/http_server/handlers/user_activity"
	"stox_auth/internal/http_server/handlers/users"
	"stox_auth/internal/middleware/jwtauth"
	rateLimit "stox_auth/internal/middleware/ratelimit"
)

// NewRouter wires every endpoint. The denylist may be nil when redis is
// disabled; logout then relies on refresh-token revocation alone.
func NewRouter(
	log *slog.Logger,
	authService *auth.Auth,
	jwtCfg config.JWT,
	denylist jwtauth.Denylist,
) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(r chi.Router) {
		r.With(rateLimit.Register()).Post("/register",
			register.New(log, validate, authService),
		)
		r.With(rateLimit.Login()).Post("/login",
			login.New(log, validate, authService),
		)
		r.With(rateLimit.Refresh()).Post("/refresh-token",
			refresh.New(log, validate, authService),
		)
		r.With(rateLimit.CheckEmail()).Post("/check-email",
			checkEmail.New(log, validate, authService),
		)
		r.With(rateLimit.ForgotPassword()).Post("/forgot-password",
			forgotPassword.New(log, validate, authService),
		)
		r.With(rateLimit.ResetPassword()).Post("/reset-password",
			resetPassword.New(log, validate, authService),
		)

		r.Group(func(r chi.Router) {
			r.Use(jwtauth.New(log, jwtCfg, denylist))
			r.With(rateLimit.Logout()).Post("/logout",
				logout.New(log, authService),
			)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(jwtauth.New(log, jwtCfg, denylist))
		r.Use(jwtauth.RequireRole(auth.RoleAdmin))

		r.Get("/user-activity", userActivity.New(log, authService))
		r.Get("/users", users.NewList(log, authService))
		r.Delete("/users/{id}", users.NewDelete(log, authService))
	})

	return r
}
