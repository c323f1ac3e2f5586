package logout

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"stox_auth/internal/auth"
	resp "stox_auth/internal/lib/api/response"
	sl "stox_auth/internal/lib/logger"
	"stox_auth/internal/middleware/jwtauth"
)

type Response struct {
	resp.Response
	Message string `json:"message"`
}

// New logs the event and revokes every active refresh token of the caller.
// Runs behind the jwtauth middleware; the identity comes from the access
// token claims, not the body.
func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, ok := jwtauth.UserID(r.Context())
		if !ok {
			log.Warn("missing user id claim")

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("User ID not found."))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := authService.Logout(ctx, userID); err != nil {
			log.Error("failed to logout user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user logged out")

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "Logout logged and tokens revoked.",
		})
	}
}
