package userActivity

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
	"stox_auth/internal/models"
)

type Entry struct {
	UserID       int64     `json:"userId"`
	BusinessName string    `json:"businessName"`
	Action       string    `json:"action,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type Response struct {
	resp.Response
	UsersLoggedInToday []Entry `json:"usersLoggedInToday"`
	LatestLogs         []Entry `json:"latestLogs"`
}

// New serves the admin dashboard: today's logins plus the latest activity.
func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.user_activity.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		panel, err := authService.UserActivityPanel(ctx)
		if err != nil {
			log.Error("failed to load activity panel", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response:           resp.OK(),
			UsersLoggedInToday: toEntries(panel.LoggedInToday),
			LatestLogs:         toEntries(panel.Latest),
		})
	}
}

func toEntries(in []models.ActivityEntry) []Entry {
	out := make([]Entry, 0, len(in))
	for _, e := range in {
		out = append(out, Entry{
			UserID:       e.UserID,
			BusinessName: e.BusinessName,
			Action:       e.Action,
			Timestamp:    e.Timestamp,
		})
	}
	return out
}
