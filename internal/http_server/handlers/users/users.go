package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"stox_auth/internal/auth"
	resp "stox_auth/internal/lib/api/response"
	sl "stox_auth/internal/lib/logger"
)

type UserInfo struct {
	ID             int64     `json:"id"`
	BusinessName   string    `json:"businessName"`
	BusinessNumber string    `json:"businessNumber"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address"`
	TransitNumber  string    `json:"transitNumber"`
	CreatedAt      time.Time `json:"createdAt"`
}

type ListResponse struct {
	resp.Response
	Users []UserInfo `json:"users"`
}

// NewList returns every non-deleted account, password hashes excluded.
func NewList(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewList"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		list, err := authService.Users(ctx)
		if err != nil {
			log.Error("failed to list users", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		infos := make([]UserInfo, 0, len(list))
		for _, u := range list {
			infos = append(infos, UserInfo{
				ID:             u.ID,
				BusinessName:   u.BusinessName,
				BusinessNumber: u.BusinessNumber,
				Email:          u.Email,
				Phone:          u.Phone,
				Address:        u.Address,
				TransitNumber:  u.TransitNumber,
				CreatedAt:      u.CreatedAt,
			})
		}

		render.JSON(w, r, ListResponse{
			Response: resp.OK(),
			Users:    infos,
		})
	}
}

// NewDelete soft-deletes an account and revokes its sessions.
func NewDelete(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.NewDelete"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid user id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := authService.RemoveUser(ctx, userID); err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to remove user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user removed", slog.Int64("uid", userID))

		render.NoContent(w, r)
	}
}
