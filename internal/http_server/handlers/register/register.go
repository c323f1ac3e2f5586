package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"stox_auth/internal/auth"
	resp "stox_auth/internal/lib/api/response"
	sl "stox_auth/internal/lib/logger"
)

type Request struct {
	BusinessName   string `json:"businessName" validate:"required"`
	BusinessNumber string `json:"businessNumber"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	Transit        string `json:"transit"`
	Password       string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	Role         string `json:"role"`
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		pair, role, err := authService.Register(ctx, auth.RegisterParams{
			BusinessName:   req.BusinessName,
			BusinessNumber: req.BusinessNumber,
			Email:          req.Email,
			Phone:          req.Phone,
			Address:        req.Address,
			Transit:        req.Transit,
			Password:       req.Password,
		})
		if err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("User already exists."))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("User registered")

		ResponseOK(w, r, pair, role)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, pair auth.TokenPair, role string) {
	render.JSON(w, r, Response{
		Response:     resp.OK(),
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Role:         role,
	})
}
