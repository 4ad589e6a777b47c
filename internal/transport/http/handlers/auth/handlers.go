package authhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paycalc/internal/domain/auth"
	"paycalc/internal/transport/http/api"
	"paycalc/internal/transport/http/middleware"
	"paycalc/internal/transport/http/shared"
)

type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.Token, error)
}

type Handler struct {
	Auth Authenticator
}

func NewHandler(authenticator Authenticator) *Handler {
	return &Handler{Auth: authenticator}
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/token", h.HandleToken)
}

func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	validator := shared.NewValidator()
	validator.Required("email", payload.Email, "is required")
	validator.Required("password", payload.Password, "is required")
	if validator.Reject(w, requestID) {
		return
	}

	token, err := h.Auth.Login(r.Context(), payload.Email, payload.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", requestID)
		return
	case errors.Is(err, auth.ErrLoginDisabled):
		api.Fail(w, http.StatusServiceUnavailable, "login_disabled", "operator login is not configured", requestID)
		return
	case err != nil:
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", requestID)
		return
	}
	api.Success(w, token, requestID)
}
