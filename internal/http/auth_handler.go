package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_storefront/domain"
	"github.com/fjod/go_storefront/internal/client"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuthService interface {
	Signup(ctx context.Context, name, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, error)
}

type AuthHandler struct {
	auth     AuthService
	sessions *Sessions
	validate *validator.Validate
	timeout  time.Duration
	logger   *zap.Logger
}

func NewAuthHandler(auth AuthService, sessions *Sessions, timeout time.Duration, l *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		timeout:  timeout,
		logger:   l,
	}
}

type SignupRequestDTO struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequestDTO struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponseDTO struct {
	User  *domain.User `json:"user,omitempty"`
	Token string       `json:"token,omitempty"`
}

// POST /api/v1/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignupRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", "please fill in all fields correctly")
		return
	}

	user, err := h.auth.Signup(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		h.authError(w, err)
		return
	}
	h.login(w, r, user, http.StatusCreated)
}

// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LoginRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", "please fill in all fields correctly")
		return
	}

	user, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.authError(w, err)
		return
	}
	h.login(w, r, user, http.StatusOK)
}

// POST /api/v1/auth/logout
// The session id, and with it the cart, is kept.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		session.ID = uuid.NewString()
	}
	token, err := h.sessions.Issue(w, domain.Session{ID: session.ID})
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	respondJSON(w, http.StatusOK, AuthResponseDTO{Token: token})
}

// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFromContext(r.Context())
	if !ok || session.IsGuest() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "not logged in")
		return
	}
	respondJSON(w, http.StatusOK, AuthResponseDTO{User: &domain.User{
		ID:    session.UserID,
		Name:  session.Name,
		Email: session.Email,
	}})
}

// login binds user to the caller's current session so a guest cart survives.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, user *domain.User, status int) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		session.ID = uuid.NewString()
	}
	session.UserID = user.ID
	session.Name = user.Name
	session.Email = user.Email

	token, err := h.sessions.Issue(w, session)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	respondJSON(w, status, AuthResponseDTO{User: user, Token: token})
}

// authError keeps the status of auth service rejections (bad credentials,
// duplicate email) so the client can tell them apart.
func (h *AuthHandler) authError(w http.ResponseWriter, err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		respondError(w, apiErr.StatusCode, "auth_failed", apiErr.Error())
		return
	}
	handleError(w, err)
}
