package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/authd/internal/apperrors"
	"github.com/nkiryanov/authd/internal/handlers/render"
	"github.com/nkiryanov/authd/internal/models"
	"github.com/nkiryanov/authd/internal/service/auth"
)

type authService interface {
	// Register user
	// Has to return apperrors.ErrUserAlreadyExists if the email is taken
	Register(ctx context.Context, data auth.RegisterUser) (models.User, error)

	// Login user with email and password
	// Has to return apperrors.ErrUserNotExists or apperrors.ErrBadCredentials
	Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error)

	// Refresh rotates the presented refresh token
	Refresh(ctx context.Context, refresh string) (models.User, models.TokenPair, error)

	// Logout revokes the presented refresh token
	Logout(ctx context.Context, refresh string) (models.RefreshToken, error)

	// Set auth tokens (access header, refresh cookie) on the response
	SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair)

	// Get signed refresh token from the request cookie
	GetRefreshString(r *http.Request) (string, error)
}

type AuthHandler struct {
	authService authService
}

func NewAuth(auth authService) *AuthHandler {
	return &AuthHandler{authService: auth}
}

func (h *AuthHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.register)
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /refresh", h.refresh)
	mux.HandleFunc("POST /logout", h.logout)

	return mux
}

// TokenPairResponse is the body of every endpoint that issues tokens
type TokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Email     string `json:"email" validate:"required,email"`
		Password  string `json:"password" validate:"required,min=8"`
		FirstName string `json:"firstName" validate:"required,max=50"`
		LastName  string `json:"lastName" validate:"required,max=50"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		// Consider to log errors here
		return
	}

	user, err := h.authService.Register(r.Context(), auth.RegisterUser{
		Email:     data.Email,
		Password:  data.Password,
		FirstName: data.FirstName,
		LastName:  data.LastName,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "A user with that email already exists", http.StatusConflict)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSONWithStatus(w, newUserResponse(user), http.StatusCreated)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		// Consider to log errors here
		return
	}

	_, pair, err := h.authService.Login(r.Context(), data.Email, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserNotExists), errors.Is(err, apperrors.ErrBadCredentials):
			render.ServiceError(w, "Incorrect email or password", http.StatusUnauthorized)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetTokenPairToResponse(w, pair)
	render.JSON(w, TokenPairResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
	})
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	refresh, err := h.authService.GetRefreshString(r)
	if err != nil {
		render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		return
	}

	_, pair, err := h.authService.Refresh(r.Context(), refresh)
	if err != nil {
		// Consider to log errors here
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrRefreshTokenRevoked):
			render.ServiceError(w, "Refresh token revoked", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrUserMalformed):
			render.ServiceError(w, "User object is malformed", http.StatusUnprocessableEntity)
		default:
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		}
		return
	}

	h.authService.SetTokenPairToResponse(w, pair)
	render.JSONWithStatus(w, TokenPairResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
	}, http.StatusCreated)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	type LogoutSuccessResponse struct {
		Message string `json:"message"`
	}

	refresh, err := h.authService.GetRefreshString(r)
	if err != nil {
		render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		return
	}

	_, err = h.authService.Logout(r.Context(), refresh)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInternal):
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		default:
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		}
		return
	}

	render.JSON(w, LogoutSuccessResponse{Message: "Refresh token invalidated"})
}
