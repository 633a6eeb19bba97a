package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/authd/internal/apperrors"
	"github.com/nkiryanov/authd/internal/handlers/render"
	"github.com/nkiryanov/authd/internal/handlers/userctx"
	"github.com/nkiryanov/authd/internal/models"
)

type userService interface {
	ChangePassword(ctx context.Context, userID int64, current string, newPassword string) (models.User, error)
	ChangeEmail(ctx context.Context, email string, password string, newEmail string) (models.User, error)
}

type UserHandler struct {
	userService userService
}

func NewUser(user userService) *UserHandler {
	return &UserHandler{userService: user}
}

func (h *UserHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /me", h.me)
	mux.HandleFunc("PUT /password", h.changePassword)
	mux.HandleFunc("PUT /email", h.changeEmail)

	return mux
}

// UserResponse never carries the password hash
type UserResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
	}
}

func (h *UserHandler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	render.JSON(w, newUserResponse(user))
}

func (h *UserHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	type ChangePasswordRequest struct {
		Password    string `json:"password" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=8"`
	}

	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := render.BindAndValidate[ChangePasswordRequest](w, r)
	if err != nil {
		return
	}

	updated, err := h.userService.ChangePassword(r.Context(), user.ID, data.Password, data.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrBadCredentials), errors.Is(err, apperrors.ErrUserNotExists):
			render.ServiceError(w, "Incorrect email or password", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrPasswordUnchanged):
			render.ServiceError(w, "Cannot change password to the same thing", http.StatusBadRequest)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, newUserResponse(updated))
}

func (h *UserHandler) changeEmail(w http.ResponseWriter, r *http.Request) {
	type ChangeEmailRequest struct {
		Password string `json:"password" validate:"required"`
		NewEmail string `json:"newEmail" validate:"required,email"`
	}

	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := render.BindAndValidate[ChangeEmailRequest](w, r)
	if err != nil {
		return
	}

	updated, err := h.userService.ChangeEmail(r.Context(), user.Email, data.Password, data.NewEmail)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrBadCredentials), errors.Is(err, apperrors.ErrUserNotExists):
			render.ServiceError(w, "Incorrect email or password", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "A user with that email already exists", http.StatusConflict)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, newUserResponse(updated))
}
