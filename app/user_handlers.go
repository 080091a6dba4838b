package chatroom

import (
	"fmt"
	"net/http"

	"github.com/putto11262002/chatroom/core"
	"github.com/putto11262002/chatroom/pkg/router"
)

type UserHandler struct {
	store core.UserStore
}

func NewUserHandler(store core.UserStore) *UserHandler {
	return &UserHandler{store: store}
}

type RegisterUserResponse struct {
	ID string `json:"id"`
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) error {
	var user core.User
	if err := decodeJSON(r, &user); err != nil {
		return err
	}

	id, err := h.store.CreateUser(r.Context(), user)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusCreated, RegisterUserResponse{ID: id})
}

func (h *UserHandler) MeHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	user, err := h.store.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		return fmt.Errorf("GetUserByID: %w", err)
	}
	if user == nil {
		return core.ErrUserNotFound
	}
	return router.JSON(w, http.StatusOK, user)
}

func (h *UserHandler) GetUserByUsernameHandler(w http.ResponseWriter, r *http.Request) error {
	user, err := h.store.GetUserByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		return fmt.Errorf("GetUserByUsername: %w", err)
	}
	if user == nil {
		return core.ErrUserNotFound
	}
	return router.JSON(w, http.StatusOK, user)
}
