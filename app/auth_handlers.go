package chatroom

import (
	"net/http"

	"github.com/putto11262002/chatroom/core"
	"github.com/putto11262002/chatroom/pkg/router"
)

type AuthHandler struct {
	store core.AuthStore
}

func NewAuthHandler(store core.AuthStore) *AuthHandler {
	return &AuthHandler{store: store}
}

type SigninPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SigninHandler returns a token with a fixed lifetime and sets it as a cookie
// so that browsers can authenticate the websocket handshake.
func (h *AuthHandler) SigninHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SigninPayload
	if err := decodeJSON(r, &payload); err != nil {
		return err
	}

	session, err := h.store.NewSession(r.Context(), payload.Username, payload.Password)
	if err != nil {
		return err
	}

	http.SetCookie(w, core.SessionCookie(*session, true, "/"))
	return router.JSON(w, http.StatusOK, session)
}
