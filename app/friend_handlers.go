package chatroom

import (
	"net/http"

	"github.com/putto11262002/chatroom/core"
	"github.com/putto11262002/chatroom/pkg/router"
)

type FriendHandler struct {
	service *core.FriendshipService
}

func NewFriendHandler(service *core.FriendshipService) *FriendHandler {
	return &FriendHandler{service: service}
}

type AddFriendPayload struct {
	Username string `json:"username" validate:"required"`
	Reason   string `json:"reason" validate:"max=256"`
}

func (h *FriendHandler) AddFriendHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	var payload AddFriendPayload
	if err := decodeJSON(r, &payload); err != nil {
		return err
	}

	req, err := h.service.AddFriend(r.Context(), session.UserID, payload.Username, payload.Reason)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusCreated, req)
}

func (h *FriendHandler) ListRequestsHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	list, err := h.service.ListRequests(r.Context(), session.UserID)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, list)
}

// AgreeHandler accepts the request sent by the user in the path.
func (h *FriendHandler) AgreeHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	if err := h.service.Agree(r.Context(), session.UserID, r.PathValue("userID")); err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, MessageResponse{Message: "friend added"})
}

func (h *FriendHandler) RejectHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	if err := h.service.Reject(r.Context(), session.UserID, r.PathValue("userID")); err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, MessageResponse{Message: "request rejected"})
}

func (h *FriendHandler) ListFriendsHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	friends, err := h.service.ListFriends(r.Context(), session.UserID, r.URL.Query().Get("name"))
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, friends)
}

func (h *FriendHandler) RemoveFriendHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	if err := h.service.RemoveFriend(r.Context(), session.UserID, r.PathValue("userID")); err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, MessageResponse{Message: "friend removed"})
}
