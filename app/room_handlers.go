package chatroom

import (
	"net/http"

	"github.com/putto11262002/chatroom/core"
	"github.com/putto11262002/chatroom/pkg/router"
)

type RoomHandler struct {
	service *core.RoomService
}

func NewRoomHandler(service *core.RoomService) *RoomHandler {
	return &RoomHandler{service: service}
}

type CreateDirectRoomPayload struct {
	FriendID string `json:"friendId" validate:"required"`
}

type CreateGroupRoomPayload struct {
	Name string `json:"name" validate:"required,max=64"`
}

type JoinRoomPayload struct {
	Username string `json:"username" validate:"required"`
}

type RoomIDResponse struct {
	RoomID string `json:"roomId"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *RoomHandler) CreateDirectRoomHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	var payload CreateDirectRoomPayload
	if err := decodeJSON(r, &payload); err != nil {
		return err
	}

	id, err := h.service.CreateDirectRoom(r.Context(), session.UserID, payload.FriendID)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusCreated, RoomIDResponse{RoomID: id})
}

func (h *RoomHandler) CreateGroupRoomHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	var payload CreateGroupRoomPayload
	if err := decodeJSON(r, &payload); err != nil {
		return err
	}

	id, err := h.service.CreateGroupRoom(r.Context(), payload.Name, session.UserID)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusCreated, RoomIDResponse{RoomID: id})
}

func (h *RoomHandler) ListRoomsHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	rooms, err := h.service.ListRoomsForUser(r.Context(), session.UserID, r.URL.Query().Get("name"))
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, rooms)
}

func (h *RoomHandler) FindDirectRoomHandler(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()
	id, err := h.service.FindDirectRoom(r.Context(), query.Get("userId1"), query.Get("userId2"))
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, RoomIDResponse{RoomID: id})
}

func (h *RoomHandler) GetRoomInfoHandler(w http.ResponseWriter, r *http.Request) error {
	info, err := h.service.GetRoomInfo(r.Context(), r.PathValue("roomID"))
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, info)
}

func (h *RoomHandler) ListMembersHandler(w http.ResponseWriter, r *http.Request) error {
	members, err := h.service.ListMembers(r.Context(), r.PathValue("roomID"))
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, members)
}

func (h *RoomHandler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) error {
	var payload JoinRoomPayload
	if err := decodeJSON(r, &payload); err != nil {
		return err
	}

	id, err := h.service.JoinGroupRoom(r.Context(), r.PathValue("roomID"), payload.Username)
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, RoomIDResponse{RoomID: id})
}

func (h *RoomHandler) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.LeaveGroupRoom(r.Context(), r.PathValue("roomID"), r.PathValue("userID")); err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, MessageResponse{Message: "left the room"})
}
