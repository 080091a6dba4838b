package chatroom

import (
	"net/http"

	"github.com/putto11262002/chatroom/core"
	"github.com/putto11262002/chatroom/pkg/router"
)

type MessageHandler struct {
	history  core.HistoryLog
	pipeline *core.Pipeline
}

func NewMessageHandler(history core.HistoryLog, pipeline *core.Pipeline) *MessageHandler {
	return &MessageHandler{history: history, pipeline: pipeline}
}

type SendMessagePayload struct {
	Type    string `json:"type" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// ListHistoryHandler returns every message of the room, oldest first.
func (h *MessageHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) error {
	messages, err := h.history.List(r.Context(), r.PathValue("roomID"))
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusOK, messages)
}

// SendMessageHandler is the HTTP variant of the sendMessage event.
func (h *MessageHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	var payload SendMessagePayload
	if err := decodeJSON(r, &payload); err != nil {
		return err
	}

	msg, err := h.pipeline.Send(r.Context(), core.SendInput{
		SenderID: session.UserID,
		RoomID:   r.PathValue("roomID"),
		Type:     payload.Type,
		Content:  payload.Content,
	})
	if err != nil {
		return err
	}
	return router.JSON(w, http.StatusCreated, msg)
}
