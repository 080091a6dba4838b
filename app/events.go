package chatroom

import (
	"context"
	"encoding/json"

	"github.com/putto11262002/chatroom/core"
)

type JoinRoomEventPayload struct {
	ChatroomID string `json:"chatroomId" validate:"required"`
	// UserID must match the authenticated user when set.
	UserID string `json:"userId"`
}

type SendMessageEventPayload struct {
	SendUserID string `json:"sendUserId"`
	ChatroomID string `json:"chatroomId" validate:"required"`
	Message    struct {
		Type    string `json:"type" validate:"required"`
		Content string `json:"content" validate:"required"`
	} `json:"message"`
}

var errImpersonation = core.NewError(core.KindForbidden, "user id does not match the connection")

func decodeEvent(e *core.Event, v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return core.ValidationError("malformed %s payload", e.Name)
	}
	if err := validate.Struct(v); err != nil {
		return core.ValidationError("%s", validationMessage(err))
	}
	return nil
}

// JoinRoomEventHandler subscribes the connection to the room channel.
// Subscribing does not require a membership.
func (app *App) JoinRoomEventHandler(ctx context.Context, e *core.Event) error {
	var payload JoinRoomEventPayload
	if err := decodeEvent(e, &payload); err != nil {
		return err
	}
	if payload.UserID != "" && payload.UserID != e.Dispatcher {
		return errImpersonation
	}
	return app.broker.Join(ctx, payload.ChatroomID, e.Dispatcher, e.Source)
}

func (app *App) SendMessageEventHandler(ctx context.Context, e *core.Event) error {
	var payload SendMessageEventPayload
	if err := decodeEvent(e, &payload); err != nil {
		return err
	}
	if payload.SendUserID != "" && payload.SendUserID != e.Dispatcher {
		return errImpersonation
	}

	_, err := app.pipeline.Send(ctx, core.SendInput{
		SenderID: e.Dispatcher,
		RoomID:   payload.ChatroomID,
		Type:     payload.Message.Type,
		Content:  payload.Message.Content,
	})
	return err
}
