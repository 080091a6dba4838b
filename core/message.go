package core

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// MessageType determines how the content of a message is interpreted.
type MessageType int

const (
	_ MessageType = iota
	// TextMessage content is a UTF-8 string.
	TextMessage
	// ImageMessage content is the URL of an uploaded image.
	ImageMessage
	// FileMessage content is the URL of an uploaded file.
	FileMessage
)

var messageTypeTokens = map[MessageType]string{
	TextMessage:  "text",
	ImageMessage: "image",
	FileMessage:  "file",
}

// ParseMessageType maps the wire token to a MessageType.
// Unknown tokens return ErrInvalidMessageType.
func ParseMessageType(token string) (MessageType, error) {
	for t, tok := range messageTypeTokens {
		if tok == token {
			return t, nil
		}
	}
	return 0, ErrInvalidMessageType
}

func (t MessageType) String() string {
	if tok, ok := messageTypeTokens[t]; ok {
		return tok
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

func (t MessageType) Valid() bool {
	_, ok := messageTypeTokens[t]
	return ok
}

func (t MessageType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, ErrInvalidMessageType
	}
	return []byte(t.String()), nil
}

func (t *MessageType) UnmarshalText(b []byte) error {
	parsed, err := ParseMessageType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t MessageType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, ErrInvalidMessageType
	}
	return t.String(), nil
}

func (t *MessageType) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	default:
		return fmt.Errorf("scan MessageType: unsupported type %T", src)
	}
}

// Message is an entry of the history log. It is never mutated once written.
type Message struct {
	ID        int64       `json:"id"`
	RoomID    string      `json:"roomId"`
	SenderID  string      `json:"senderId"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// MessageWithSender is a message joined with the public profile of its sender.
// Sender is nil if the sender no longer resolves.
type MessageWithSender struct {
	Message
	Sender *UserSummary `json:"sender"`
}

// HistoryLog is the append-only per room message store.
type HistoryLog interface {
	// Append stores a message with a server assigned id and timestamp.
	// It does not check that the room or the sender exist.
	Append(ctx context.Context, roomID, senderID string, t MessageType, content string) (*Message, error)

	// List returns every message of the room oldest first, each joined with its sender.
	List(ctx context.Context, roomID string) ([]MessageWithSender, error)
}

// withSenders resolves the distinct senders of messages in one call and joins them in memory.
func withSenders(ctx context.Context, users UserStore, messages []Message) ([]MessageWithSender, error) {
	res := make([]MessageWithSender, 0, len(messages))
	if len(messages) == 0 {
		return res, nil
	}

	ids := lo.Uniq(lo.Map(messages, func(m Message, _ int) string { return m.SenderID }))
	senders, err := users.GetUsersByIDs(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("GetUsersByIDs: %w", err)
	}
	byID := lo.KeyBy(senders, func(u UserSummary) string { return u.ID })

	for _, m := range messages {
		mws := MessageWithSender{Message: m}
		if u, ok := byID[m.SenderID]; ok {
			mws.Sender = &u
		}
		res = append(res, mws)
	}
	return res, nil
}
