package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// SendInput is a message as submitted by a client.
type SendInput struct {
	SenderID string
	RoomID   string
	// Type is the wire token: text, image or file.
	Type    string
	Content string
}

// SendMessagePayload is fanned out to a room for every persisted message.
type SendMessagePayload struct {
	Type    string             `json:"type"`
	UserID  string             `json:"userId"`
	Message *MessageWithSender `json:"message"`
}

// Pipeline persists a message and then broadcasts it to the room.
type Pipeline struct {
	history     HistoryLog
	users       UserStore
	memberships MembershipStore
	broadcaster Broadcaster
	logger      *slog.Logger

	requireMembership bool
	// roomLocks serialises append and broadcast per room so that
	// subscribers see messages in persisted order.
	roomLocks *SyncMap[string, *sync.Mutex]
}

type PipelineOption func(*Pipeline)

func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithMembershipCheck rejects senders that are not members of the room.
func WithMembershipCheck(enabled bool) PipelineOption {
	return func(p *Pipeline) {
		p.requireMembership = enabled
	}
}

func NewPipeline(history HistoryLog, users UserStore, memberships MembershipStore, broadcaster Broadcaster, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		history:           history,
		users:             users,
		memberships:       memberships,
		broadcaster:       broadcaster,
		logger:            slog.Default(),
		requireMembership: true,
		roomLocks:         NewSyncMap[string, *sync.Mutex](),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) roomLock(roomID string) *sync.Mutex {
	if mu, ok := p.roomLocks.Load(roomID); ok {
		return mu
	}
	var mu *sync.Mutex
	p.roomLocks.LoadAndStore(roomID, func(v *sync.Mutex, ok bool) *sync.Mutex {
		if !ok {
			v = &sync.Mutex{}
		}
		mu = v
		return v
	})
	return mu
}

// Send persists in and broadcasts it. If persisting fails nothing is broadcast.
// A failed broadcast is logged and does not fail the send.
func (p *Pipeline) Send(ctx context.Context, in SendInput) (*MessageWithSender, error) {
	t, err := ParseMessageType(in.Type)
	if err != nil {
		return nil, err
	}
	if in.SenderID == "" || in.RoomID == "" {
		return nil, ValidationError("sender id and room id are required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, ValidationError("content is required")
	}

	if p.requireMembership {
		ok, err := p.memberships.IsMember(ctx, in.RoomID, in.SenderID)
		if err != nil {
			return nil, fmt.Errorf("IsMember: %w", err)
		}
		if !ok {
			return nil, ErrNotMember
		}
	}

	mu := p.roomLock(in.RoomID)
	mu.Lock()
	defer mu.Unlock()

	msg, err := p.history.Append(ctx, in.RoomID, in.SenderID, t, in.Content)
	if err != nil {
		return nil, fmt.Errorf("Append: %w", err)
	}

	out := &MessageWithSender{Message: *msg}
	sender, err := p.users.GetUserByID(ctx, in.SenderID)
	if err != nil {
		p.logger.Error(fmt.Sprintf("resolve sender %s: %v", in.SenderID, err))
	} else {
		out.Sender = sender
	}

	if err := p.broadcaster.Broadcast(ctx, in.RoomID, SendMessagePayload{
		Type:    SendMessageEvent,
		UserID:  in.SenderID,
		Message: out,
	}); err != nil {
		p.logger.Error(fmt.Sprintf("broadcast to room %s: %v", in.RoomID, err))
	}

	return out, nil
}
