package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/putto11262002/chatroom/core"
	"github.com/putto11262002/chatroom/core/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type pipelineMocks struct {
	history     *mocks.MockHistoryLog
	users       *mocks.MockUserStore
	memberships *mocks.MockMembershipStore
	broadcaster *mocks.MockBroadcaster
}

func newPipeline(t *testing.T, opts ...core.PipelineOption) (*core.Pipeline, pipelineMocks) {
	ctrl := gomock.NewController(t)
	m := pipelineMocks{
		history:     mocks.NewMockHistoryLog(ctrl),
		users:       mocks.NewMockUserStore(ctrl),
		memberships: mocks.NewMockMembershipStore(ctrl),
		broadcaster: mocks.NewMockBroadcaster(ctrl),
	}
	return core.NewPipeline(m.history, m.users, m.memberships, m.broadcaster, opts...), m
}

var alice = &core.UserSummary{ID: "u1", Username: "alice", Nickname: "Alice"}

// Scenario: a text message is persisted once and broadcast with its sender.
func TestPipeline_Send(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, m := newPipeline(t)

	row := &core.Message{ID: 7, RoomID: "r1", SenderID: "u1", Type: core.TextMessage, Content: "hi", CreatedAt: time.Now().UTC()}

	gomock.InOrder(
		m.memberships.EXPECT().IsMember(ctx, "r1", "u1").Return(true, nil),
		m.history.EXPECT().Append(ctx, "r1", "u1", core.TextMessage, "hi").Return(row, nil).Times(1),
		m.users.EXPECT().GetUserByID(ctx, "u1").Return(alice, nil),
		m.broadcaster.EXPECT().Broadcast(ctx, "r1", gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, payload any) error {
				p, ok := payload.(core.SendMessagePayload)
				req.True(ok)
				req.Equal("sendMessage", p.Type)
				req.Equal("u1", p.UserID)
				req.Equal(*row, p.Message.Message)
				req.NotNil(p.Message.Sender)
				req.Equal("u1", p.Message.Sender.ID)
				return nil
			}),
	)

	got, err := p.Send(ctx, core.SendInput{SenderID: "u1", RoomID: "r1", Type: "text", Content: "hi"})
	req.NoError(err)
	req.Equal(int64(7), got.ID)
	req.Equal(alice, got.Sender)
}

func TestPipeline_AppendFailureSkipsBroadcast(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, m := newPipeline(t)

	m.memberships.EXPECT().IsMember(ctx, "r1", "u1").Return(true, nil)
	m.history.EXPECT().Append(ctx, "r1", "u1", core.ImageMessage, "https://example.com/a.png").
		Return(nil, errors.New("disk full"))
	m.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := p.Send(ctx, core.SendInput{SenderID: "u1", RoomID: "r1", Type: "image", Content: "https://example.com/a.png"})
	req.Error(err)
}

func TestPipeline_InvalidType(t *testing.T) {
	req := require.New(t)
	p, _ := newPipeline(t)

	_, err := p.Send(context.Background(), core.SendInput{SenderID: "u1", RoomID: "r1", Type: "video", Content: "x"})
	req.ErrorIs(err, core.ErrInvalidMessageType)
	req.Equal(core.KindValidation, core.KindOf(err))
}

// Blank content is rejected before anything is stored or broadcast.
func TestPipeline_BlankContent(t *testing.T) {
	req := require.New(t)
	p, m := newPipeline(t)
	m.history.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := p.Send(context.Background(), core.SendInput{SenderID: "u1", RoomID: "r1", Type: "text", Content: content})
		req.Equal(core.KindValidation, core.KindOf(err), "content %q", content)
	}
}

func TestPipeline_NotMember(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, m := newPipeline(t)

	m.memberships.EXPECT().IsMember(ctx, "r1", "u1").Return(false, nil)

	_, err := p.Send(ctx, core.SendInput{SenderID: "u1", RoomID: "r1", Type: "text", Content: "hi"})
	req.ErrorIs(err, core.ErrNotMember)
	req.Equal(core.KindForbidden, core.KindOf(err))
}

func TestPipeline_MembershipCheckDisabled(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, m := newPipeline(t, core.WithMembershipCheck(false))

	m.history.EXPECT().Append(ctx, "r1", "u1", core.FileMessage, "https://example.com/a.pdf").
		Return(&core.Message{ID: 1, RoomID: "r1", SenderID: "u1", Type: core.FileMessage}, nil)
	m.users.EXPECT().GetUserByID(ctx, "u1").Return(alice, nil)
	m.broadcaster.EXPECT().Broadcast(ctx, "r1", gomock.Any()).Return(nil)

	_, err := p.Send(ctx, core.SendInput{SenderID: "u1", RoomID: "r1", Type: "file", Content: "https://example.com/a.pdf"})
	req.NoError(err)
}

func TestPipeline_BroadcastFailureDoesNotFailSend(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, m := newPipeline(t, core.WithMembershipCheck(false))

	m.history.EXPECT().Append(ctx, "r1", "u1", core.TextMessage, "hi").
		Return(&core.Message{ID: 1, RoomID: "r1", SenderID: "u1", Type: core.TextMessage, Content: "hi"}, nil)
	m.users.EXPECT().GetUserByID(ctx, "u1").Return(nil, errors.New("lookup failed"))
	m.broadcaster.EXPECT().Broadcast(ctx, "r1", gomock.Any()).Return(errors.New("marshal"))

	got, err := p.Send(ctx, core.SendInput{SenderID: "u1", RoomID: "r1", Type: "text", Content: "hi"})
	req.NoError(err)
	req.Nil(got.Sender)
}

// Broadcasts for one room follow the order of appends.
func TestPipeline_PerRoomOrdering(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p, m := newPipeline(t, core.WithMembershipCheck(false))

	var mu sync.Mutex
	var next int64
	var broadcast []int64

	m.history.EXPECT().Append(ctx, "r1", "u1", core.TextMessage, "hi").DoAndReturn(
		func(_ context.Context, roomID, senderID string, t core.MessageType, content string) (*core.Message, error) {
			mu.Lock()
			next++
			id := next
			mu.Unlock()
			// widen the window between append and broadcast
			time.Sleep(time.Millisecond)
			return &core.Message{ID: id, RoomID: roomID, SenderID: senderID, Type: t, Content: content}, nil
		}).Times(20)
	m.users.EXPECT().GetUserByID(ctx, "u1").Return(alice, nil).Times(20)
	m.broadcaster.EXPECT().Broadcast(ctx, "r1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, payload any) error {
			mu.Lock()
			broadcast = append(broadcast, payload.(core.SendMessagePayload).Message.ID)
			mu.Unlock()
			return nil
		}).Times(20)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Send(ctx, core.SendInput{SenderID: "u1", RoomID: "r1", Type: "text", Content: "hi"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	req.Len(broadcast, 20)
	for i := 1; i < len(broadcast); i++ {
		req.Less(broadcast[i-1], broadcast[i])
	}
}
