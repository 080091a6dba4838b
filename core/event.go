package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const (
	// JoinRoomEvent subscribes the connection to a room channel.
	JoinRoomEvent = "joinRoom"
	// SendMessageEvent persists and fans out a message.
	SendMessageEvent = "sendMessage"
	// MessageEvent carries every server to client fan-out.
	MessageEvent = "message"
	// ErrorEvent reports a rejected client event back to its connection.
	ErrorEvent = "error"
)

// Event is the websocket envelope in both directions.
type Event struct {
	ID int `json:"-"`
	// Dispatcher is the authenticated user id of the connection the event came from.
	Dispatcher string `json:"-"`
	// Source is the connection the event came from.
	Source  Subscriber      `json:"-"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{ID: %d, Dispatcher: %s, Name: %s, Payload.Size: %d}", e.ID, e.Dispatcher, e.Name, len(e.Payload))
}

// NewEvent marshals payload into an event named name.
func NewEvent(name string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{Name: name, Payload: b}, nil
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

type EventTransport interface {
	Receive() <-chan *Event
}

type EventHandler func(context.Context, *Event) error

// ErrorEventPayload is sent to a connection whose event was rejected.
type ErrorEventPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventRouter dispatches received events to the handler registered for their name.
// Every event is handled on its own goroutine; handlers must not assume ordering
// between events, even from the same connection.
type EventRouter struct {
	listeners map[string]EventHandler
	ctx       context.Context
	transport EventTransport
	logger    *slog.Logger
	wg        sync.WaitGroup
	exit      chan struct{}
}

func NewEventRouter(ctx context.Context, logger *slog.Logger, transport EventTransport) *EventRouter {
	return &EventRouter{
		listeners: make(map[string]EventHandler),
		ctx:       ctx,
		transport: transport,
		logger:    logger,
		exit:      make(chan struct{}),
	}
}

// On registers handler for events named name. It must be called before Listen.
func (em *EventRouter) On(name string, handler EventHandler) {
	em.listeners[name] = handler
}

func (em *EventRouter) Listen() {
	em.wg.Add(1)
	go func() {
		defer em.wg.Done()
		for {
			select {
			case <-em.exit:
				return
			case <-em.ctx.Done():
				return
			case e := <-em.transport.Receive():
				em.dispatch(e)
			}
		}
	}()
}

func (em *EventRouter) dispatch(e *Event) {
	em.logger.Debug(fmt.Sprintf("received: %v", e))
	handler, ok := em.listeners[e.Name]
	if !ok {
		em.reject(e, NewErrorf(KindValidation, "unknown event %q", e.Name))
		return
	}
	em.wg.Add(1)
	go func() {
		defer em.wg.Done()
		if err := handler(em.ctx, e); err != nil {
			em.logger.Error(fmt.Sprintf("%s handler: %s", e.Name, err))
			em.reject(e, err)
		}
	}()
}

// reject tells the source connection that its event failed.
func (em *EventRouter) reject(e *Event, err error) {
	if e.Source == nil {
		return
	}
	msg := "internal error"
	kind := KindOf(err)
	var cerr *Error
	if kind != KindInternal && errors.As(err, &cerr) {
		msg = cerr.Message()
	}
	out, mErr := NewEvent(ErrorEvent, ErrorEventPayload{Event: e.Name, Code: kind.String(), Message: msg})
	if mErr != nil {
		return
	}
	e.Source.Send(out)
}

// Close stops dispatching and waits for running handlers or ctx.
func (em *EventRouter) Close(ctx context.Context) {
	close(em.exit)
	done := make(chan struct{})
	go func() {
		em.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		em.logger.Error("event router: timed out waiting for handlers")
	}
}
