package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber is a live connection that can receive room events.
type Subscriber interface {
	SubscriberID() string
	// Send queues e for delivery without blocking. It returns false if e was dropped.
	Send(e *Event) bool
}

// Broadcaster fans a payload out to every subscriber of a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID string, payload any) error
}

// Relay carries room events between broker instances.
type Relay interface {
	Publish(ctx context.Context, roomID string, e *Event) error
	// Subscribe calls ready on the calling goroutine once the subscription is
	// confirmed, then deliver for every event published by any instance,
	// including this one. It returns when ctx is done or the subscription breaks.
	Subscribe(ctx context.Context, ready func(), deliver func(roomID string, e *Event)) error
}

// JoinRoomPayload is fanned out to a room when a connection joins it.
type JoinRoomPayload struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type brokerJoin struct {
	roomID string
	sub    Subscriber
}

type brokerLeave struct {
	roomID string
	sub    Subscriber
	// all removes sub from every room and ignores roomID
	all bool
}

type brokerDelivery struct {
	roomID string
	event  *Event
}

type brokerQuery struct {
	roomID string
	reply  chan []Subscriber
}

// Broker owns the room to subscriber mapping. The mapping is only touched by
// the goroutine started in Start; every other method talks to it over channels.
// Events delivered to a room reach each subscriber in the order they were delivered.
type Broker struct {
	rooms map[string]map[Subscriber]struct{}

	joins      chan brokerJoin
	leaves     chan brokerLeave
	deliveries chan brokerDelivery
	queries    chan brokerQuery

	// relayUp is set while the relay subscription is live. Broadcasts only go
	// through the relay then; otherwise they are delivered locally.
	relay     Relay
	relayUp   atomic.Bool
	relayDone chan struct{}
	retryMin  time.Duration
	retryMax  time.Duration
	cancel    context.CancelFunc
	logger    *slog.Logger

	exit chan struct{}
	done chan struct{}
}

type BrokerOption func(*Broker)

func WithRelay(r Relay) BrokerOption {
	return func(b *Broker) {
		b.relay = r
	}
}

// WithRelayRetry sets the backoff between relay subscription attempts.
func WithRelayRetry(minWait, maxWait time.Duration) BrokerOption {
	return func(b *Broker) {
		b.retryMin = minWait
		b.retryMax = maxWait
	}
}

func WithBrokerLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = l
	}
}

func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		rooms:      make(map[string]map[Subscriber]struct{}),
		joins:      make(chan brokerJoin),
		leaves:     make(chan brokerLeave),
		deliveries: make(chan brokerDelivery, 256),
		queries:    make(chan brokerQuery),
		logger:     slog.Default(),
		retryMin:   100 * time.Millisecond,
		retryMax:   10 * time.Second,
		relayDone:  make(chan struct{}),
		exit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start runs the broker until ctx is done or Close is called. With a relay it
// returns once the first subscription attempt has either been confirmed or failed.
func (b *Broker) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	go b.run(ctx)
	if b.relay == nil {
		close(b.relayDone)
		return
	}

	first := make(chan struct{})
	go b.runRelay(ctx, first)
	select {
	case <-first:
	case <-ctx.Done():
	}
}

// runRelay keeps the relay subscription alive, retrying with exponential backoff.
func (b *Broker) runRelay(ctx context.Context, first chan struct{}) {
	defer close(b.relayDone)
	var once sync.Once
	attempted := func() { once.Do(func() { close(first) }) }
	defer attempted()

	wait := b.retryMin
	for {
		err := b.relay.Subscribe(ctx, func() {
			b.relayUp.Store(true)
			wait = b.retryMin
			attempted()
		}, b.deliver)
		b.relayUp.Store(false)
		attempted()
		if ctx.Err() != nil {
			return
		}
		b.logger.Error(fmt.Sprintf("relay subscription lost, delivering locally: %v", err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait = min(wait*2, b.retryMax)
	}
}

// RelayUp reports whether broadcasts currently travel through the relay.
func (b *Broker) RelayUp() bool {
	return b.relayUp.Load()
}

func (b *Broker) run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.exit:
			return
		case j := <-b.joins:
			subs, ok := b.rooms[j.roomID]
			if !ok {
				subs = make(map[Subscriber]struct{})
				b.rooms[j.roomID] = subs
			}
			subs[j.sub] = struct{}{}
		case l := <-b.leaves:
			if l.all {
				for roomID := range b.rooms {
					b.remove(roomID, l.sub)
				}
			} else {
				b.remove(l.roomID, l.sub)
			}
		case d := <-b.deliveries:
			for sub := range b.rooms[d.roomID] {
				if !sub.Send(d.event) {
					b.logger.Warn("dropped event", slog.String("room", d.roomID), slog.String("subscriber", sub.SubscriberID()))
				}
			}
		case q := <-b.queries:
			subs := make([]Subscriber, 0, len(b.rooms[q.roomID]))
			for sub := range b.rooms[q.roomID] {
				subs = append(subs, sub)
			}
			q.reply <- subs
		}
	}
}

func (b *Broker) remove(roomID string, sub Subscriber) {
	subs, ok := b.rooms[roomID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.rooms, roomID)
	}
}

// Close stops the broker and waits for its goroutines to return.
func (b *Broker) Close() {
	select {
	case <-b.exit:
	default:
		close(b.exit)
	}
	if b.cancel != nil {
		b.cancel()
	}
	<-b.done
	<-b.relayDone
}

// Join subscribes sub to roomID and announces userID to everyone in the room,
// sub included. Joining twice is harmless.
func (b *Broker) Join(ctx context.Context, roomID, userID string, sub Subscriber) error {
	select {
	case b.joins <- brokerJoin{roomID: roomID, sub: sub}:
	case <-b.done:
		return fmt.Errorf("broker closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.Broadcast(ctx, roomID, JoinRoomPayload{Type: JoinRoomEvent, UserID: userID})
}

func (b *Broker) Leave(roomID string, sub Subscriber) {
	select {
	case b.leaves <- brokerLeave{roomID: roomID, sub: sub}:
	case <-b.done:
	}
}

// LeaveAll removes sub from every room. It is called when a connection closes.
func (b *Broker) LeaveAll(sub Subscriber) {
	select {
	case b.leaves <- brokerLeave{sub: sub, all: true}:
	case <-b.done:
	}
}

// Broadcast wraps payload in a message event and fans it out to roomID.
// Delivery is best effort: slow subscribers drop events instead of blocking.
func (b *Broker) Broadcast(ctx context.Context, roomID string, payload any) error {
	e, err := NewEvent(MessageEvent, payload)
	if err != nil {
		return err
	}
	if b.relay != nil && b.relayUp.Load() {
		err := b.relay.Publish(ctx, roomID, e)
		if err == nil {
			return nil
		}
		b.logger.Error(fmt.Sprintf("relay publish, delivering locally: %v", err))
	}
	b.deliver(roomID, e)
	return nil
}

func (b *Broker) deliver(roomID string, e *Event) {
	select {
	case b.deliveries <- brokerDelivery{roomID: roomID, event: e}:
	case <-b.done:
	}
}

// Subscribers returns the current subscribers of roomID.
func (b *Broker) Subscribers(roomID string) []Subscriber {
	reply := make(chan []Subscriber, 1)
	select {
	case b.queries <- brokerQuery{roomID: roomID, reply: reply}:
		return <-reply
	case <-b.done:
		return nil
	}
}
