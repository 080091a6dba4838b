package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// ConnManager upgrades HTTP requests to websocket connections and tracks
// them per user. Events read from every connection are merged into one
// stream returned by Receive.
type ConnManager struct {
	conns   map[string][]*Conn
	nextID  int
	mu      sync.RWMutex
	connWg  *sync.WaitGroup
	context context.Context
	logger  *slog.Logger

	onUserConnected    func(string)
	onUserDisconnected func(string)

	onConnectionOpened func(*Conn)
	onConnectionClosed func(*Conn)

	receivedEvent chan *Event

	upgrader        websocket.Upgrader
	eventLimit      rate.Limit
	eventBurst      int
	ReadStreamSize  int
	WriteStreamSize int
}

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ManagerOption func(*ConnManager)

func WithCheckOrigin(f func(r *http.Request) bool) ManagerOption {
	return func(m *ConnManager) {
		m.upgrader.CheckOrigin = f
	}
}

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *ConnManager) {
		m.logger = l
	}
}

// WithEventRate limits how many events a single connection may submit.
// Events over the limit are answered with an error event and dropped.
// A non-positive perSecond disables limiting.
func WithEventRate(perSecond float64, burst int) ManagerOption {
	return func(m *ConnManager) {
		if perSecond <= 0 {
			m.eventLimit = rate.Inf
			return
		}
		m.eventLimit = rate.Limit(perSecond)
		m.eventBurst = burst
	}
}

func NewConnManager(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, opts ...ManagerOption) *ConnManager {
	m := &ConnManager{
		connWg:             wg,
		conns:              make(map[string][]*Conn),
		logger:             logger,
		context:            ctx,
		upgrader:           defaultUpgrader,
		eventLimit:         rate.Inf,
		ReadStreamSize:     100,
		WriteStreamSize:    100,
		onUserConnected:    func(string) {},
		onUserDisconnected: func(string) {},
		onConnectionOpened: func(*Conn) {},
		onConnectionClosed: func(*Conn) {},
	}

	for _, opt := range opts {
		opt(m)
	}

	m.receivedEvent = make(chan *Event, m.ReadStreamSize)

	return m
}

func (m *ConnManager) Receive() <-chan *Event {
	return m.receivedEvent
}

func (m *ConnManager) OnUserConnected(f func(string)) {
	m.onUserConnected = f
}

func (m *ConnManager) OnUserDisconnected(f func(string)) {
	m.onUserDisconnected = f
}

func (m *ConnManager) OnConnectionOpened(f func(*Conn)) {
	m.onConnectionOpened = f
}

// OnConnectionClosed is called once for every closed connection.
func (m *ConnManager) OnConnectionClosed(f func(*Conn)) {
	m.onConnectionClosed = f
}

func (m *ConnManager) IsUserConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[userID]
	return ok
}

func (m *ConnManager) Connect(userID string, w http.ResponseWriter, r *http.Request) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		return err
	}

	m.mu.Lock()
	conns := m.conns[userID]
	m.nextID++
	id := m.nextID
	wsConn := &Conn{
		userID:      userID,
		id:          id,
		conn:        conn,
		context:     m.context,
		writeStream: make(chan *Event, m.WriteStreamSize),
		readStream:  m.receivedEvent,
		ticker:      time.NewTicker(pingPeriod),
		logger:      m.logger.With(slog.String("connection", fmt.Sprintf("%s:%d", userID, id))),
		notifyDisconnect: func() {
			m.disconnect(userID, id)
		},
	}
	if m.eventLimit != rate.Inf {
		wsConn.limiter = rate.NewLimiter(m.eventLimit, m.eventBurst)
	}
	m.conns[userID] = append(conns, wsConn)
	first := len(conns) == 0
	m.mu.Unlock()

	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.readLoop()
	}()
	m.connWg.Add(1)
	go func() {
		defer m.connWg.Done()
		wsConn.writeLoop()
	}()

	if first {
		m.onUserConnected(userID)
	}
	m.onConnectionOpened(wsConn)

	return nil
}

// disconnect closes the given connections of userID, or all of them when ids is empty.
func (m *ConnManager) disconnect(userID string, ids ...int) {
	m.mu.Lock()
	conns, ok := m.conns[userID]
	if !ok {
		m.mu.Unlock()
		return
	}

	var closed []*Conn
	if len(ids) == 0 {
		closed = conns
		delete(m.conns, userID)
	} else {
		conns = slices.DeleteFunc(conns, func(c *Conn) bool {
			if slices.Contains(ids, c.id) {
				closed = append(closed, c)
				return true
			}
			return false
		})
		if len(conns) == 0 {
			delete(m.conns, userID)
		} else {
			m.conns[userID] = conns
		}
	}
	_, stillConnected := m.conns[userID]
	m.mu.Unlock()

	for _, c := range closed {
		c.close()
		m.onConnectionClosed(c)
	}
	if len(closed) > 0 && !stillConnected {
		m.onUserDisconnected(userID)
	}
}

// CloseAll closes every connection.
func (m *ConnManager) CloseAll() {
	m.mu.RLock()
	users := make([]string, 0, len(m.conns))
	for u := range m.conns {
		users = append(users, u)
	}
	m.mu.RUnlock()
	for _, u := range users {
		m.disconnect(u)
	}
}
