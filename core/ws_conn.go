package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Conn is one websocket connection of an authenticated user.
type Conn struct {
	conn             *websocket.Conn
	context          context.Context
	userID           string
	id               int
	writeStream      chan *Event
	readStream       chan *Event
	notifyDisconnect func()
	ticker           *time.Ticker
	limiter          *rate.Limiter
	logger           *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (c *Conn) SubscriberID() string {
	return fmt.Sprintf("%s:%d", c.userID, c.id)
}

func (c *Conn) UserID() string {
	return c.userID
}

// Send queues e for the write loop. It never blocks: when the connection is
// closed or its queue is full the event is dropped.
func (c *Conn) Send(e *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.writeStream <- e:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.writeStream)
}

func (c *Conn) readLoop() {
	c.logger.Info("read loop started")
	defer func() {
		c.notifyDisconnect()
		c.conn.Close()
		c.logger.Info("read loop stopped")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		format, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		if format != websocket.TextMessage {
			c.logger.Error(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		var event Event
		if err := DecodeEvent(r, &event); err != nil {
			c.logger.Error(err.Error())
			c.reject("", NewError(KindValidation, "malformed event"))
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.reject(event.Name, NewError(KindInvalidOperation, "rate limit exceeded"))
			continue
		}

		event.Dispatcher = c.userID
		event.Source = c

		c.logger.Debug(event.String())

		select {
		case c.readStream <- &event:
		case <-c.context.Done():
			return
		}
	}
}

func (c *Conn) reject(name string, err *Error) {
	e, mErr := NewEvent(ErrorEvent, ErrorEventPayload{Event: name, Code: err.Kind.String(), Message: err.Message()})
	if mErr != nil {
		return
	}
	c.Send(e)
}

func (c *Conn) writeLoop() {
	c.logger.Info("write loop started")
	var err error
	defer func() {
		c.ticker.Stop()
		if err != nil {
			c.conn.Close()
		}
		c.logger.Info("write loop stopped")
	}()

	for {
		select {
		case e, ok := <-c.writeStream:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				c.logger.Info("write stream closed, sent close message")
				return
			}

			w, werr := c.conn.NextWriter(websocket.TextMessage)
			if werr != nil {
				err = werr
				c.logger.Error(fmt.Sprintf("getting next writer: %v", err))
				return
			}
			if err := EncodeEvent(w, e); err != nil {
				c.logger.Error(err.Error())
			}
			w.Close()
		case <-c.context.Done():
			c.logger.Info("context done")
			return
		case <-c.ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("writing ping: %v", err))
				return
			}
		}
	}
}
