package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

var messageSequenceKey = []byte("seq:messages")

// BadgerHistoryLog stores messages in BadgerDB.
// Keys are "msg:{hex room_id}:{id padded to 19 digits}" so that a prefix scan
// yields one room's messages in append order. The room id is hex encoded so
// that no room's prefix is a prefix of another room's keys.
type BadgerHistoryLog struct {
	db    *badger.DB
	seq   *badger.Sequence
	users UserStore
	// mu makes id and timestamp assignment atomic so key order matches time order.
	mu sync.Mutex
}

type badgerMessage struct {
	ID        int64  `cbor:"1,keyasint"`
	RoomID    string `cbor:"2,keyasint"`
	SenderID  string `cbor:"3,keyasint"`
	Type      string `cbor:"4,keyasint"`
	Content   string `cbor:"5,keyasint"`
	CreatedAt int64  `cbor:"6,keyasint"`
}

// OpenBadgerDB opens (or creates) a Badger database in dir.
func OpenBadgerDB(dir string) (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
}

func NewBadgerHistoryLog(db *badger.DB, users UserStore) (*BadgerHistoryLog, error) {
	seq, err := db.GetSequence(messageSequenceKey, 100)
	if err != nil {
		return nil, fmt.Errorf("GetSequence: %w", err)
	}
	return &BadgerHistoryLog{db: db, seq: seq, users: users}, nil
}

// Close returns the leased but unused ids. It does not close the database.
func (h *BadgerHistoryLog) Close() error {
	return h.seq.Release()
}

func messageKey(roomID string, id int64) []byte {
	return []byte(fmt.Sprintf("msg:%x:%019d", roomID, id))
}

func roomPrefix(roomID string) []byte {
	return []byte(fmt.Sprintf("msg:%x:", roomID))
}

func (h *BadgerHistoryLog) Append(ctx context.Context, roomID, senderID string, t MessageType, content string) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	next, err := h.seq.Next()
	createdAt := time.Now().UTC()
	h.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("seq.Next: %w", err)
	}

	msg := &Message{
		// sequences start at 0, sqlite ids at 1
		ID:        int64(next) + 1,
		RoomID:    roomID,
		SenderID:  senderID,
		Type:      t,
		Content:   content,
		CreatedAt: createdAt,
	}

	b, err := cbor.Marshal(badgerMessage{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Type:      t.String(),
		Content:   msg.Content,
		CreatedAt: createdAt.UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("cbor.Marshal: %w", err)
	}

	if err := h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(roomID, msg.ID), b)
	}); err != nil {
		return nil, fmt.Errorf("db.Update: %w", err)
	}
	return msg, nil
}

func (h *BadgerHistoryLog) List(ctx context.Context, roomID string) ([]MessageWithSender, error) {
	var messages []Message
	err := h.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(roomID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record badgerMessage
			if err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			t, err := ParseMessageType(record.Type)
			if err != nil {
				return fmt.Errorf("message %d: %w", record.ID, err)
			}
			messages = append(messages, Message{
				ID:        record.ID,
				RoomID:    record.RoomID,
				SenderID:  record.SenderID,
				Type:      t,
				Content:   record.Content,
				CreatedAt: time.Unix(0, record.CreatedAt).UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("db.View: %w", err)
	}

	return withSenders(ctx, h.users, messages)
}
