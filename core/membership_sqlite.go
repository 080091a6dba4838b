package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type SQLiteMembershipStore struct {
	db *sql.DB
}

func NewSQLiteMembershipStore(db *sql.DB) *SQLiteMembershipStore {
	return &SQLiteMembershipStore{db: db}
}

func (s *SQLiteMembershipStore) CreateRoom(ctx context.Context, room Room, memberIDs ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO rooms (id, name, is_group, created_at)
	          VALUES (@id, @name, @is_group, @created_at)`
	_, err = tx.ExecContext(ctx, query,
		sql.Named("id", room.ID), sql.Named("name", room.Name),
		sql.Named("is_group", room.IsGroup), sql.Named("created_at", room.CreatedAt))
	if err != nil {
		return fmt.Errorf("ExecContext(insert room): %w", err)
	}

	if !room.IsGroup {
		if len(memberIDs) != 2 {
			return fmt.Errorf("direct room needs 2 members, got %d", len(memberIDs))
		}
		low, high := directPair(memberIDs[0], memberIDs[1])
		query = `INSERT INTO direct_rooms (room_id, user_low, user_high)
		         VALUES (@room_id, @user_low, @user_high)`
		_, err = tx.ExecContext(ctx, query,
			sql.Named("room_id", room.ID), sql.Named("user_low", low), sql.Named("user_high", high))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDirectRoomExists
			}
			return fmt.Errorf("ExecContext(insert direct_rooms): %w", err)
		}
	}

	query = `INSERT INTO memberships (room_id, user_id, joined_at)
	         VALUES (@room_id, @user_id, @joined_at)`
	for _, userID := range memberIDs {
		_, err = tx.ExecContext(ctx, query,
			sql.Named("room_id", room.ID), sql.Named("user_id", userID),
			sql.Named("joined_at", room.CreatedAt))
		if err != nil {
			return fmt.Errorf("ExecContext(insert memberships): %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (s *SQLiteMembershipStore) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	query := `SELECT id, name, is_group, created_at FROM rooms WHERE id = @id`
	row := s.db.QueryRowContext(ctx, query, sql.Named("id", roomID))

	var room Room
	if err := row.Scan(&room.ID, &room.Name, &room.IsGroup, &room.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}
	return &room, nil
}

func (s *SQLiteMembershipStore) AddMember(ctx context.Context, roomID, userID string) error {
	query := `INSERT INTO memberships (room_id, user_id, joined_at)
	          VALUES (@room_id, @user_id, @joined_at)`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("room_id", roomID), sql.Named("user_id", userID),
		sql.Named("joined_at", time.Now().UTC()))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("ExecContext: %w", err)
	}
	return nil
}

func (s *SQLiteMembershipStore) RemoveMember(ctx context.Context, roomID, userID string) error {
	query := `DELETE FROM memberships WHERE room_id = @room_id AND user_id = @user_id`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("room_id", roomID), sql.Named("user_id", userID))
	if err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}
	return nil
}

func (s *SQLiteMembershipStore) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	query := `SELECT count(*) FROM memberships WHERE room_id = @room_id AND user_id = @user_id`
	row := s.db.QueryRowContext(ctx, query,
		sql.Named("room_id", roomID), sql.Named("user_id", userID))

	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("scanning count: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteMembershipStore) MemberIDs(ctx context.Context, roomIDs ...string) (map[string][]string, error) {
	members := make(map[string][]string, len(roomIDs))
	if len(roomIDs) == 0 {
		return members, nil
	}

	values := make([]interface{}, 0, len(roomIDs))
	for _, id := range roomIDs {
		values = append(values, id)
	}

	query := `SELECT room_id, user_id FROM memberships
	WHERE room_id IN (` + strings.Repeat("?,", len(roomIDs)-1) + `?)
	ORDER BY joined_at ASC, rowid ASC`
	rows, err := s.db.QueryContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roomID, userID string
		if err := rows.Scan(&roomID, &userID); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		members[roomID] = append(members[roomID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return members, nil
}

func (s *SQLiteMembershipStore) RoomsForUser(ctx context.Context, userID string) ([]Room, error) {
	query := `
	SELECT r.id, r.name, r.is_group, r.created_at
	FROM memberships AS m
	INNER JOIN rooms AS r ON r.id = m.room_id
	WHERE m.user_id = @user_id
	ORDER BY r.created_at DESC, r.id ASC`

	rows, err := s.db.QueryContext(ctx, query, sql.Named("user_id", userID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.Name, &room.IsGroup, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return rooms, nil
}

func (s *SQLiteMembershipStore) FindDirectRoom(ctx context.Context, userA, userB string) (string, error) {
	query := `
	SELECT a.room_id
	FROM memberships AS a
	INNER JOIN rooms AS r ON r.id = a.room_id AND r.is_group = 0
	INNER JOIN memberships AS b ON b.room_id = a.room_id AND b.user_id = @user_b
	WHERE a.user_id = @user_a
	ORDER BY a.joined_at ASC, a.rowid ASC
	LIMIT 1`

	row := s.db.QueryRowContext(ctx, query,
		sql.Named("user_a", userA), sql.Named("user_b", userB))

	var roomID string
	if err := row.Scan(&roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("row.Scan: %w", err)
	}
	return roomID, nil
}
