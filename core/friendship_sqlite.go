package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SQLiteFriendshipStore struct {
	db *sql.DB
}

func NewSQLiteFriendshipStore(db *sql.DB) *SQLiteFriendshipStore {
	return &SQLiteFriendshipStore{db: db}
}

func (s *SQLiteFriendshipStore) CreateRequest(ctx context.Context, req FriendRequest) error {
	query := `INSERT INTO friend_requests (id, from_user_id, to_user_id, reason, status, created_at)
	          VALUES (@id, @from_user_id, @to_user_id, @reason, @status, @created_at)`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("id", req.ID), sql.Named("from_user_id", req.FromUserID),
		sql.Named("to_user_id", req.ToUserID), sql.Named("reason", req.Reason),
		sql.Named("status", int(req.Status)), sql.Named("created_at", req.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrFriendRequestPending
		}
		return fmt.Errorf("ExecContext: %w", err)
	}
	return nil
}

// resolvePending moves the pending request from fromID to toID to status.
func resolvePending(ctx context.Context, tx *sql.Tx, fromID, toID string, status FriendRequestStatus) error {
	query := `UPDATE friend_requests SET status = @status
	          WHERE from_user_id = @from_user_id AND to_user_id = @to_user_id AND status = @pending`
	res, err := tx.ExecContext(ctx, query,
		sql.Named("status", int(status)), sql.Named("pending", int(FriendRequestPending)),
		sql.Named("from_user_id", fromID), sql.Named("to_user_id", toID))
	if err != nil {
		return fmt.Errorf("ExecContext(update friend_requests): %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("RowsAffected: %w", err)
	}
	if n == 0 {
		return ErrFriendRequestNotFound
	}
	return nil
}

func (s *SQLiteFriendshipStore) AcceptRequest(ctx context.Context, fromID, toID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	if err := resolvePending(ctx, tx, fromID, toID, FriendRequestAccepted); err != nil {
		return err
	}

	low, high := directPair(fromID, toID)
	query := `INSERT OR IGNORE INTO friendships (user_low, user_high, created_at)
	          VALUES (@user_low, @user_high, @created_at)`
	_, err = tx.ExecContext(ctx, query,
		sql.Named("user_low", low), sql.Named("user_high", high),
		sql.Named("created_at", time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("ExecContext(insert friendships): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (s *SQLiteFriendshipStore) RejectRequest(ctx context.Context, fromID, toID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	if err := resolvePending(ctx, tx, fromID, toID, FriendRequestRejected); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (s *SQLiteFriendshipStore) Requests(ctx context.Context, userID string) ([]FriendRequest, error) {
	query := `
	SELECT id, from_user_id, to_user_id, reason, status, created_at
	FROM friend_requests
	WHERE from_user_id = @user_id OR to_user_id = @user_id
	ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, sql.Named("user_id", userID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var requests []FriendRequest
	for rows.Next() {
		var req FriendRequest
		var status int
		if err := rows.Scan(&req.ID, &req.FromUserID, &req.ToUserID, &req.Reason, &status, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		req.Status = FriendRequestStatus(status)
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return requests, nil
}

func (s *SQLiteFriendshipStore) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	low, high := directPair(userA, userB)
	query := `SELECT count(*) FROM friendships WHERE user_low = @user_low AND user_high = @user_high`
	row := s.db.QueryRowContext(ctx, query, sql.Named("user_low", low), sql.Named("user_high", high))

	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("scanning count: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteFriendshipStore) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
	SELECT CASE WHEN user_low = @user_id THEN user_high ELSE user_low END
	FROM friendships
	WHERE user_low = @user_id OR user_high = @user_id
	ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, sql.Named("user_id", userID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return ids, nil
}

func (s *SQLiteFriendshipStore) RemoveFriendship(ctx context.Context, userA, userB string) error {
	low, high := directPair(userA, userB)
	query := `DELETE FROM friendships WHERE user_low = @user_low AND user_high = @user_high`
	_, err := s.db.ExecContext(ctx, query, sql.Named("user_low", low), sql.Named("user_high", high))
	if err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}
	return nil
}
