package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type SQLiteUserStore struct {
	db *sql.DB
}

func NewSQLiteUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{
		db: db,
	}
}

const userColumns = "id, username, nickname, email, avatar, created_at"

func scanUser(row interface{ Scan(...any) error }, user *UserSummary) error {
	return row.Scan(&user.ID, &user.Username, &user.Nickname, &user.Email, &user.Avatar, &user.CreatedAt)
}

func (s *SQLiteUserStore) CreateUser(ctx context.Context, user User) (string, error) {
	if err := user.Validate(); err != nil {
		return "", WrapError(KindValidation, "invalid user", err)
	}

	eu, err := s.GetUserByUsername(ctx, user.Username)
	if err != nil {
		return "", fmt.Errorf("checking if user exists: %w", err)
	}

	if eu != nil {
		return "", ErrConflictedUser
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO users (id, username, nickname, email, avatar, password, created_at)
	VALUES (@id, @username, @nickname, @email, @avatar, @password, @created_at)`,
		sql.Named("id", id), sql.Named("username", user.Username),
		sql.Named("nickname", user.Nickname), sql.Named("email", user.Email),
		sql.Named("avatar", user.Avatar), sql.Named("password", string(hashed)),
		sql.Named("created_at", time.Now().UTC()))
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrConflictedUser
		}
		return "", fmt.Errorf("creating user: %w", err)
	}

	return id, nil
}

func (s *SQLiteUserStore) GetUserByID(ctx context.Context, id string) (*UserSummary, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id)

	user := new(UserSummary)
	if err := scanUser(row, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return user, nil
}

func (s *SQLiteUserStore) GetUserByUsername(ctx context.Context, username string) (*UserSummary, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ? LIMIT 1", username)

	user := new(UserSummary)
	if err := scanUser(row, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return user, nil
}

func (s *SQLiteUserStore) GetUsersByIDs(ctx context.Context, ids ...string) ([]UserSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	values := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id IN ("+strings.Repeat("?,", len(ids)-1)+"?)", values...)
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var users []UserSummary
	for rows.Next() {
		var user UserSummary
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return users, nil
}

func (s *SQLiteUserStore) ComparePassword(ctx context.Context, username, password string) (*UserSummary, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+", password FROM users WHERE username = ? LIMIT 1", username)

	var user UserSummary
	var storedPassword string
	err := row.Scan(&user.ID, &user.Username, &user.Nickname, &user.Email, &user.Avatar, &user.CreatedAt, &storedPassword)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("scanning password: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(storedPassword), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}

	return &user, nil
}
