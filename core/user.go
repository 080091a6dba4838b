package core

import (
	"context"
	"time"
)

type User struct {
	ID       string `json:"id"`
	Username string `json:"username" validate:"required,min=3,max=32"`
	Nickname string `json:"nickname" validate:"required,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Avatar   string `json:"avatar" validate:"omitempty,url"`
	Password string `json:"password" validate:"required,min=6"`
}

func (u *User) Validate() error {
	return validate.Struct(u)
}

// UserSummary is the public projection of a user.
type UserSummary struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserStore interface {
	// CreateUser stores a new user and returns its generated ID.
	// It returns ErrConflictedUser if the username is taken.
	CreateUser(ctx context.Context, user User) (string, error)

	// GetUserByID returns nil if the user does not exist.
	GetUserByID(ctx context.Context, id string) (*UserSummary, error)

	// GetUserByUsername returns nil if the user does not exist.
	GetUserByUsername(ctx context.Context, username string) (*UserSummary, error)

	// GetUsersByIDs resolves many users in one call. Unknown ids are skipped,
	// so the result may be shorter than ids.
	GetUsersByIDs(ctx context.Context, ids ...string) ([]UserSummary, error)

	// ComparePassword returns the user when the password matches, otherwise ErrBadCredentials.
	ComparePassword(ctx context.Context, username, password string) (*UserSummary, error)
}
