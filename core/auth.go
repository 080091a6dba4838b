package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Session struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type AuthStore interface {
	// NewSession checks the credentials and issues a token.
	// It returns ErrBadCredentials if they do not match.
	NewSession(ctx context.Context, username, password string) (*Session, error)

	// Session resolves a token. It returns ErrUnauthenticated for any bad or expired token.
	Session(ctx context.Context, token string) (*Session, error)
}

// JWTAuthStore issues stateless tokens with a fixed lifetime.
type JWTAuthStore struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
}

func NewJWTAuthStore(users UserStore, secret []byte, ttl time.Duration) *JWTAuthStore {
	return &JWTAuthStore{users: users, secret: secret, ttl: ttl}
}

func (s *JWTAuthStore) NewSession(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.ComparePassword(ctx, username, password)
	if err != nil {
		return nil, err
	}

	token, exp, err := NewToken(*user, s.ttl, s.secret)
	if err != nil {
		return nil, fmt.Errorf("NewToken: %w", err)
	}
	return &Session{
		UserID:    user.ID,
		Username:  user.Username,
		Token:     token,
		ExpiresAt: exp,
	}, nil
}

func (s *JWTAuthStore) Session(ctx context.Context, token string) (*Session, error) {
	claims, err := VerifyToken(token, s.secret)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrUnrecognizedToken) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	// the user may have been removed after the token was issued
	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("GetUserByID: %w", err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}

	return &Session{
		UserID:    user.ID,
		Username:  user.Username,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
