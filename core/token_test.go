package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	secret := []byte("secret")
	user := UserSummary{
		ID:       "u1",
		Username: "username",
		Nickname: "User",
	}

	t.Run("valid token", func(t *testing.T) {
		before := time.Now()
		token, expiresAt, err := NewToken(user, time.Hour, secret)
		require.Nil(t, err)
		require.NotEmpty(t, token)
		require.False(t, expiresAt.Before(before.Add(time.Hour)))

		claims, err := VerifyToken(token, secret)
		require.Nil(t, err)
		assert.Equal(t, user.Username, claims.Username)
		assert.Equal(t, user.ID, claims.Subject)
	})

	t.Run("expired token", func(t *testing.T) {
		token, _, err := NewToken(user, -time.Minute, secret)
		require.Nil(t, err)

		_, err = VerifyToken(token, secret)
		assert.Equal(t, ErrTokenExpired, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewToken(user, time.Hour, secret)
		require.Nil(t, err)

		_, err = VerifyToken(token, []byte("other"))
		assert.Equal(t, ErrTokenInvalid, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := VerifyToken("not-a-token", secret)
		assert.Equal(t, ErrTokenInvalid, err)
	})
}

func TestJWTAuthStore(t *testing.T) {
	f := NewUserFixture(t)
	defer f.tearDown()
	ids := seedUsers(f.ctx, t, f.userStore, testUser("alice", "Alice"))
	store := NewJWTAuthStore(f.userStore, []byte("secret"), time.Hour)

	t.Run("bad credentials", func(t *testing.T) {
		session, err := store.NewSession(f.ctx, "alice", "wrong")
		require.Nil(t, session)
		assert.ErrorIs(t, err, ErrBadCredentials)
	})

	t.Run("session round trip", func(t *testing.T) {
		session, err := store.NewSession(f.ctx, "alice", "password")
		require.NoError(t, err)
		assert.Equal(t, ids[0], session.UserID)

		got, err := store.Session(f.ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, ids[0], got.UserID)
		assert.Equal(t, "alice", got.Username)
	})

	t.Run("bad token", func(t *testing.T) {
		_, err := store.Session(f.ctx, "garbage")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}
