package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type UserFixture struct {
	*BaseFixture
	userStore UserStore
}

func NewUserFixture(t *testing.T) *UserFixture {
	base := NewBaseFixture(t)
	return &UserFixture{
		BaseFixture: base,
		userStore:   NewSQLiteUserStore(base.db),
	}
}

func TestCreateUser(t *testing.T) {
	t.Run("new user", func(t *testing.T) {
		f := NewUserFixture(t)
		defer f.tearDown()

		id, err := f.userStore.CreateUser(f.ctx, testUser("alice", "Alice"))
		require.NoError(t, err)
		require.NotEmpty(t, id)

		got, err := f.userStore.GetUserByID(f.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "Alice", got.Nickname)
	})

	t.Run("taken username", func(t *testing.T) {
		f := NewUserFixture(t)
		defer f.tearDown()
		seedUsers(f.ctx, t, f.userStore, testUser("alice", "Alice"))

		_, err := f.userStore.CreateUser(f.ctx, testUser("alice", "Other"))
		assert.ErrorIs(t, err, ErrConflictedUser)
	})

	t.Run("invalid user", func(t *testing.T) {
		f := NewUserFixture(t)
		defer f.tearDown()

		_, err := f.userStore.CreateUser(f.ctx, User{Username: "al", Nickname: "Al", Password: "password"})
		assert.Equal(t, KindValidation, KindOf(err))
	})
}

func TestGetUsersByIDs(t *testing.T) {
	f := NewUserFixture(t)
	defer f.tearDown()
	ids := seedUsers(f.ctx, t, f.userStore, testUser("alice", "Alice"), testUser("bob", "Bob"))

	users, err := f.userStore.GetUsersByIDs(f.ctx, ids[0], ids[1], "missing")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, []string{users[0].Username, users[1].Username})

	users, err = f.userStore.GetUsersByIDs(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestComparePassword(t *testing.T) {
	f := NewUserFixture(t)
	defer f.tearDown()
	seedUsers(f.ctx, t, f.userStore, testUser("alice", "Alice"))

	user, err := f.userStore.ComparePassword(f.ctx, "alice", "password")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = f.userStore.ComparePassword(f.ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)

	_, err = f.userStore.ComparePassword(f.ctx, "nobody", "password")
	assert.ErrorIs(t, err, ErrBadCredentials)
}
