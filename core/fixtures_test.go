package core

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

type BaseFixture struct {
	ctx      context.Context
	db       *sql.DB
	t        *testing.T
	tearDown func()
}

// NewBaseFixture opens a migrated database file private to the test.
func NewBaseFixture(t *testing.T) *BaseFixture {
	ctx, cancel := context.WithCancel(context.Background())

	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "chatroom.db"), &DefaultSQLiteDBOption)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	return &BaseFixture{
		ctx: ctx,
		db:  db.DB,
		t:   t,
		tearDown: func() {
			cancel()
			db.Close()
		},
	}
}

type RoomFixture struct {
	*BaseFixture
	userStore       *SQLiteUserStore
	membershipStore *SQLiteMembershipStore
	service         *RoomService
}

func NewRoomFixture(t *testing.T) *RoomFixture {
	base := NewBaseFixture(t)
	userStore := NewSQLiteUserStore(base.db)
	membershipStore := NewSQLiteMembershipStore(base.db)
	return &RoomFixture{
		BaseFixture:     base,
		userStore:       userStore,
		membershipStore: membershipStore,
		service:         NewRoomService(membershipStore, userStore),
	}
}

func testUser(username, nickname string) User {
	return User{
		Username: username,
		Nickname: nickname,
		Password: "password",
	}
}

// seedUsers creates users and returns their ids in argument order.
func seedUsers(ctx context.Context, t *testing.T, userStore UserStore, users ...User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		id, err := userStore.CreateUser(ctx, u)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	return ids
}

// seedAlice seeds the three users most tests talk about.
func seedAlice(f *RoomFixture) (alice, bob, carol string) {
	ids := seedUsers(f.ctx, f.t, f.userStore,
		testUser("alice", "Alice"), testUser("bob", "Bob"), testUser("carol", "Carol"))
	return ids[0], ids[1], ids[2]
}
