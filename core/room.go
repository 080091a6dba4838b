package core

import (
	"context"
	"time"
)

// Room is a chat room. A direct room (IsGroup false) has exactly two members
// for its whole lifetime; its stored name is a placeholder and is never shown.
// A group room has a user supplied name and open membership.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"isGroup"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomSummary is a room as listed for one member.
// For direct rooms Name holds the other member's nickname.
type RoomSummary struct {
	Room
	UserCount int      `json:"userCount"`
	UserIDs   []string `json:"userIds"`
}

// RoomInfo is a room with the public profile of every member.
type RoomInfo struct {
	Room
	Users []UserSummary `json:"users"`
}

// MembershipStore owns rooms and the user to room membership relation.
// Only RoomService mutates it.
type MembershipStore interface {
	// CreateRoom inserts the room and a membership for every member id in one transaction.
	// For a direct room it also claims the canonical user pair; if the pair is
	// already claimed it returns ErrDirectRoomExists and nothing is written.
	CreateRoom(ctx context.Context, room Room, memberIDs ...string) error

	// GetRoom returns nil if the room does not exist.
	GetRoom(ctx context.Context, roomID string) (*Room, error)

	// AddMember returns ErrAlreadyMember if the membership exists.
	AddMember(ctx context.Context, roomID, userID string) error

	// RemoveMember deletes the membership. Removing a missing membership is not an error.
	RemoveMember(ctx context.Context, roomID, userID string) error

	IsMember(ctx context.Context, roomID, userID string) (bool, error)

	// MemberIDs returns the member ids of every given room keyed by room id,
	// each list in join order.
	MemberIDs(ctx context.Context, roomIDs ...string) (map[string][]string, error)

	// RoomsForUser returns every room the user is a member of, newest first.
	RoomsForUser(ctx context.Context, userID string) ([]Room, error)

	// FindDirectRoom walks userA's memberships in join order, skipping group rooms,
	// and returns the first room userB also belongs to, or "" when there is none.
	FindDirectRoom(ctx context.Context, userA, userB string) (string, error)
}

// ErrDirectRoomExists is returned by MembershipStore.CreateRoom when the user pair already has a direct room.
var ErrDirectRoomExists = NewError(KindConflict, "direct room already exists")

// directPair orders two user ids so that (a, b) and (b, a) share one key.
func directPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}
