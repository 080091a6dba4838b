package core

import (
	"context"
	"fmt"
	"time"
)

// FriendRequestStatus is the state of a friend request.
type FriendRequestStatus int

const (
	FriendRequestPending FriendRequestStatus = iota
	FriendRequestAccepted
	FriendRequestRejected
)

func (s FriendRequestStatus) String() string {
	switch s {
	case FriendRequestPending:
		return "pending"
	case FriendRequestAccepted:
		return "accepted"
	case FriendRequestRejected:
		return "rejected"
	default:
		return fmt.Sprintf("FriendRequestStatus(%d)", int(s))
	}
}

func (s FriendRequestStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type FriendRequest struct {
	ID         string              `json:"id"`
	FromUserID string              `json:"fromUserId"`
	ToUserID   string              `json:"toUserId"`
	Reason     string              `json:"reason"`
	Status     FriendRequestStatus `json:"status"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// FriendRequestWithUser carries the profile of the other side of the request.
// FromUser is set on received requests, ToUser on sent ones.
type FriendRequestWithUser struct {
	FriendRequest
	FromUser *UserSummary `json:"fromUser,omitempty"`
	ToUser   *UserSummary `json:"toUser,omitempty"`
}

// FriendRequestList splits a user's requests by direction. Both lists are oldest first.
type FriendRequestList struct {
	ToMe   []FriendRequestWithUser `json:"toMe"`
	FromMe []FriendRequestWithUser `json:"fromMe"`
}

// FriendshipStore owns friend requests and the symmetric friendship relation.
type FriendshipStore interface {
	// CreateRequest returns ErrFriendRequestPending if the sender already has
	// a pending request to the same user.
	CreateRequest(ctx context.Context, req FriendRequest) error

	// AcceptRequest marks the pending request from fromID to toID accepted and
	// records the friendship in one transaction. It returns
	// ErrFriendRequestNotFound if there is no pending request.
	AcceptRequest(ctx context.Context, fromID, toID string) error

	// RejectRequest marks the pending request from fromID to toID rejected.
	// It returns ErrFriendRequestNotFound if there is no pending request.
	RejectRequest(ctx context.Context, fromID, toID string) error

	// Requests returns every request sent or received by userID, oldest first.
	Requests(ctx context.Context, userID string) ([]FriendRequest, error)

	AreFriends(ctx context.Context, userA, userB string) (bool, error)

	// FriendIDs returns the ids of userID's friends, oldest friendship first.
	FriendIDs(ctx context.Context, userID string) ([]string, error)

	// RemoveFriendship deletes the friendship in both directions. Removing a
	// friendship that does not exist is not an error.
	RemoveFriendship(ctx context.Context, userA, userB string) error
}

var (
	ErrFriendRequestPending  = NewError(KindConflict, "friend request already pending")
	ErrFriendRequestNotFound = NewError(KindNotFound, "no pending friend request")
	ErrAlreadyFriends        = NewError(KindConflict, "already friends")
	ErrSelfFriend            = NewError(KindValidation, "cannot add yourself as a friend")
)
