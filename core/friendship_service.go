package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// FriendshipService handles friend requests and friend lists.
type FriendshipService struct {
	store  FriendshipStore
	users  UserStore
	logger *slog.Logger
	now    func() time.Time
}

type FriendshipServiceOption func(*FriendshipService)

func WithFriendshipServiceLogger(l *slog.Logger) FriendshipServiceOption {
	return func(s *FriendshipService) {
		s.logger = l
	}
}

func NewFriendshipService(store FriendshipStore, users UserStore, opts ...FriendshipServiceOption) *FriendshipService {
	s := &FriendshipService{
		store:  store,
		users:  users,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddFriend sends a friend request from userID to the user named username.
func (s *FriendshipService) AddFriend(ctx context.Context, userID, username, reason string) (*FriendRequest, error) {
	if userID == "" || username == "" {
		return nil, ValidationError("user id and username are required")
	}

	friend, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("GetUserByUsername: %w", err)
	}
	if friend == nil {
		return nil, ErrUserNotFound
	}
	if friend.ID == userID {
		return nil, ErrSelfFriend
	}

	friends, err := s.store.AreFriends(ctx, userID, friend.ID)
	if err != nil {
		return nil, fmt.Errorf("AreFriends: %w", err)
	}
	if friends {
		return nil, ErrAlreadyFriends
	}

	req := FriendRequest{
		ID:         uuid.New().String(),
		FromUserID: userID,
		ToUserID:   friend.ID,
		Reason:     reason,
		Status:     FriendRequestPending,
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, ErrFriendRequestPending) {
			return nil, err
		}
		return nil, fmt.Errorf("CreateRequest: %w", err)
	}

	s.logger.Debug("friend request sent", slog.String("from", userID), slog.String("to", friend.ID))
	return &req, nil
}

// ListRequests returns the requests userID sent and received with the other
// side's profile resolved in one batch.
func (s *FriendshipService) ListRequests(ctx context.Context, userID string) (*FriendRequestList, error) {
	if userID == "" {
		return nil, ValidationError("user id is required")
	}

	requests, err := s.store.Requests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Requests: %w", err)
	}

	others := lo.Uniq(lo.Map(requests, func(r FriendRequest, _ int) string {
		if r.FromUserID == userID {
			return r.ToUserID
		}
		return r.FromUserID
	}))
	users, err := s.users.GetUsersByIDs(ctx, others...)
	if err != nil {
		return nil, fmt.Errorf("GetUsersByIDs: %w", err)
	}
	byID := lo.KeyBy(users, func(u UserSummary) string { return u.ID })

	list := &FriendRequestList{ToMe: []FriendRequestWithUser{}, FromMe: []FriendRequestWithUser{}}
	for _, r := range requests {
		item := FriendRequestWithUser{FriendRequest: r}
		if r.FromUserID == userID {
			if u, ok := byID[r.ToUserID]; ok {
				item.ToUser = &u
			}
			list.FromMe = append(list.FromMe, item)
		} else {
			if u, ok := byID[r.FromUserID]; ok {
				item.FromUser = &u
			}
			list.ToMe = append(list.ToMe, item)
		}
	}
	return list, nil
}

// Agree accepts the pending request requesterID sent to userID.
func (s *FriendshipService) Agree(ctx context.Context, userID, requesterID string) error {
	if userID == "" || requesterID == "" {
		return ValidationError("user id and requester id are required")
	}
	if err := s.store.AcceptRequest(ctx, requesterID, userID); err != nil {
		if errors.Is(err, ErrFriendRequestNotFound) {
			return err
		}
		return fmt.Errorf("AcceptRequest: %w", err)
	}
	s.logger.Debug("friend request accepted", slog.String("from", requesterID), slog.String("to", userID))
	return nil
}

// Reject declines the pending request requesterID sent to userID.
func (s *FriendshipService) Reject(ctx context.Context, userID, requesterID string) error {
	if userID == "" || requesterID == "" {
		return ValidationError("user id and requester id are required")
	}
	if err := s.store.RejectRequest(ctx, requesterID, userID); err != nil {
		if errors.Is(err, ErrFriendRequestNotFound) {
			return err
		}
		return fmt.Errorf("RejectRequest: %w", err)
	}
	return nil
}

// ListFriends returns userID's friends whose nickname contains name, ignoring ASCII case.
func (s *FriendshipService) ListFriends(ctx context.Context, userID, name string) ([]UserSummary, error) {
	if userID == "" {
		return nil, ValidationError("user id is required")
	}

	ids, err := s.store.FriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("FriendIDs: %w", err)
	}
	users, err := s.users.GetUsersByIDs(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("GetUsersByIDs: %w", err)
	}
	byID := lo.KeyBy(users, func(u UserSummary) string { return u.ID })

	filter := strings.ToLower(name)
	return lo.FilterMap(ids, func(id string, _ int) (UserSummary, bool) {
		u, ok := byID[id]
		if !ok {
			return u, false
		}
		return u, strings.Contains(strings.ToLower(u.Nickname), filter)
	}), nil
}

// RemoveFriend ends the friendship between userID and friendID in both directions.
func (s *FriendshipService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if userID == "" || friendID == "" {
		return ValidationError("user id and friend id are required")
	}
	if err := s.store.RemoveFriendship(ctx, userID, friendID); err != nil {
		return fmt.Errorf("RemoveFriendship: %w", err)
	}
	return nil
}
