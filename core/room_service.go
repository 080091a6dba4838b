package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// RoomService holds the business rules for creating, joining, leaving and
// listing rooms. It is the only writer of the MembershipStore.
type RoomService struct {
	store  MembershipStore
	users  UserStore
	logger *slog.Logger
	now    func() time.Time
}

type RoomServiceOption func(*RoomService)

func WithRoomServiceLogger(l *slog.Logger) RoomServiceOption {
	return func(s *RoomService) {
		s.logger = l
	}
}

func NewRoomService(store MembershipStore, users UserStore, opts ...RoomServiceOption) *RoomService {
	s := &RoomService{
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

// placeholderRoomName names a direct room. The name is never displayed.
func placeholderRoomName() string {
	return fmt.Sprintf("chat%06d", rand.IntN(1000000))
}

// CreateDirectRoom creates the direct room between userA and userB, or returns
// the existing one if the pair already has a room.
func (s *RoomService) CreateDirectRoom(ctx context.Context, userA, userB string) (string, error) {
	if userA == "" || userB == "" {
		return "", ValidationError("both user ids are required")
	}
	if userA == userB {
		return "", ErrSelfDirectRoom
	}

	users, err := s.users.GetUsersByIDs(ctx, userA, userB)
	if err != nil {
		return "", fmt.Errorf("GetUsersByIDs: %w", err)
	}
	if len(users) != 2 {
		return "", ErrUserNotFound
	}

	existing, err := s.store.FindDirectRoom(ctx, userA, userB)
	if err != nil {
		return "", fmt.Errorf("FindDirectRoom: %w", err)
	}
	if existing != "" {
		return existing, nil
	}

	room := Room{
		ID:        uuid.New().String(),
		Name:      placeholderRoomName(),
		IsGroup:   false,
		CreatedAt: s.now(),
	}
	err = s.store.CreateRoom(ctx, room, userA, userB)
	if errors.Is(err, ErrDirectRoomExists) {
		// lost the race against a concurrent creator of the same pair
		existing, err = s.store.FindDirectRoom(ctx, userA, userB)
		if err != nil {
			return "", fmt.Errorf("FindDirectRoom: %w", err)
		}
		if existing == "" {
			return "", ErrRoomCreationFailed
		}
		return existing, nil
	}
	if err != nil {
		return "", WrapError(KindCreationFailed, ErrRoomCreationFailed.Message(), err)
	}

	s.logger.Debug("direct room created", slog.String("room", room.ID))
	return room.ID, nil
}

func (s *RoomService) CreateGroupRoom(ctx context.Context, name, creatorID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ValidationError("room name is required")
	}
	if creatorID == "" {
		return "", ValidationError("creator id is required")
	}

	room := Room{
		ID:        uuid.New().String(),
		Name:      name,
		IsGroup:   true,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateRoom(ctx, room, creatorID); err != nil {
		return "", WrapError(KindCreationFailed, ErrRoomCreationFailed.Message(), err)
	}

	s.logger.Debug("group room created", slog.String("room", room.ID))
	return room.ID, nil
}

// ListRoomsForUser returns the rooms userID belongs to whose display name
// contains nameFilter. Matching ignores ASCII case, as SQLite LIKE does.
func (s *RoomService) ListRoomsForUser(ctx context.Context, userID, nameFilter string) ([]RoomSummary, error) {
	if userID == "" {
		return nil, ValidationError("user id is required")
	}

	rooms, err := s.store.RoomsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("RoomsForUser: %w", err)
	}
	if len(rooms) == 0 {
		return []RoomSummary{}, nil
	}

	members, err := s.store.MemberIDs(ctx, lo.Map(rooms, func(r Room, _ int) string { return r.ID })...)
	if err != nil {
		return nil, fmt.Errorf("MemberIDs: %w", err)
	}

	// the other member of every direct room, resolved in one call
	peers := make(map[string]string)
	for _, r := range rooms {
		if r.IsGroup {
			continue
		}
		if other, ok := lo.Find(members[r.ID], func(id string) bool { return id != userID }); ok {
			peers[r.ID] = other
		}
	}
	users, err := s.users.GetUsersByIDs(ctx, lo.Uniq(lo.Values(peers))...)
	if err != nil {
		return nil, fmt.Errorf("GetUsersByIDs: %w", err)
	}
	byID := lo.KeyBy(users, func(u UserSummary) string { return u.ID })

	filter := strings.ToLower(nameFilter)
	summaries := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		if peer, ok := byID[peers[r.ID]]; ok && !r.IsGroup {
			r.Name = peer.Nickname
		}
		if filter != "" && !strings.Contains(strings.ToLower(r.Name), filter) {
			continue
		}
		ids := members[r.ID]
		if ids == nil {
			ids = []string{}
		}
		summaries = append(summaries, RoomSummary{
			Room:      r,
			UserCount: len(ids),
			UserIDs:   ids,
		})
	}
	return summaries, nil
}

func (s *RoomService) ListMembers(ctx context.Context, roomID string) ([]UserSummary, error) {
	if roomID == "" {
		return nil, ValidationError("room id is required")
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("GetRoom: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return s.members(ctx, roomID)
}

func (s *RoomService) members(ctx context.Context, roomID string) ([]UserSummary, error) {
	members, err := s.store.MemberIDs(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("MemberIDs: %w", err)
	}
	ids := members[roomID]

	users, err := s.users.GetUsersByIDs(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("GetUsersByIDs: %w", err)
	}
	byID := lo.KeyBy(users, func(u UserSummary) string { return u.ID })

	// keep join order
	return lo.FilterMap(ids, func(id string, _ int) (UserSummary, bool) {
		u, ok := byID[id]
		return u, ok
	}), nil
}

func (s *RoomService) GetRoomInfo(ctx context.Context, roomID string) (*RoomInfo, error) {
	if roomID == "" {
		return nil, ValidationError("room id is required")
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("GetRoom: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}

	users, err := s.members(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &RoomInfo{Room: *room, Users: users}, nil
}

// JoinGroupRoom adds the user named username to a group room.
func (s *RoomService) JoinGroupRoom(ctx context.Context, roomID, username string) (string, error) {
	if roomID == "" || username == "" {
		return "", ValidationError("room id and username are required")
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return "", fmt.Errorf("GetRoom: %w", err)
	}
	if room == nil {
		return "", ErrRoomNotFound
	}
	if !room.IsGroup {
		return "", ErrDirectRoomImmutable
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("GetUserByUsername: %w", err)
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	if err := s.store.AddMember(ctx, roomID, user.ID); err != nil {
		if errors.Is(err, ErrAlreadyMember) {
			return "", err
		}
		return "", fmt.Errorf("AddMember: %w", err)
	}

	s.logger.Debug("member joined", slog.String("room", roomID), slog.String("user", user.ID))
	return room.ID, nil
}

// LeaveGroupRoom removes userID from a group room. A group room may end up with no members.
func (s *RoomService) LeaveGroupRoom(ctx context.Context, roomID, userID string) error {
	if roomID == "" || userID == "" {
		return ValidationError("room id and user id are required")
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("GetRoom: %w", err)
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if !room.IsGroup {
		return ErrDirectRoomImmutable
	}

	if err := s.store.RemoveMember(ctx, roomID, userID); err != nil {
		return fmt.Errorf("RemoveMember: %w", err)
	}

	s.logger.Debug("member left", slog.String("room", roomID), slog.String("user", userID))
	return nil
}

// FindDirectRoom returns the direct room shared by userA and userB. The result
// does not depend on argument order. If the pair somehow owns more than one
// direct room, the one userA joined first wins.
func (s *RoomService) FindDirectRoom(ctx context.Context, userA, userB string) (string, error) {
	if userA == "" || userB == "" {
		return "", ValidationError("both user ids are required")
	}
	if userA == userB {
		return "", ErrDirectRoomNotFound
	}

	id, err := s.store.FindDirectRoom(ctx, userA, userB)
	if err != nil {
		return "", fmt.Errorf("FindDirectRoom: %w", err)
	}
	if id == "" {
		return "", ErrDirectRoomNotFound
	}
	return id, nil
}

// IsMember reports whether userID holds a membership of roomID.
func (s *RoomService) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return s.store.IsMember(ctx, roomID, userID)
}
