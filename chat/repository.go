package chat

import (
	"errors"

	"github.com/hubbub-chat/hubbub/types"
)

// ErrConflict is returned by CommitChanges when a conflicting concurrent
// commit was detected by the backing store. The dispatcher surfaces it as a
// retryable domain error instead of silently losing the write.
var ErrConflict = errors.New("conflicting concurrent commit")

// Repository is the shared user/room graph. Entities are held in id-keyed
// maps; membership and ownership are index sets maintained symmetrically by
// the mutation methods, so user→rooms and room→users navigation never
// disagree. All lookups by name are case-insensitive.
//
// Mutations become durable only at CommitChanges; the service performs all
// read-only precondition checks before the first mutating call, so a failed
// command never leaves a partial change behind.
type Repository interface {
	GetUserById(id string) (*types.User, bool)
	GetUserByName(name string) (*types.User, bool)
	GetUserByClientId(clientId string) (*types.User, bool)
	GetRoomByName(name string) (*types.Room, bool)

	// SearchUsers returns the online users whose name contains the given
	// substring (case-insensitive).
	SearchUsers(substr string) []*types.User

	Users() []*types.User
	Rooms() []*types.Room

	AddUser(user *types.User)
	AddRoom(room *types.Room)

	// UpdateUser re-indexes a user after a field mutation (rename, password,
	// nudge stamp) and marks it for the next commit. UpdateRoom likewise.
	UpdateUser(user *types.User)
	UpdateRoom(room *types.Room)

	JoinRoom(userId, roomName string)
	LeaveRoom(userId, roomName string)
	AddOwner(userId, roomName string)

	IsMember(userId, roomName string) bool
	IsOwner(userId, roomName string) bool

	MembersOf(roomName string) []*types.User
	OwnersOf(roomName string) []*types.User
	RoomsOf(userId string) []*types.Room
	OwnedRoomsOf(userId string) []*types.Room

	AddMessage(msg *types.Message)
	MessagesOf(roomName string) []*types.Message

	// CommitChanges atomically persists all mutations since the last commit.
	// May return ErrConflict.
	CommitChanges() error
}
