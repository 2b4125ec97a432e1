package repository

import (
	"github.com/hubbub-chat/hubbub/chat"
	"github.com/hubbub-chat/hubbub/types"
)

// Lookup-and-assert helpers used by the dispatcher before and within
// handlers. They never mutate, they only read and fail fast with the
// user-facing message.

// VerifyUserId resolves the caller's identity or fails.
func VerifyUserId(repo chat.Repository, userId string) (*types.User, error) {
	user, ok := repo.GetUserById(userId)
	if !ok {
		return nil, chat.Errorf("You don't have a name. Pick a name using '/nick nickname'.")
	}
	return user, nil
}

// VerifyUser resolves a user by name or fails.
func VerifyUser(repo chat.Repository, userName string) (*types.User, error) {
	user, ok := repo.GetUserByName(userName)
	if !ok {
		return nil, chat.Errorf("Unable to find user '%s'.", userName)
	}
	return user, nil
}

// VerifyRoom resolves a room by name or fails.
func VerifyRoom(repo chat.Repository, roomName string) (*types.Room, error) {
	if roomName == "" {
		return nil, chat.Errorf("Room name cannot be blank!")
	}
	room, ok := repo.GetRoomByName(roomName)
	if !ok {
		return nil, chat.Errorf("Unable to find room '%s'.", roomName)
	}
	return room, nil
}

// VerifyUserRoom resolves the caller's active room, additionally requiring
// current membership.
func VerifyUserRoom(repo chat.Repository, user *types.User, roomName string) (*types.Room, error) {
	if roomName == "" {
		return nil, chat.Errorf("Use '/join room' to join a room.")
	}
	room, ok := repo.GetRoomByName(roomName)
	if !ok {
		return nil, chat.Errorf("You're in '%s' but it doesn't exist.", roomName)
	}
	if !repo.IsMember(user.Id, room.Name) {
		return nil, chat.Errorf("You're not in '%s'. Use '/join %s' to join it.", roomName, roomName)
	}
	return room, nil
}
