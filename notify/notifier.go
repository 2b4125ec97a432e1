package notify

import "github.com/hubbub-chat/hubbub/types"

// Notifier is the notification collaborator. The dispatcher emits exactly
// one call per successful command and none on failure; how the event reaches
// other clients is not this package's concern (fire-and-forget).
//
// Methods answering the issuing client take its clientId, the event is then
// addressed to that connection only.
type Notifier interface {
	OnUserCreated(user *types.User)
	OnUserNameChanged(user *types.User, oldName, newName string)
	OnPasswordSet(user *types.User)
	OnPasswordChanged(user *types.User)
	OnGravatarChanged(user *types.User)

	OnJoinedRoom(user *types.User, room *types.Room)
	OnLeftRoom(user *types.User, room *types.Room)
	OnOwnerAdded(targetUser *types.User, room *types.Room)
	OnUserKicked(room *types.Room, targetUser *types.User)

	OnUserNudged(from, to *types.User)
	OnRoomNudged(room *types.Room, from *types.User)

	OnPrivateMessage(from, to *types.User, messageText string)
	OnSelfMessage(room *types.Room, user *types.User, content string)

	ListUsers(clientId string, users []*types.User)
	ListRoomUsers(clientId string, room *types.Room, names []string)
	ListRooms(clientId string, about *types.User, rooms []*types.Room)
	ShowHelp(clientId string)
	ShowRooms(clientId string, rooms []*types.Room)
}

// Sink receives the built events, typically the hub's broadcast channel.
type Sink interface {
	Publish(events []*types.Event)
}
