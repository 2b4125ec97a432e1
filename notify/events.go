package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hubbub-chat/hubbub/types"
)

// EventNotifier turns notifications into types.Event values and hands them
// to the sink, usually one event per call. Addressed events (private
// messages, command responses) carry an expr target filter; everything else
// is delivered by room scope.
type EventNotifier struct {
	sink     Sink
	helpText string
}

var _ Notifier = (*EventNotifier)(nil)

func NewEventNotifier(sink Sink, helpText string) *EventNotifier {
	return &EventNotifier{sink: sink, helpText: helpText}
}

func (n *EventNotifier) publish(event *types.Event) {
	n.sink.Publish([]*types.Event{event})
}

func userSource(user *types.User) *types.Source {
	return &types.Source{User: user}
}

func clientFilter(clientId string) string {
	return fmt.Sprintf(`Target.Client.ClientId == %s`, strconv.Quote(clientId))
}

func userFilter(userId string) string {
	return fmt.Sprintf(`Target.User.Id == %s`, strconv.Quote(userId))
}

func (n *EventNotifier) OnUserCreated(user *types.User) {
	tags := map[string]string{"name": user.Name}
	n.publish(types.NewEvent("", userSource(user), "", types.EventTypeUserCreated, tags))
}

func (n *EventNotifier) OnUserNameChanged(user *types.User, oldName, newName string) {
	tags := map[string]string{"old_name": oldName, "new_name": newName}
	n.publish(types.NewEvent("", userSource(user), "", types.EventTypeUserRenamed, tags))
}

func (n *EventNotifier) OnPasswordSet(user *types.User) {
	tags := map[string]string{"message": "Your password has been set."}
	n.publish(types.NewEvent("", userSource(user), userFilter(user.Id), types.EventTypePasswordSet, tags))
}

func (n *EventNotifier) OnPasswordChanged(user *types.User) {
	tags := map[string]string{"message": "Your password has been changed."}
	n.publish(types.NewEvent("", userSource(user), userFilter(user.Id), types.EventTypePasswordChanged, tags))
}

func (n *EventNotifier) OnGravatarChanged(user *types.User) {
	tags := map[string]string{"name": user.Name, "gravatar_hash": user.GravatarHash}
	n.publish(types.NewEvent("", userSource(user), "", types.EventTypeGravatarChanged, tags))
}

func (n *EventNotifier) OnJoinedRoom(user *types.User, room *types.Room) {
	tags := map[string]string{"name": user.Name}
	n.publish(types.NewEvent(room.Name, userSource(user), "", types.EventTypeRoomJoined, tags))
}

func (n *EventNotifier) OnLeftRoom(user *types.User, room *types.Room) {
	tags := map[string]string{"name": user.Name}
	n.publish(types.NewEvent(room.Name, userSource(user), "", types.EventTypeRoomLeft, tags))
}

func (n *EventNotifier) OnOwnerAdded(targetUser *types.User, room *types.Room) {
	tags := map[string]string{"name": targetUser.Name}
	n.publish(types.NewEvent(room.Name, userSource(targetUser), "", types.EventTypeOwnerAdded, tags))
}

// OnUserKicked tells the room and the kicked user. The target is already out
// of the membership set by now, so the room-scoped event cannot reach them;
// a second, addressed event does.
func (n *EventNotifier) OnUserKicked(room *types.Room, targetUser *types.User) {
	tags := map[string]string{"name": targetUser.Name, "room": room.Name}
	n.sink.Publish([]*types.Event{
		types.NewEvent(room.Name, userSource(targetUser), "", types.EventTypeUserKicked, tags),
		types.NewEvent("", userSource(targetUser), userFilter(targetUser.Id), types.EventTypeUserKicked, tags),
	})
}

func (n *EventNotifier) OnUserNudged(from, to *types.User) {
	tags := map[string]string{
		"from":    from.Name,
		"to":      to.Name,
		"message": fmt.Sprintf("%s nudged you", from.Name),
	}
	filter := fmt.Sprintf(`(%s || %s)`, userFilter(to.Id), userFilter(from.Id))
	n.publish(types.NewEvent("", userSource(from), filter, types.EventTypeUserNudged, tags))
}

func (n *EventNotifier) OnRoomNudged(room *types.Room, from *types.User) {
	tags := map[string]string{
		"from":    from.Name,
		"message": fmt.Sprintf("%s nudged the room", from.Name),
	}
	n.publish(types.NewEvent(room.Name, userSource(from), "", types.EventTypeRoomNudged, tags))
}

func (n *EventNotifier) OnPrivateMessage(from, to *types.User, messageText string) {
	tags := map[string]string{
		"from":    from.Name,
		"to":      to.Name,
		"message": messageText,
	}
	filter := fmt.Sprintf(`(%s || %s)`, userFilter(to.Id), userFilter(from.Id))
	n.publish(types.NewEvent("", userSource(from), filter, types.EventTypePrivateMessage, tags))
}

func (n *EventNotifier) OnSelfMessage(room *types.Room, user *types.User, content string) {
	tags := map[string]string{
		"name":    user.Name,
		"message": content,
	}
	n.publish(types.NewEvent(room.Name, userSource(user), "", types.EventTypeSelfMessage, tags))
}

func (n *EventNotifier) ListUsers(clientId string, users []*types.User) {
	names := make([]string, 0, len(users))
	for _, user := range users {
		names = append(names, user.Name)
	}
	tags := map[string]string{"users": strings.Join(names, "\n")}
	n.publish(types.NewEvent("", nil, clientFilter(clientId), types.EventTypeUserList, tags))
}

func (n *EventNotifier) ListRoomUsers(clientId string, room *types.Room, names []string) {
	tags := map[string]string{
		"room":  room.Name,
		"users": strings.Join(names, "\n"),
	}
	n.publish(types.NewEvent("", nil, clientFilter(clientId), types.EventTypeUserList, tags))
}

func (n *EventNotifier) ListRooms(clientId string, about *types.User, rooms []*types.Room) {
	names := make([]string, 0, len(rooms))
	for _, room := range rooms {
		names = append(names, room.Name)
	}
	tags := map[string]string{
		"name":  about.Name,
		"rooms": strings.Join(names, "\n"),
	}
	n.publish(types.NewEvent("", nil, clientFilter(clientId), types.EventTypeRoomList, tags))
}

func (n *EventNotifier) ShowHelp(clientId string) {
	tags := map[string]string{"message": n.helpText}
	n.publish(types.NewEvent("", nil, clientFilter(clientId), types.EventTypeHelp, tags))
}

func (n *EventNotifier) ShowRooms(clientId string, rooms []*types.Room) {
	names := make([]string, 0, len(rooms))
	for _, room := range rooms {
		names = append(names, room.Name)
	}
	tags := map[string]string{"rooms": strings.Join(names, "\n")}
	n.publish(types.NewEvent("", nil, clientFilter(clientId), types.EventTypeRoomList, tags))
}
