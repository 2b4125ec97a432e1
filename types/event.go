package types

import (
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// Event names. One event is emitted per successful command; error events
// carry the failure message back to the issuing client only.
const (
	EventTypeChat            = "chat"
	EventTypeError           = "error"
	EventTypeUserCreated     = "user_created"
	EventTypeUserRenamed     = "user_renamed"
	EventTypePasswordSet     = "password_set"
	EventTypePasswordChanged = "password_changed"
	EventTypeGravatarChanged = "gravatar_changed"
	EventTypeRoomJoined      = "room_joined"
	EventTypeRoomLeft        = "room_left"
	EventTypeOwnerAdded      = "owner_added"
	EventTypeUserKicked      = "user_kicked"
	EventTypeUserNudged      = "user_nudged"
	EventTypeRoomNudged      = "room_nudged"
	EventTypePrivateMessage  = "private_message"
	EventTypeSelfMessage     = "self_message"
	EventTypeUserList        = "user_list"
	EventTypeRoomList        = "room_list"
	EventTypeHelp            = "help"
	EventTypeWelcome         = "welcome"
)

// Source identifies who caused an event. System is set for events not caused
// by a user action (presence sweep etc.).
type Source struct {
	User   *User  `json:"user,omitempty"`
	System string `json:"system,omitempty"`
}

// Event is the unit of notification. Tags carry the event payload as a flat
// string map, TargetFilter is an expr expression restricting delivery
// (empty = broadcast).
type Event struct {
	Id           string        `json:"id"`
	RoomName     string        `json:"room_name"`
	Source       *Source       `json:"source"`
	Created      time.Time     `json:"created"`
	Name         string        `json:"name"`
	Tags         JSONStringMap `json:"tags"`
	TargetFilter string        `json:"target_filter,omitempty"`
	History      bool          `json:"history,omitempty"`
}

func NewEvent(roomName string, source *Source, targetFilter, name string, tags map[string]string) *Event {
	if tags == nil {
		tags = make(map[string]string)
	}
	e := &Event{
		RoomName:     roomName,
		Source:       source,
		Created:      time.Now().UTC(),
		Name:         name,
		Tags:         JSONStringMap(tags),
		TargetFilter: targetFilter,
	}
	_ = e.CreateId()
	return e
}

// CreateId derives the event id from the event contents.
func (e *Event) CreateId() error {
	hash, err := hashstructure.Hash(e, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	e.Id = fmt.Sprintf("%016x-%d", hash, e.Created.UnixNano())
	return nil
}
