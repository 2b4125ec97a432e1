package types

import "time"

// Room is a chat room. The creator is fixed at creation time and is always
// one of the owners. Like the user side, the owner and member sets are kept
// in the repository index sets.
type Room struct {
	Name       string     `json:"name" gorm:"primaryKey"` // unique, case-insensitive
	CreatorId  string     `json:"creator_id"`
	LastNudged *time.Time `json:"last_nudged,omitempty"`
}

// RoomState is a room plus its index sets, the unit of persistence.
type RoomState struct {
	Room    Room     `json:"room"`
	Owners  []string `json:"owners"`  // user ids
	Members []string `json:"members"` // user ids
}
