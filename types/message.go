package types

import (
	"encoding/json"
	"time"
)

const (
	WireMessageTypeChat  = "chat"
	WireMessageTypeEvent = "event"
)

// JSON-serialized WebsocketMessage is what is actually sent via the
// Websocket connection.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Message is one room message, append-only.
type Message struct {
	Id       string    `json:"id" gorm:"primaryKey"`
	RoomName string    `json:"room_name"`
	UserId   string    `json:"user_id"`
	Content  string    `json:"content"`
	When     time.Time `json:"when"`
}

// ChatPayload is the incoming chat message from a client. A leading "/" makes
// it a command, everything else is posted to the client's active room.
type ChatPayload struct {
	Message string `json:"message" mapstructure:"message"`
}
