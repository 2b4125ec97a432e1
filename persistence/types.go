package persistence

import (
	"time"

	"github.com/hubbub-chat/hubbub/config"
	"github.com/hubbub-chat/hubbub/types"
)

// Persister is the durable side of the repository. Rooms are stored as
// RoomState (room plus its owner/member sets) so the index sets survive a
// restart.
type Persister interface {
	StoreUser(types.User) error
	GetUser(*types.User) error
	GetUsers() ([]*types.User, error)
	DeleteUser(*types.User) error

	StoreRoom(types.RoomState) error
	GetRoom(*types.RoomState) error
	GetRooms() ([]*types.RoomState, error)
	DeleteRoom(*types.RoomState) error

	StoreMessages([]*types.Message) error

	StoreEvents([]*types.Event) error
	GetEventHistory(fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Event, error)

	Close() error
}

// NewPersister picks the backend from the configuration. No persistence
// configuration at all means run purely in memory (nil, nil).
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "buntdb":
		return NewBuntPersister(cfg)
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	}
	return nil, nil
}
