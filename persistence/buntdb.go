package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hubbub-chat/hubbub/config"
	"github.com/hubbub-chat/hubbub/globals"
	"github.com/hubbub-chat/hubbub/types"
	"github.com/tidwall/buntdb"
)

type BuntDBPersist struct {
	db *buntdb.DB
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	db, err := setupBuntDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	return &BuntDBPersist{db}, nil
}

func setupBuntDB(cfg *config.Config) (*buntdb.DB, error) {
	var db *buntdb.DB
	if cfg.PersistenceConfig.BuntDBConfig.Name != "" {
		fileName := cfg.PersistenceConfig.BuntDBConfig.Name
		var err error
		db, err = buntdb.Open(fileName)
		if err != nil {
			return nil, err
		}
		err = db.CreateIndex("eventsts", "event:*", buntdb.IndexJSON("created"))
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// userRecord is the stored shape of a user. The digest stays out of
// types.User's JSON on purpose (it would end up on the wire), here it has to
// survive.
type userRecord struct {
	Id             string           `json:"id"`
	Name           string           `json:"name"`
	HashedPassword string           `json:"hashed_password,omitempty"`
	GravatarHash   string           `json:"gravatar_hash,omitempty"`
	Status         types.UserStatus `json:"status"`
	LastActivity   time.Time        `json:"last_activity"`
	LastNudged     *time.Time       `json:"last_nudged,omitempty"`
}

func recordFromUser(user types.User) userRecord {
	return userRecord{
		Id:             user.Id,
		Name:           user.Name,
		HashedPassword: user.HashedPassword,
		GravatarHash:   user.GravatarHash,
		Status:         user.Status,
		LastActivity:   user.LastActivity,
		LastNudged:     user.LastNudged,
	}
}

func (r userRecord) toUser() *types.User {
	return &types.User{
		Id:             r.Id,
		Name:           r.Name,
		HashedPassword: r.HashedPassword,
		GravatarHash:   r.GravatarHash,
		Status:         r.Status,
		LastActivity:   r.LastActivity,
		LastNudged:     r.LastNudged,
	}
}

func roomKey(name string) string {
	return "room:" + strings.ToLower(name)
}

func (p *BuntDBPersist) StoreUser(user types.User) error {
	u, err := json.Marshal(recordFromUser(user))
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("user:"+user.Id, string(u), nil)
		return err
	})
}

func (p *BuntDBPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return p.db.View(func(tx *buntdb.Tx) error {
		u, err := tx.Get("user:" + user.Id)
		if err != nil {
			return err
		}
		rec := userRecord{}
		if err := json.Unmarshal([]byte(u), &rec); err != nil {
			return err
		}
		*user = *rec.toUser()
		return nil
	})
}

func (p *BuntDBPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("user:*", func(key, val string) bool {
			rec := userRecord{}
			if err := json.Unmarshal([]byte(val), &rec); err == nil {
				users = append(users, rec.toUser())
			}
			return true
		})
	})
	return users, err
}

func (p *BuntDBPersist) DeleteUser(user *types.User) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete("user:" + user.Id)
		return err
	})
}

func (p *BuntDBPersist) StoreRoom(state types.RoomState) error {
	r, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(roomKey(state.Room.Name), string(r), nil)
		return err
	})
}

func (p *BuntDBPersist) GetRoom(state *types.RoomState) error {
	if state.Room.Name == "" {
		return fmt.Errorf("no room name")
	}
	return p.db.View(func(tx *buntdb.Tx) error {
		r, err := tx.Get(roomKey(state.Room.Name))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(r), state)
	})
}

func (p *BuntDBPersist) GetRooms() ([]*types.RoomState, error) {
	states := make([]*types.RoomState, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("room:*", func(key, val string) bool {
			state := &types.RoomState{}
			if err := json.Unmarshal([]byte(val), state); err == nil {
				states = append(states, state)
			}
			return true
		})
	})
	return states, err
}

func (p *BuntDBPersist) DeleteRoom(state *types.RoomState) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(roomKey(state.Room.Name))
		return err
	})
}

func (p *BuntDBPersist) StoreMessages(msgs []*types.Message) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, msg := range msgs {
			m, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			_, _, err = tx.Set("message:"+msg.Id, string(m), nil)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) StoreEvents(events []*types.Event) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, event := range events {
			msg, err := json.Marshal(event)
			if err != nil {
				globals.AppLogger.Error("could not marshal event", "error", err)
				return err
			}
			_, _, err = tx.Set("event:"+event.Id, string(msg), nil)
			if err != nil {
				globals.AppLogger.Error("could not store event", "error", err)
				return err
			}
		}
		return nil
	})
}

// GetEventHistory returns a slice of events from db.
//
// Use fromTs/toTs to restrict the time range, and fromIdx/maxCount for
// pagination. Important: the resulting events have the "History" flag set.
func (p *BuntDBPersist) GetEventHistory(fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Event, error) {
	events := make([]*types.Event, 0)

	fromCond := fmt.Sprintf(`{"created":"%s"}`, fromTs.In(time.UTC).Format(time.RFC3339))
	toCond := fmt.Sprintf(`{"created":"%s"}`, toTs.In(time.UTC).Format(time.RFC3339))

	err := p.db.View(func(tx *buntdb.Tx) error {
		currentNo := -1
		count := 0
		return tx.DescendRange("eventsts", toCond, fromCond, func(key, val string) bool {
			currentNo++
			if currentNo < fromIdx {
				return true
			}
			event := &types.Event{}
			if err := json.Unmarshal([]byte(val), event); err == nil {
				event.History = true
				events = append(events, event)
			}
			count++
			return maxCount <= 0 || count < maxCount
		})
	})
	return events, err
}

func (p *BuntDBPersist) Close() error {
	return p.db.Close()
}
