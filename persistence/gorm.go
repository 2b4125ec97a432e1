package persistence

import (
	"fmt"
	"time"

	"github.com/hubbub-chat/hubbub/config"
	"github.com/hubbub-chat/hubbub/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormPersist struct {
	db *gorm.DB
}

// roomRecord flattens a RoomState into one row. Owner and member ids go into
// JSON columns, the in-memory repository rebuilds its index sets from them on
// startup.
type roomRecord struct {
	Name       string `gorm:"primaryKey"`
	CreatorId  string
	LastNudged *time.Time
	Owners     types.JSONStringSlice
	Members    types.JSONStringSlice
}

// eventRecord flattens the event source so it survives the relational schema.
type eventRecord struct {
	Id           string `gorm:"primaryKey"`
	RoomName     string
	SourceUserId string
	SourceSystem string
	Created      time.Time `gorm:"index"`
	Name         string
	Tags         types.JSONStringMap
	TargetFilter string
}

func recordFromRoomState(state types.RoomState) roomRecord {
	return roomRecord{
		Name:       state.Room.Name,
		CreatorId:  state.Room.CreatorId,
		LastNudged: state.Room.LastNudged,
		Owners:     types.JSONStringSlice(state.Owners),
		Members:    types.JSONStringSlice(state.Members),
	}
}

func (r roomRecord) toRoomState() types.RoomState {
	return types.RoomState{
		Room: types.Room{
			Name:       r.Name,
			CreatorId:  r.CreatorId,
			LastNudged: r.LastNudged,
		},
		Owners:  []string(r.Owners),
		Members: []string(r.Members),
	}
}

func recordFromEvent(event *types.Event) eventRecord {
	rec := eventRecord{
		Id:           event.Id,
		RoomName:     event.RoomName,
		Created:      event.Created,
		Name:         event.Name,
		Tags:         event.Tags,
		TargetFilter: event.TargetFilter,
	}
	if event.Source != nil {
		rec.SourceSystem = event.Source.System
		if event.Source.User != nil {
			rec.SourceUserId = event.Source.User.Id
		}
	}
	return rec
}

func (r eventRecord) toEvent() *types.Event {
	source := &types.Source{System: r.SourceSystem}
	if r.SourceUserId != "" {
		source.User = &types.User{Id: r.SourceUserId}
	}
	return &types.Event{
		Id:           r.Id,
		RoomName:     r.RoomName,
		Source:       source,
		Created:      r.Created,
		Name:         r.Name,
		Tags:         r.Tags,
		TargetFilter: r.TargetFilter,
	}
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGorm(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil
	}
	return &GormPersist{db}, nil
}

func setupGorm(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	var dialector gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.PersistenceConfig.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.PersistenceConfig.DSN)
	default:
		return nil, fmt.Errorf("unknown persistence type %s", cfg.PersistenceConfig.Type)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(&types.User{}, &roomRecord{}, &types.Message{}, &eventRecord{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (p *GormPersist) StoreUser(user types.User) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

func (p *GormPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return p.db.First(user, "id = ?", user.Id).Error
}

func (p *GormPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.Find(&users).Error
	return users, err
}

func (p *GormPersist) DeleteUser(user *types.User) error {
	return p.db.Delete(&types.User{}, "id = ?", user.Id).Error
}

func (p *GormPersist) StoreRoom(state types.RoomState) error {
	rec := recordFromRoomState(state)
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

func (p *GormPersist) GetRoom(state *types.RoomState) error {
	if state.Room.Name == "" {
		return fmt.Errorf("no room name")
	}
	rec := roomRecord{}
	if err := p.db.First(&rec, "name = ?", state.Room.Name).Error; err != nil {
		return err
	}
	*state = rec.toRoomState()
	return nil
}

func (p *GormPersist) GetRooms() ([]*types.RoomState, error) {
	recs := make([]roomRecord, 0)
	if err := p.db.Find(&recs).Error; err != nil {
		return nil, err
	}
	states := make([]*types.RoomState, 0, len(recs))
	for _, rec := range recs {
		state := rec.toRoomState()
		states = append(states, &state)
	}
	return states, nil
}

func (p *GormPersist) DeleteRoom(state *types.RoomState) error {
	return p.db.Delete(&roomRecord{}, "name = ?", state.Room.Name).Error
}

func (p *GormPersist) StoreMessages(msgs []*types.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(msgs).Error
}

func (p *GormPersist) StoreEvents(events []*types.Event) error {
	if len(events) == 0 {
		return nil
	}
	recs := make([]eventRecord, 0, len(events))
	for _, event := range events {
		recs = append(recs, recordFromEvent(event))
	}
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&recs).Error
}

func (p *GormPersist) GetEventHistory(fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Event, error) {
	recs := make([]eventRecord, 0)
	tx := p.db.Where("created >= ? AND created <= ?", fromTs, toTs).Order("created DESC").Offset(fromIdx)
	if maxCount > 0 {
		tx = tx.Limit(maxCount)
	}
	if err := tx.Find(&recs).Error; err != nil {
		return nil, err
	}
	events := make([]*types.Event, 0, len(recs))
	for _, rec := range recs {
		event := rec.toEvent()
		event.History = true
		events = append(events, event)
	}
	return events, nil
}

func (p *GormPersist) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
