package repository

import (
	"testing"
	"time"

	"github.com/hubbub-chat/hubbub/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePersister records stores in memory, enough to test the commit flush
// and the warm start.
type fakePersister struct {
	users    map[string]types.User
	rooms    map[string]types.RoomState
	messages []*types.Message
}

func newFakePersister() *fakePersister {
	return &fakePersister{
		users: make(map[string]types.User),
		rooms: make(map[string]types.RoomState),
	}
}

func (p *fakePersister) StoreUser(user types.User) error {
	p.users[user.Id] = user
	return nil
}

func (p *fakePersister) GetUser(user *types.User) error {
	*user = p.users[user.Id]
	return nil
}

func (p *fakePersister) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0, len(p.users))
	for id := range p.users {
		user := p.users[id]
		users = append(users, &user)
	}
	return users, nil
}

func (p *fakePersister) DeleteUser(user *types.User) error {
	delete(p.users, user.Id)
	return nil
}

func (p *fakePersister) StoreRoom(state types.RoomState) error {
	p.rooms[state.Room.Name] = state
	return nil
}

func (p *fakePersister) GetRoom(state *types.RoomState) error {
	*state = p.rooms[state.Room.Name]
	return nil
}

func (p *fakePersister) GetRooms() ([]*types.RoomState, error) {
	states := make([]*types.RoomState, 0, len(p.rooms))
	for name := range p.rooms {
		state := p.rooms[name]
		states = append(states, &state)
	}
	return states, nil
}

func (p *fakePersister) DeleteRoom(state *types.RoomState) error {
	delete(p.rooms, state.Room.Name)
	return nil
}

func (p *fakePersister) StoreMessages(msgs []*types.Message) error {
	p.messages = append(p.messages, msgs...)
	return nil
}

func (p *fakePersister) StoreEvents(events []*types.Event) error { return nil }

func (p *fakePersister) GetEventHistory(fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Event, error) {
	return nil, nil
}

func (p *fakePersister) Close() error { return nil }

func TestMembershipSymmetry(t *testing.T) {
	m, err := NewMemory(nil)
	require.NoError(t, err)

	m.AddUser(&types.User{Id: "u1", Name: "Bob"})
	m.AddRoom(&types.Room{Name: "Dev", CreatorId: "u1"})

	m.JoinRoom("u1", "dev")
	assert.True(t, m.IsMember("u1", "DEV"))
	rooms := m.RoomsOf("u1")
	require.Len(t, rooms, 1)
	assert.Equal(t, "Dev", rooms[0].Name)
	members := m.MembersOf("dev")
	require.Len(t, members, 1)
	assert.Equal(t, "Bob", members[0].Name)

	m.LeaveRoom("u1", "DEV")
	assert.False(t, m.IsMember("u1", "dev"))
	assert.Empty(t, m.RoomsOf("u1"))
	assert.Empty(t, m.MembersOf("dev"))

	m.AddOwner("u1", "dev")
	assert.True(t, m.IsOwner("u1", "Dev"))
	owned := m.OwnedRoomsOf("u1")
	require.Len(t, owned, 1)
	assert.Equal(t, "Dev", owned[0].Name)
}

func TestRenameReindex(t *testing.T) {
	m, err := NewMemory(nil)
	require.NoError(t, err)

	user := &types.User{Id: "u1", Name: "Bob", ClientId: "client-1"}
	m.AddUser(user)

	user.Name = "Bobby"
	m.UpdateUser(user)

	_, ok := m.GetUserByName("bob")
	assert.False(t, ok)
	got, ok := m.GetUserByName("BOBBY")
	require.True(t, ok)
	assert.Equal(t, "u1", got.Id)
	got, ok = m.GetUserByClientId("client-1")
	require.True(t, ok)
	assert.Equal(t, "u1", got.Id)
}

func TestClientIdReindex(t *testing.T) {
	m, err := NewMemory(nil)
	require.NoError(t, err)

	user := &types.User{Id: "u1", Name: "Bob", ClientId: "conn-old"}
	m.AddUser(user)

	// rebinding to a new connection drops the old one
	user.ClientId = "conn-new"
	m.UpdateUser(user)
	_, ok := m.GetUserByClientId("conn-old")
	assert.False(t, ok)
	got, ok := m.GetUserByClientId("conn-new")
	require.True(t, ok)
	assert.Equal(t, "u1", got.Id)

	// clearing the binding (presence sweep) drops it entirely
	user.ClientId = ""
	m.UpdateUser(user)
	_, ok = m.GetUserByClientId("conn-new")
	assert.False(t, ok)

	// a connection taken over by another identity must survive the first
	// user's next update
	user.ClientId = "conn-shared"
	m.UpdateUser(user)
	other := &types.User{Id: "u2", Name: "Alice", ClientId: "conn-shared"}
	m.AddUser(other)
	user.ClientId = ""
	m.UpdateUser(user)
	got, ok = m.GetUserByClientId("conn-shared")
	require.True(t, ok)
	assert.Equal(t, "u2", got.Id)
}

func TestSearchUsers(t *testing.T) {
	m, err := NewMemory(nil)
	require.NoError(t, err)

	m.AddUser(&types.User{Id: "u1", Name: "Bob", Status: types.StatusActive})
	m.AddUser(&types.User{Id: "u2", Name: "Bobby", Status: types.StatusInactive})
	m.AddUser(&types.User{Id: "u3", Name: "Bobcat", Status: types.StatusOffline})
	m.AddUser(&types.User{Id: "u4", Name: "Alice", Status: types.StatusActive})

	// offline users never match, matching is case-insensitive contains
	found := m.SearchUsers("BOB")
	require.Len(t, found, 2)
	assert.Equal(t, "Bob", found[0].Name)
	assert.Equal(t, "Bobby", found[1].Name)
}

func TestCommitFlush(t *testing.T) {
	p := newFakePersister()
	m, err := NewMemory(p)
	require.NoError(t, err)

	m.AddUser(&types.User{Id: "u1", Name: "Bob"})
	m.AddRoom(&types.Room{Name: "dev", CreatorId: "u1"})
	m.AddOwner("u1", "dev")
	m.JoinRoom("u1", "dev")
	m.AddMessage(&types.Message{Id: "m1", RoomName: "dev", UserId: "u1", Content: "hi"})

	// nothing reaches the persister before the commit
	assert.Empty(t, p.users)
	assert.Empty(t, p.rooms)

	require.NoError(t, m.CommitChanges())
	assert.Len(t, p.users, 1)
	require.Contains(t, p.rooms, "dev")
	assert.Equal(t, []string{"u1"}, p.rooms["dev"].Owners)
	assert.Equal(t, []string{"u1"}, p.rooms["dev"].Members)
	require.Len(t, p.messages, 1)

	// a second commit has nothing left to flush
	p.messages = nil
	require.NoError(t, m.CommitChanges())
	assert.Empty(t, p.messages)
}

func TestWarmStart(t *testing.T) {
	p := newFakePersister()
	p.users["u1"] = types.User{Id: "u1", Name: "Bob", Status: types.StatusActive, ClientId: "stale"}
	p.rooms["dev"] = types.RoomState{
		Room:    types.Room{Name: "dev", CreatorId: "u1"},
		Owners:  []string{"u1"},
		Members: []string{"u1"},
	}

	m, err := NewMemory(p)
	require.NoError(t, err)

	user, ok := m.GetUserByName("bob")
	require.True(t, ok)
	// persisted users come back offline with no connection binding
	assert.Equal(t, types.StatusOffline, user.Status)
	assert.Empty(t, user.ClientId)
	_, ok = m.GetUserByClientId("stale")
	assert.False(t, ok)

	assert.True(t, m.IsOwner("u1", "dev"))
	assert.True(t, m.IsMember("u1", "dev"))
}
