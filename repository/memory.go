package repository

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hubbub-chat/hubbub/chat"
	"github.com/hubbub-chat/hubbub/persistence"
	"github.com/hubbub-chat/hubbub/types"
)

// Memory is the in-memory user/room graph backing the chat service. Users
// and rooms are held in keyed maps; membership and ownership are index sets
// (roomName→set of userId, userId→set of roomName) that are always mutated
// in pairs, so the graph never holds a one-sided membership.
//
// Mutations are tracked and flushed to an optional Persister on
// CommitChanges; without a persister the repository runs purely in memory.
type Memory struct {
	mu sync.RWMutex

	usersById  map[string]*types.User
	idByName   map[string]string // folded name -> user id
	nameById   map[string]string // user id -> folded name (for re-indexing)
	idByClient map[string]string // client id -> user id
	clientById map[string]string // user id -> client id (for re-indexing)

	roomsByName map[string]*types.Room // folded name -> room

	members   map[string]map[string]struct{} // folded room name -> user ids
	owners    map[string]map[string]struct{} // folded room name -> user ids
	userRooms map[string]map[string]struct{} // user id -> folded room names
	userOwned map[string]map[string]struct{} // user id -> folded room names

	messages map[string][]*types.Message // folded room name -> append-only

	dirtyUsers  map[string]struct{}
	dirtyRooms  map[string]struct{}
	newMessages []*types.Message

	persister persistence.Persister
}

var _ chat.Repository = (*Memory)(nil)

// NewMemory builds the repository, warmed up from the persister when one is
// configured.
func NewMemory(persister persistence.Persister) (*Memory, error) {
	m := &Memory{
		usersById:   make(map[string]*types.User),
		idByName:    make(map[string]string),
		nameById:    make(map[string]string),
		idByClient:  make(map[string]string),
		clientById:  make(map[string]string),
		roomsByName: make(map[string]*types.Room),
		members:     make(map[string]map[string]struct{}),
		owners:      make(map[string]map[string]struct{}),
		userRooms:   make(map[string]map[string]struct{}),
		userOwned:   make(map[string]map[string]struct{}),
		messages:    make(map[string][]*types.Message),
		dirtyUsers:  make(map[string]struct{}),
		dirtyRooms:  make(map[string]struct{}),
		persister:   persister,
	}
	if persister == nil {
		return m, nil
	}
	users, err := persister.GetUsers()
	if err != nil {
		return nil, fmt.Errorf("could not load users: %w", err)
	}
	for _, user := range users {
		// persisted users start out offline, they reconnect to come back
		user.Status = types.StatusOffline
		user.ClientId = ""
		m.indexUser(user)
	}
	states, err := persister.GetRooms()
	if err != nil {
		return nil, fmt.Errorf("could not load rooms: %w", err)
	}
	for _, state := range states {
		room := state.Room
		m.indexRoom(&room)
		for _, userId := range state.Owners {
			m.addOwnerLocked(userId, room.Name)
		}
		for _, userId := range state.Members {
			m.joinRoomLocked(userId, room.Name)
		}
	}
	return m, nil
}

func fold(name string) string {
	return strings.ToLower(name)
}

func (m *Memory) indexUser(user *types.User) {
	m.usersById[user.Id] = user
	m.idByName[fold(user.Name)] = user.Id
	m.nameById[user.Id] = fold(user.Name)
	if old, ok := m.clientById[user.Id]; ok && old != user.ClientId {
		// drop the stale binding unless another user took the connection over
		if m.idByClient[old] == user.Id {
			delete(m.idByClient, old)
		}
		delete(m.clientById, user.Id)
	}
	if user.ClientId != "" {
		m.idByClient[user.ClientId] = user.Id
		m.clientById[user.Id] = user.ClientId
	}
}

func (m *Memory) indexRoom(room *types.Room) {
	m.roomsByName[fold(room.Name)] = room
}

func (m *Memory) GetUserById(id string) (*types.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.usersById[id]
	return user, ok
}

func (m *Memory) GetUserByName(name string) (*types.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.idByName[fold(name)]
	if !ok {
		return nil, false
	}
	return m.usersById[id], true
}

func (m *Memory) GetUserByClientId(clientId string) (*types.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.idByClient[clientId]
	if !ok {
		return nil, false
	}
	return m.usersById[id], true
}

func (m *Memory) GetRoomByName(name string) (*types.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.roomsByName[fold(name)]
	return room, ok
}

func (m *Memory) SearchUsers(substr string) []*types.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := fold(substr)
	users := make([]*types.User, 0)
	for _, user := range m.usersById {
		if user.Online() && strings.Contains(fold(user.Name), needle) {
			users = append(users, user)
		}
	}
	sortUsers(users)
	return users
}

func (m *Memory) Users() []*types.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]*types.User, 0, len(m.usersById))
	for _, user := range m.usersById {
		users = append(users, user)
	}
	sortUsers(users)
	return users
}

func (m *Memory) Rooms() []*types.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rooms := make([]*types.Room, 0, len(m.roomsByName))
	for _, room := range m.roomsByName {
		rooms = append(rooms, room)
	}
	sortRooms(rooms)
	return rooms
}

func (m *Memory) AddUser(user *types.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexUser(user)
	m.dirtyUsers[user.Id] = struct{}{}
}

func (m *Memory) AddRoom(room *types.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexRoom(room)
	m.dirtyRooms[fold(room.Name)] = struct{}{}
}

func (m *Memory) UpdateUser(user *types.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.nameById[user.Id]; ok && old != fold(user.Name) {
		delete(m.idByName, old)
	}
	m.indexUser(user)
	m.dirtyUsers[user.Id] = struct{}{}
}

func (m *Memory) UpdateRoom(room *types.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirtyRooms[fold(room.Name)] = struct{}{}
}

func (m *Memory) JoinRoom(userId, roomName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinRoomLocked(userId, roomName)
	m.dirtyRooms[fold(roomName)] = struct{}{}
}

func (m *Memory) joinRoomLocked(userId, roomName string) {
	key := fold(roomName)
	if m.members[key] == nil {
		m.members[key] = make(map[string]struct{})
	}
	m.members[key][userId] = struct{}{}
	if m.userRooms[userId] == nil {
		m.userRooms[userId] = make(map[string]struct{})
	}
	m.userRooms[userId][key] = struct{}{}
}

func (m *Memory) LeaveRoom(userId, roomName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fold(roomName)
	delete(m.members[key], userId)
	delete(m.userRooms[userId], key)
	m.dirtyRooms[key] = struct{}{}
}

func (m *Memory) AddOwner(userId, roomName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addOwnerLocked(userId, roomName)
	m.dirtyRooms[fold(roomName)] = struct{}{}
}

func (m *Memory) addOwnerLocked(userId, roomName string) {
	key := fold(roomName)
	if m.owners[key] == nil {
		m.owners[key] = make(map[string]struct{})
	}
	m.owners[key][userId] = struct{}{}
	if m.userOwned[userId] == nil {
		m.userOwned[userId] = make(map[string]struct{})
	}
	m.userOwned[userId][key] = struct{}{}
}

func (m *Memory) IsMember(userId, roomName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.members[fold(roomName)][userId]
	return ok
}

func (m *Memory) IsOwner(userId, roomName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.owners[fold(roomName)][userId]
	return ok
}

func (m *Memory) MembersOf(roomName string) []*types.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usersFromSet(m.members[fold(roomName)])
}

func (m *Memory) OwnersOf(roomName string) []*types.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usersFromSet(m.owners[fold(roomName)])
}

func (m *Memory) usersFromSet(set map[string]struct{}) []*types.User {
	users := make([]*types.User, 0, len(set))
	for userId := range set {
		if user, ok := m.usersById[userId]; ok {
			users = append(users, user)
		}
	}
	sortUsers(users)
	return users
}

func (m *Memory) RoomsOf(userId string) []*types.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roomsFromSet(m.userRooms[userId])
}

func (m *Memory) OwnedRoomsOf(userId string) []*types.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roomsFromSet(m.userOwned[userId])
}

func (m *Memory) roomsFromSet(set map[string]struct{}) []*types.Room {
	rooms := make([]*types.Room, 0, len(set))
	for key := range set {
		if room, ok := m.roomsByName[key]; ok {
			rooms = append(rooms, room)
		}
	}
	sortRooms(rooms)
	return rooms
}

func (m *Memory) AddMessage(msg *types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fold(msg.RoomName)
	m.messages[key] = append(m.messages[key], msg)
	m.newMessages = append(m.newMessages, msg)
}

func (m *Memory) MessagesOf(roomName string) []*types.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[fold(roomName)]
	out := make([]*types.Message, len(msgs))
	copy(out, msgs)
	return out
}

// CommitChanges flushes every mutation since the last commit to the
// persister. The dirty sets are only cleared on success, a failed commit is
// retried in full by the next one.
func (m *Memory) CommitChanges() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persister == nil {
		m.dirtyUsers = make(map[string]struct{})
		m.dirtyRooms = make(map[string]struct{})
		m.newMessages = nil
		return nil
	}
	for userId := range m.dirtyUsers {
		user, ok := m.usersById[userId]
		if !ok {
			continue
		}
		if err := m.persister.StoreUser(*user); err != nil {
			return fmt.Errorf("could not persist user %s: %w", userId, err)
		}
	}
	for key := range m.dirtyRooms {
		room, ok := m.roomsByName[key]
		if !ok {
			continue
		}
		state := types.RoomState{
			Room:    *room,
			Owners:  idsOf(m.owners[key]),
			Members: idsOf(m.members[key]),
		}
		if err := m.persister.StoreRoom(state); err != nil {
			return fmt.Errorf("could not persist room %s: %w", room.Name, err)
		}
	}
	if len(m.newMessages) > 0 {
		if err := m.persister.StoreMessages(m.newMessages); err != nil {
			return fmt.Errorf("could not persist messages: %w", err)
		}
	}
	m.dirtyUsers = make(map[string]struct{})
	m.dirtyRooms = make(map[string]struct{})
	m.newMessages = nil
	return nil
}

func idsOf(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortUsers(users []*types.User) {
	sort.Slice(users, func(i, j int) bool {
		return fold(users[i].Name) < fold(users[j].Name)
	})
}

func sortRooms(rooms []*types.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		return fold(rooms[i].Name) < fold(rooms[j].Name)
	})
}
