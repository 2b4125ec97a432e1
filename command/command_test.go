package command_test

import (
	"fmt"
	"testing"

	"github.com/hubbub-chat/hubbub/auth"
	"github.com/hubbub-chat/hubbub/chat"
	"github.com/hubbub-chat/hubbub/command"
	"github.com/hubbub-chat/hubbub/notify"
	"github.com/hubbub-chat/hubbub/repository"
	"github.com/hubbub-chat/hubbub/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder counts notifier calls, one entry per call.
type recorder struct {
	calls []string
}

var _ notify.Notifier = (*recorder)(nil)

func (r *recorder) record(format string, args ...interface{}) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) last() string {
	if len(r.calls) == 0 {
		return ""
	}
	return r.calls[len(r.calls)-1]
}

func (r *recorder) OnUserCreated(user *types.User) { r.record("user_created %s", user.Name) }
func (r *recorder) OnUserNameChanged(user *types.User, oldName, newName string) {
	r.record("user_renamed %s %s", oldName, newName)
}
func (r *recorder) OnPasswordSet(user *types.User)     { r.record("password_set %s", user.Name) }
func (r *recorder) OnPasswordChanged(user *types.User) { r.record("password_changed %s", user.Name) }
func (r *recorder) OnGravatarChanged(user *types.User) { r.record("gravatar %s", user.Name) }
func (r *recorder) OnJoinedRoom(user *types.User, room *types.Room) {
	r.record("joined %s %s", user.Name, room.Name)
}
func (r *recorder) OnLeftRoom(user *types.User, room *types.Room) {
	r.record("left %s %s", user.Name, room.Name)
}
func (r *recorder) OnOwnerAdded(targetUser *types.User, room *types.Room) {
	r.record("owner_added %s %s", targetUser.Name, room.Name)
}
func (r *recorder) OnUserKicked(room *types.Room, targetUser *types.User) {
	r.record("kicked %s %s", targetUser.Name, room.Name)
}
func (r *recorder) OnUserNudged(from, to *types.User) {
	r.record("nudged %s %s", from.Name, to.Name)
}
func (r *recorder) OnRoomNudged(room *types.Room, from *types.User) {
	r.record("room_nudged %s %s", room.Name, from.Name)
}
func (r *recorder) OnPrivateMessage(from, to *types.User, messageText string) {
	r.record("msg %s %s %s", from.Name, to.Name, messageText)
}
func (r *recorder) OnSelfMessage(room *types.Room, user *types.User, content string) {
	r.record("me %s %s %s", room.Name, user.Name, content)
}
func (r *recorder) ListUsers(clientId string, users []*types.User) {
	r.record("list_users %d", len(users))
}
func (r *recorder) ListRoomUsers(clientId string, room *types.Room, names []string) {
	r.record("list_room_users %s %d", room.Name, len(names))
}
func (r *recorder) ListRooms(clientId string, about *types.User, rooms []*types.Room) {
	r.record("list_rooms %s %d", about.Name, len(rooms))
}
func (r *recorder) ShowHelp(clientId string)                      { r.record("help") }
func (r *recorder) ShowRooms(clientId string, rooms []*types.Room) { r.record("rooms %d", len(rooms)) }

type env struct {
	repo     *repository.Memory
	service  *chat.Service
	notifier *recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repo, err := repository.NewMemory(nil)
	require.NoError(t, err)
	return &env{
		repo:     repo,
		service:  chat.NewService(repo, auth.SHA256Hasher{}),
		notifier: &recorder{},
	}
}

func (e *env) manager(clientId, userId, roomName string) *command.Manager {
	return command.NewManager(clientId, userId, roomName, e.service, e.repo, e.notifier)
}

func (e *env) addUser(t *testing.T, name, clientId string) *types.User {
	t.Helper()
	user, err := e.service.AddUser(name, clientId, "")
	require.NoError(t, err)
	return user
}

func TestTryHandleCommandPassthrough(t *testing.T) {
	e := newEnv(t)
	m := e.manager("client-1", "", "")

	handled, err := m.TryHandleCommand("hello there")
	assert.False(t, handled)
	assert.NoError(t, err)
	assert.Empty(t, e.notifier.calls)
}

func TestTryHandleCommandUnknown(t *testing.T) {
	e := newEnv(t)
	m := e.manager("client-1", "", "")

	handled, err := m.TryHandleCommand("/frobnicate now")
	assert.True(t, handled)
	assert.EqualError(t, err, "'frobnicate' is not a valid command.")

	handled, err = m.TryHandleCommand("/ ")
	assert.True(t, handled)
	require.Error(t, err)
}

func TestTierGuards(t *testing.T) {
	e := newEnv(t)

	// user tier without an identity
	m := e.manager("client-1", "", "")
	handled, err := m.TryHandleCommand("/rooms")
	assert.True(t, handled)
	assert.EqualError(t, err, "You don't have a name. Pick a name using '/nick nickname'.")

	// room tier without an active room
	bob := e.addUser(t, "Bob", "client-1")
	m = e.manager("client-1", bob.Id, "")
	handled, err = m.TryHandleCommand("/me waves")
	assert.True(t, handled)
	assert.EqualError(t, err, "Use '/join room' to join a room.")

	// room tier in a room the caller is not a member of
	_, err = e.service.AddRoom(bob, "dev")
	require.NoError(t, err)
	alice := e.addUser(t, "Alice", "client-2")
	m = e.manager("client-2", alice.Id, "dev")
	_, err = m.TryHandleCommand("/me waves")
	assert.EqualError(t, err, "You're not in 'dev'. Use '/join dev' to join it.")

	// owner tier as a plain member
	e.service.JoinRoom(alice, mustRoom(t, e, "dev"))
	m = e.manager("client-2", alice.Id, "dev")
	_, err = m.TryHandleCommand("/kick Bob")
	assert.EqualError(t, err, "You are not an owner of dev")

	// no notifications were emitted for any of the failures
	assert.Empty(t, e.notifier.calls)
}

func mustRoom(t *testing.T, e *env, name string) *types.Room {
	t.Helper()
	room, ok := e.repo.GetRoomByName(name)
	require.True(t, ok)
	return room
}

func TestNickFlow(t *testing.T) {
	e := newEnv(t)

	// anonymous create
	m := e.manager("client-1", "", "")
	handled, err := m.TryHandleCommand("/nick Bob")
	assert.True(t, handled)
	require.NoError(t, err)
	assert.Equal(t, "user_created Bob", e.notifier.last())
	bob, ok := e.repo.GetUserByClientId("client-1")
	require.True(t, ok)
	assert.Equal(t, "Bob", bob.Name)

	// rename
	m = e.manager("client-1", bob.Id, "")
	_, err = m.TryHandleCommand("/nick Bobby")
	require.NoError(t, err)
	assert.Equal(t, "user_renamed Bob Bobby", e.notifier.last())

	// set a first password, then change it
	_, err = m.TryHandleCommand("/nick Bobby secret1")
	require.NoError(t, err)
	assert.Equal(t, "password_set Bobby", e.notifier.last())
	_, err = m.TryHandleCommand("/nick Bobby secret1")
	assert.EqualError(t, err, "Use '/nick [nickname] [oldpassword] [newpassword]' to change an existing password.")
	_, err = m.TryHandleCommand("/nick Bobby secret1 secret2")
	require.NoError(t, err)
	assert.Equal(t, "password_changed Bobby", e.notifier.last())

	// claiming someone else's nick
	e.addUser(t, "Alice", "client-9")
	_, err = m.TryHandleCommand("/nick Alice pw")
	assert.EqualError(t, err, "You can't set/change the password for a nickname you don't own.")

	// anonymous claim of a protected nick
	m2 := e.manager("client-2", "", "")
	_, err = m2.TryHandleCommand("/nick Bobby")
	assert.EqualError(t, err, "Username Bobby already taken, please pick a new one using '/nick nickname'.")
	_, err = m2.TryHandleCommand("/nick Bobby wrongpw")
	assert.EqualError(t, err, "Unable to claim 'Bobby'.")
	_, err = m2.TryHandleCommand("/nick Bobby secret2")
	require.NoError(t, err)
	rebound, ok := e.repo.GetUserByClientId("client-2")
	require.True(t, ok)
	assert.Equal(t, bob.Id, rebound.Id)

	// anonymous password change has no identity to change
	m3 := e.manager("client-3", "", "")
	_, err = m3.TryHandleCommand("/nick Carol old123 new123")
	assert.EqualError(t, err, "You don't have a name. Pick a name using '/nick nickname'.")
}

func TestCreateJoinLeave(t *testing.T) {
	e := newEnv(t)
	bob := e.addUser(t, "Bob", "client-1")
	alice := e.addUser(t, "Alice", "client-2")

	m := e.manager("client-1", bob.Id, "")
	_, err := m.TryHandleCommand("/create dev")
	require.NoError(t, err)
	assert.Equal(t, "joined Bob dev", e.notifier.last())
	assert.True(t, e.repo.IsOwner(bob.Id, "dev"))

	m2 := e.manager("client-2", alice.Id, "")
	_, err = m2.TryHandleCommand("/join dev")
	require.NoError(t, err)
	assert.Equal(t, "joined Alice dev", e.notifier.last())
	_, err = m2.TryHandleCommand("/join dev")
	assert.EqualError(t, err, "You're already in that room!")
	_, err = m2.TryHandleCommand("/join nosuch")
	assert.EqualError(t, err, "Unable to find room 'nosuch'.")

	// the 1-arg leave works from anywhere, the 0-arg form needs the active room
	_, err = m2.TryHandleCommand("/leave dev")
	require.NoError(t, err)
	assert.Equal(t, "left Alice dev", e.notifier.last())
	assert.False(t, e.repo.IsMember(alice.Id, "dev"))

	m = e.manager("client-1", bob.Id, "dev")
	_, err = m.TryHandleCommand("/leave")
	require.NoError(t, err)
	assert.Equal(t, "left Bob dev", e.notifier.last())
}

func TestAddOwnerSuffixMatch(t *testing.T) {
	e := newEnv(t)
	bob := e.addUser(t, "Bob", "client-1")
	alice := e.addUser(t, "Alice", "client-2")
	_, err := e.service.AddRoom(bob, "dev")
	require.NoError(t, err)

	m := e.manager("client-1", bob.Id, "")
	_, err = m.TryHandleCommand("/addowner Alice dev")
	require.NoError(t, err)
	assert.Equal(t, "owner_added Alice dev", e.notifier.last())
	assert.True(t, e.repo.IsOwner(alice.Id, "dev"))

	// any command name ending in addowner dispatches the same handler
	carol := e.addUser(t, "Carol", "client-3")
	_, err = m.TryHandleCommand("/makeaddowner Carol dev")
	require.NoError(t, err)
	assert.True(t, e.repo.IsOwner(carol.Id, "dev"))

	_, err = m.TryHandleCommand("/addowner")
	assert.EqualError(t, err, "Who do you want to make an owner?")
	_, err = m.TryHandleCommand("/addowner Alice")
	assert.EqualError(t, err, "Which room?")
}

func TestKick(t *testing.T) {
	e := newEnv(t)
	bob := e.addUser(t, "Bob", "client-1")
	alice := e.addUser(t, "Alice", "client-2")
	carol := e.addUser(t, "Carol", "client-3")
	room, err := e.service.AddRoom(bob, "dev")
	require.NoError(t, err)

	m := e.manager("client-1", bob.Id, "dev")
	_, err = m.TryHandleCommand("/kick Alice")
	assert.EqualError(t, err, "You're the only person in here...")

	e.service.JoinRoom(alice, room)
	e.service.JoinRoom(carol, room)
	require.NoError(t, e.service.AddOwner(bob, alice, room))

	// owner kicks a member
	m2 := e.manager("client-2", alice.Id, "dev")
	_, err = m2.TryHandleCommand("/kick Carol")
	require.NoError(t, err)
	assert.Equal(t, "kicked Carol dev", e.notifier.last())
	assert.False(t, e.repo.IsMember(carol.Id, "dev"))

	// owner cannot kick an owner, the creator can
	_, err = m2.TryHandleCommand("/kick Bob")
	assert.EqualError(t, err, "Owners cannot kick other owners. Only the room creator can kick an owner.")
	_, err = m.TryHandleCommand("/kick @Alice")
	require.NoError(t, err)
	assert.False(t, e.repo.IsMember(alice.Id, "dev"))
}

func TestMsg(t *testing.T) {
	e := newEnv(t)
	bob := e.addUser(t, "Bob", "client-1")

	m := e.manager("client-1", bob.Id, "")
	_, err := m.TryHandleCommand("/msg Alice hi")
	assert.EqualError(t, err, "You're the only person in here...")

	e.addUser(t, "Alice", "client-2")
	_, err = m.TryHandleCommand("/msg")
	assert.EqualError(t, err, "Who are you trying send a private message to?")
	_, err = m.TryHandleCommand("/msg Bob hi")
	assert.EqualError(t, err, "You can't private message yourself!")
	_, err = m.TryHandleCommand("/msg Alice")
	assert.EqualError(t, err, "What did you want to say to 'Alice'.")
	_, err = m.TryHandleCommand("/msg nosuch hi")
	assert.EqualError(t, err, "Unable to find user 'nosuch'.")

	_, err = m.TryHandleCommand("/msg @Alice hello there")
	require.NoError(t, err)
	assert.Equal(t, "msg Bob Alice hello there", e.notifier.last())
}

func TestNudgeDispatch(t *testing.T) {
	e := newEnv(t)
	bob := e.addUser(t, "Bob", "client-1")
	alice := e.addUser(t, "Alice", "client-2")
	room, err := e.service.AddRoom(bob, "dev")
	require.NoError(t, err)
	e.service.JoinRoom(alice, room)

	// 1-arg form nudges a user and only needs an identity
	m := e.manager("client-1", bob.Id, "")
	_, err = m.TryHandleCommand("/nudge Alice")
	require.NoError(t, err)
	assert.Equal(t, "nudged Bob Alice", e.notifier.last())
	_, err = m.TryHandleCommand("/nudge Alice")
	assert.EqualError(t, err, "User can only be nudged once every 60 seconds")

	// 0-arg form nudges the active room
	m = e.manager("client-1", bob.Id, "dev")
	_, err = m.TryHandleCommand("/nudge")
	require.NoError(t, err)
	assert.Equal(t, "room_nudged dev Bob", e.notifier.last())
}

func TestListWhoRooms(t *testing.T) {
	e := newEnv(t)
	bob := e.addUser(t, "Bob", "client-1")
	alice := e.addUser(t, "Alice", "client-2")
	room, err := e.service.AddRoom(bob, "dev")
	require.NoError(t, err)
	e.service.JoinRoom(alice, room)
	alice.Status = types.StatusOffline
	e.repo.UpdateUser(alice)

	m := e.manager("client-1", bob.Id, "")
	_, err = m.TryHandleCommand("/rooms")
	require.NoError(t, err)
	assert.Equal(t, "rooms 1", e.notifier.last())

	_, err = m.TryHandleCommand("/list")
	assert.EqualError(t, err, "List users in which room?")

	// offline members are not listed
	_, err = m.TryHandleCommand("/list dev")
	require.NoError(t, err)
	assert.Equal(t, "list_room_users dev 1", e.notifier.last())

	_, err = m.TryHandleCommand("/who")
	require.NoError(t, err)
	assert.Equal(t, "list_users 2", e.notifier.last())

	// exact match lists the user's rooms
	_, err = m.TryHandleCommand("/who alice")
	require.NoError(t, err)
	assert.Equal(t, "list_rooms Alice 1", e.notifier.last())

	// substring with a single online hit resolves to that user
	_, err = m.TryHandleCommand("/who bo")
	require.NoError(t, err)
	assert.Equal(t, "list_rooms Bob 1", e.notifier.last())
}

func TestHelp(t *testing.T) {
	e := newEnv(t)
	m := e.manager("client-1", "", "")
	handled, err := m.TryHandleCommand("/help")
	assert.True(t, handled)
	require.NoError(t, err)
	assert.Equal(t, "help", e.notifier.last())
}
