package command

import (
	"errors"
	"strings"

	"github.com/hubbub-chat/hubbub/chat"
	"github.com/hubbub-chat/hubbub/notify"
	"github.com/hubbub-chat/hubbub/repository"
	"github.com/hubbub-chat/hubbub/types"
)

// Tier is the permission level a command requires. Guards run in tier order
// before the handler body: base needs nothing, user needs a resolved
// identity, room additionally needs membership in the caller's active room,
// owner additionally needs ownership of it.
type Tier int

const (
	TierBase Tier = iota
	TierUser
	TierRoom
	TierOwner
)

// Manager dispatches the commands of one caller. The caller's identity and
// active room are passed in explicitly on construction, there is no ambient
// session state in here.
type Manager struct {
	clientId string
	userId   string
	roomName string

	service  *chat.Service
	repo     chat.Repository
	notifier notify.Notifier
}

func NewManager(clientId, userId, roomName string, service *chat.Service, repo chat.Repository, notifier notify.Notifier) *Manager {
	return &Manager{
		clientId: clientId,
		userId:   userId,
		roomName: roomName,
		service:  service,
		repo:     repo,
		notifier: notifier,
	}
}

// callerContext is what the tier guard resolved for the handler body.
type callerContext struct {
	args []string
	user *types.User // nil for base tier
	room *types.Room // nil below room tier
}

type handlerFunc func(m *Manager, ctx *callerContext) error

type descriptor struct {
	name string
	tier Tier
	// match overrides the exact name comparison (suffix commands, arity
	// dependent forms). Left nil it is name equality, case-insensitive.
	match  func(commandName string, argc int) bool
	handle handlerFunc
}

func (d *descriptor) matches(commandName string, argc int) bool {
	if d.match != nil {
		return d.match(commandName, argc)
	}
	return strings.EqualFold(commandName, d.name)
}

// The descriptor table, in tier order: first match wins. The 2-arg forms of
// leave and nudge act on a named target and only need an identity, the 0-arg
// forms act on the active room.
var handlers = []descriptor{
	{name: "help", tier: TierBase, handle: (*Manager).handleHelp},
	{name: "nick", tier: TierBase, handle: (*Manager).handleNick},

	{name: "rooms", tier: TierUser, handle: (*Manager).handleRooms},
	{name: "list", tier: TierUser, handle: (*Manager).handleList},
	{name: "who", tier: TierUser, handle: (*Manager).handleWho},
	{name: "join", tier: TierUser, handle: (*Manager).handleJoin},
	{name: "create", tier: TierUser, handle: (*Manager).handleCreate},
	{name: "msg", tier: TierUser, handle: (*Manager).handleMsg},
	{name: "gravatar", tier: TierUser, handle: (*Manager).handleGravatar},
	{name: "leave", tier: TierUser,
		match:  func(name string, argc int) bool { return strings.EqualFold(name, "leave") && argc == 1 },
		handle: (*Manager).handleLeaveNamed},
	{name: "nudge", tier: TierUser,
		match:  func(name string, argc int) bool { return strings.EqualFold(name, "nudge") && argc == 1 },
		handle: (*Manager).handleNudgeUser},
	{name: "addowner", tier: TierUser,
		match: func(name string, argc int) bool {
			return strings.HasSuffix(strings.ToLower(name), "addowner")
		},
		handle: (*Manager).handleAddOwner},

	{name: "me", tier: TierRoom, handle: (*Manager).handleMe},
	{name: "leave", tier: TierRoom, handle: (*Manager).handleLeaveActive},
	{name: "nudge", tier: TierRoom, handle: (*Manager).handleNudgeRoom},

	{name: "kick", tier: TierOwner, handle: (*Manager).handleKick},
}

// TryHandleCommand parses and dispatches one raw input line. A line without
// the leading slash is not a command: (false, nil), the caller sends it as a
// chat message instead. A handled command reports (true, err) with err nil
// on success; nothing is committed or notified on failure.
func (m *Manager) TryHandleCommand(command string) (bool, error) {
	command = strings.TrimSpace(command)
	if !strings.HasPrefix(command, "/") {
		return false, nil
	}
	parts := strings.Fields(command[1:])
	if len(parts) == 0 {
		return true, chat.Errorf("'%s' is not a valid command.", command)
	}
	commandName := parts[0]
	args := parts[1:]

	for i := range handlers {
		d := &handlers[i]
		if !d.matches(commandName, len(args)) {
			continue
		}
		ctx, err := m.guard(d.tier)
		if err != nil {
			return true, err
		}
		ctx.args = args
		return true, d.handle(m, ctx)
	}
	return true, chat.Errorf("'%s' is not a valid command.", commandName)
}

// guard resolves the caller up to the required tier, failing fast with the
// tier's own message.
func (m *Manager) guard(tier Tier) (*callerContext, error) {
	ctx := &callerContext{}
	if tier == TierBase {
		return ctx, nil
	}
	user, err := repository.VerifyUserId(m.repo, m.userId)
	if err != nil {
		return nil, err
	}
	ctx.user = user
	if tier == TierUser {
		return ctx, nil
	}
	room, err := repository.VerifyUserRoom(m.repo, user, m.roomName)
	if err != nil {
		return nil, err
	}
	ctx.room = room
	if tier == TierRoom {
		return ctx, nil
	}
	if !m.repo.IsOwner(user.Id, room.Name) {
		return nil, chat.Errorf("You are not an owner of %s", room.Name)
	}
	return ctx, nil
}

// commit persists the handler's mutations. A conflicting concurrent commit
// becomes a retryable domain error rather than a lost write.
func (m *Manager) commit() error {
	err := m.repo.CommitChanges()
	if err == nil {
		return nil
	}
	if errors.Is(err, chat.ErrConflict) {
		return chat.Errorf("Someone else changed that at the same time, please try again.")
	}
	return err
}

// normalizeUserName strips the optional @-mention prefix.
func normalizeUserName(userName string) string {
	return strings.TrimPrefix(userName, "@")
}
