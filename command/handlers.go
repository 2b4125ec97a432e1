package command

import (
	"strings"

	"github.com/hubbub-chat/hubbub/auth"
	"github.com/hubbub-chat/hubbub/chat"
	"github.com/hubbub-chat/hubbub/repository"
	"github.com/hubbub-chat/hubbub/types"
)

func (m *Manager) handleHelp(ctx *callerContext) error {
	m.notifier.ShowHelp(m.clientId)
	return nil
}

// handleNick is the claim flow:
//
//	/nick name                    - rename, or create/claim when anonymous
//	/nick name password           - authenticate, or set a first password
//	/nick name password newpass   - change an existing password
func (m *Manager) handleNick(ctx *callerContext) error {
	if len(ctx.args) == 0 || ctx.args[0] == "" {
		return chat.Errorf("No nick specified!")
	}
	userName := ctx.args[0]
	password := ""
	if len(ctx.args) > 1 {
		password = ctx.args[1]
	}
	newPassword := ""
	if len(ctx.args) > 2 {
		newPassword = ctx.args[2]
	}

	user, hasIdentity := m.repo.GetUserById(m.userId)

	if !hasIdentity {
		if newPassword != "" {
			// cannot change a password without an identity
			_, err := repository.VerifyUserId(m.repo, m.userId)
			return err
		}
		existing, ok := m.repo.GetUserByName(userName)
		if ok {
			if password == "" {
				return chat.ErrUserExists(userName)
			}
			if err := m.service.AuthenticateUser(userName, password); err != nil {
				return err
			}
			existing.ClientId = m.clientId
			m.repo.UpdateUser(existing)
			user = existing
		} else {
			var err error
			user, err = m.service.AddUser(userName, m.clientId, password)
			if err != nil {
				return err
			}
		}
		if err := m.commit(); err != nil {
			return err
		}
		m.notifier.OnUserCreated(user)
		return nil
	}

	if password == "" {
		oldName := user.Name
		if err := m.service.ChangeUserName(user, userName); err != nil {
			return err
		}
		if err := m.commit(); err != nil {
			return err
		}
		m.notifier.OnUserNameChanged(user, oldName, userName)
		return nil
	}

	// the caller specified a password, make sure they own the nick
	targetUser, err := repository.VerifyUser(m.repo, userName)
	if err != nil {
		return err
	}
	if targetUser.Id != user.Id {
		return chat.Errorf("You can't set/change the password for a nickname you don't own.")
	}
	if newPassword == "" {
		if targetUser.HashedPassword != "" {
			return chat.Errorf("Use '/nick [nickname] [oldpassword] [newpassword]' to change an existing password.")
		}
		if err := m.service.SetUserPassword(user, password); err != nil {
			return err
		}
		if err := m.commit(); err != nil {
			return err
		}
		m.notifier.OnPasswordSet(user)
		return nil
	}
	if err := m.service.ChangeUserPassword(user, password, newPassword); err != nil {
		return err
	}
	if err := m.commit(); err != nil {
		return err
	}
	m.notifier.OnPasswordChanged(user)
	return nil
}

func (m *Manager) handleRooms(ctx *callerContext) error {
	m.notifier.ShowRooms(m.clientId, m.repo.Rooms())
	return nil
}

func (m *Manager) handleList(ctx *callerContext) error {
	if len(ctx.args) < 1 {
		return chat.Errorf("List users in which room?")
	}
	room, err := repository.VerifyRoom(m.repo, ctx.args[0])
	if err != nil {
		return err
	}
	names := make([]string, 0)
	for _, member := range m.repo.MembersOf(room.Name) {
		if member.Online() {
			names = append(names, member.Name)
		}
	}
	m.notifier.ListRoomUsers(m.clientId, room, names)
	return nil
}

func (m *Manager) handleWho(ctx *callerContext) error {
	if len(ctx.args) == 0 {
		m.notifier.ListUsers(m.clientId, m.repo.Users())
		return nil
	}
	name := normalizeUserName(ctx.args[0])
	if user, ok := m.repo.GetUserByName(name); ok {
		m.notifier.ListRooms(m.clientId, user, m.repo.RoomsOf(user.Id))
		return nil
	}
	users := m.repo.SearchUsers(name)
	if len(users) == 1 {
		user := users[0]
		m.notifier.ListRooms(m.clientId, user, m.repo.RoomsOf(user.Id))
		return nil
	}
	m.notifier.ListUsers(m.clientId, users)
	return nil
}

func (m *Manager) handleJoin(ctx *callerContext) error {
	if len(ctx.args) < 1 {
		return chat.Errorf("Join which room?")
	}
	room, err := repository.VerifyRoom(m.repo, ctx.args[0])
	if err != nil {
		return err
	}
	if m.repo.IsMember(ctx.user.Id, room.Name) {
		return chat.Errorf("You're already in that room!")
	}
	m.service.JoinRoom(ctx.user, room)
	if err := m.commit(); err != nil {
		return err
	}
	m.notifier.OnJoinedRoom(ctx.user, room)
	return nil
}

func (m *Manager) handleCreate(ctx *callerContext) error {
	if len(ctx.args) < 1 || ctx.args[0] == "" {
		return chat.Errorf("No room specified.")
	}
	room, err := m.service.AddRoom(ctx.user, ctx.args[0])
	if err != nil {
		return err
	}
	if err := m.commit(); err != nil {
		return err
	}
	m.notifier.OnJoinedRoom(ctx.user, room)
	return nil
}

func (m *Manager) handleMsg(ctx *callerContext) error {
	if len(m.repo.Users()) == 1 {
		return chat.Errorf("You're the only person in here...")
	}
	if len(ctx.args) < 1 || strings.TrimSpace(ctx.args[0]) == "" {
		return chat.Errorf("Who are you trying send a private message to?")
	}
	toUser, err := repository.VerifyUser(m.repo, normalizeUserName(ctx.args[0]))
	if err != nil {
		return err
	}
	if toUser.Id == ctx.user.Id {
		return chat.Errorf("You can't private message yourself!")
	}
	messageText := strings.TrimSpace(strings.Join(ctx.args[1:], " "))
	if messageText == "" {
		return chat.Errorf("What did you want to say to '%s'.", toUser.Name)
	}
	m.notifier.OnPrivateMessage(ctx.user, toUser, messageText)
	return nil
}

func (m *Manager) handleGravatar(ctx *callerContext) error {
	email := strings.TrimSpace(strings.Join(ctx.args, " "))
	if email == "" {
		return chat.Errorf("Email was not specified!")
	}
	m.service.SetGravatar(ctx.user, auth.GravatarHash(email))
	if err := m.commit(); err != nil {
		return err
	}
	m.notifier.OnGravatarChanged(ctx.user)
	return nil
}

func (m *Manager) handleLeaveNamed(ctx *callerContext) error {
	room, err := repository.VerifyRoom(m.repo, ctx.args[0])
	if err != nil {
		return err
	}
	return m.leave(ctx.user, room)
}

func (m *Manager) handleLeaveActive(ctx *callerContext) error {
	return m.leave(ctx.user, ctx.room)
}

func (m *Manager) leave(user *types.User, room *types.Room) error {
	m.service.LeaveRoom(user, room)
	if err := m.commit(); err != nil {
		return err
	}
	m.notifier.OnLeftRoom(user, room)
	return nil
}

func (m *Manager) handleNudgeUser(ctx *callerContext) error {
	toUser, err := repository.VerifyUser(m.repo, normalizeUserName(ctx.args[0]))
	if err != nil {
		return err
	}
	if err := m.service.NudgeUser(ctx.user, toUser); err != nil {
		return err
	}
	if err := m.commit(); err != nil {
		return err
	}
	m.notifier.OnUserNudged(ctx.user, toUser)
	return nil
}

func (m *Manager) handleNudgeRoom(ctx *callerContext) error {
	if err := m.service.NudgeRoom(ctx.user, ctx.room); err != nil {
		return err
	}
	if err := m.commit(); err != nil {
		return err
	}
	m.notifier.OnRoomNudged(ctx.room, ctx.user)
	return nil
}

func (m *Manager) handleAddOwner(ctx *callerContext) error {
	if len(ctx.args) < 1 {
		return chat.Errorf("Who do you want to make an owner?")
	}
	targetUser, err := repository.VerifyUser(m.repo, normalizeUserName(ctx.args[0]))
	if err != nil {
		return err
	}
	if len(ctx.args) < 2 {
		return chat.Errorf("Which room?")
	}
	targetRoom, err := repository.VerifyRoom(m.repo, ctx.args[1])
	if err != nil {
		return err
	}
	if err := m.service.AddOwner(ctx.user, targetUser, targetRoom); err != nil {
		return err
	}
	if err := m.commit(); err != nil {
		return err
	}
	m.notifier.OnOwnerAdded(targetUser, targetRoom)
	return nil
}

func (m *Manager) handleMe(ctx *callerContext) error {
	if len(ctx.args) < 1 {
		return chat.Errorf("You what?")
	}
	content := strings.Join(ctx.args, " ")
	m.notifier.OnSelfMessage(ctx.room, ctx.user, content)
	return nil
}

func (m *Manager) handleKick(ctx *callerContext) error {
	if len(ctx.args) < 1 {
		return chat.Errorf("Who are you trying to kick?")
	}
	if len(m.repo.MembersOf(ctx.room.Name)) == 1 {
		return chat.Errorf("You're the only person in here...")
	}
	targetUser, err := repository.VerifyUser(m.repo, normalizeUserName(ctx.args[0]))
	if err != nil {
		return err
	}
	if err := m.service.KickUser(ctx.user, targetUser, ctx.room); err != nil {
		return err
	}
	if err := m.commit(); err != nil {
		return err
	}
	m.notifier.OnUserKicked(ctx.room, targetUser)
	return nil
}
