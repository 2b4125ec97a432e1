package chat

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hubbub-chat/hubbub/types"
)

const (
	// ReservedRoomName is the virtual lobby, it can never be created.
	ReservedRoomName = "Lobby"

	nudgeCooldown = 60 * time.Second
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9-_.]{1,30}$`)

// Hasher is the injected one-way password hash. Digests compare by equality.
type Hasher interface {
	Hash(password string) string
}

// Service enforces all chat invariants. It is the only component that
// mutates users and rooms; handlers go through here and commit via the
// repository afterwards.
type Service struct {
	repo   Repository
	hasher Hasher

	// now is replaceable in tests to exercise the nudge cooldowns.
	now func() time.Time
}

func NewService(repo Repository, hasher Hasher) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		now:    time.Now,
	}
}

// AddUser creates a new identity. The name must match the allowed pattern
// and be globally unique (case-insensitive). A non-empty password must be at
// least 6 characters and is stored as a one-way digest, never plaintext.
func (s *Service) AddUser(userName, clientId, password string) (*types.User, error) {
	if !isValidName(userName) {
		return nil, Errorf("'%s' is not a valid user name.", userName)
	}
	if err := s.ensureUserNameIsAvailable(userName); err != nil {
		return nil, err
	}
	user := &types.User{
		Id:           uuid.New().String(),
		Name:         userName,
		ClientId:     clientId,
		Status:       types.StatusActive,
		LastActivity: s.now().UTC(),
	}
	if password != "" {
		if err := validatePassword(password); err != nil {
			return nil, err
		}
		user.HashedPassword = s.hasher.Hash(password)
	}
	s.repo.AddUser(user)
	return user, nil
}

// AuthenticateUser checks a password against a claimed nick. The two failure
// messages intentionally differ: an unclaimed nick cannot be logged into at
// all, a claimed one rejects the wrong password.
func (s *Service) AuthenticateUser(userName, password string) error {
	user, ok := s.repo.GetUserByName(userName)
	if !ok {
		return Errorf("Unable to find user '%s'.", userName)
	}
	if user.HashedPassword == "" {
		return Errorf("The nick '%s' is unclaimable", userName)
	}
	if user.HashedPassword != s.hasher.Hash(password) {
		return Errorf("Unable to claim '%s'.", userName)
	}
	return nil
}

func (s *Service) ChangeUserName(user *types.User, newUserName string) error {
	if !isValidName(newUserName) {
		return Errorf("'%s' is not a valid user name.", newUserName)
	}
	if strings.EqualFold(user.Name, newUserName) {
		return Errorf("That's already your username...")
	}
	if err := s.ensureUserNameIsAvailable(newUserName); err != nil {
		return err
	}
	user.Name = newUserName
	s.repo.UpdateUser(user)
	return nil
}

func (s *Service) SetUserPassword(user *types.User, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	user.HashedPassword = s.hasher.Hash(password)
	s.repo.UpdateUser(user)
	return nil
}

func (s *Service) ChangeUserPassword(user *types.User, oldPassword, newPassword string) error {
	if user.HashedPassword != s.hasher.Hash(oldPassword) {
		return Errorf("Passwords don't match.")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user.HashedPassword = s.hasher.Hash(newPassword)
	s.repo.UpdateUser(user)
	return nil
}

func (s *Service) SetGravatar(user *types.User, hash string) {
	user.GravatarHash = hash
	s.repo.UpdateUser(user)
}

// AddRoom creates a room. The creator becomes owner and member in the same
// operation, so Creator ∈ Owners holds from the first commit on.
func (s *Service) AddRoom(creator *types.User, name string) (*types.Room, error) {
	if strings.EqualFold(name, ReservedRoomName) {
		return nil, Errorf("Lobby is not a valid chat room.")
	}
	if !isValidName(name) {
		return nil, Errorf("'%s' is not a valid room name.", name)
	}
	if _, ok := s.repo.GetRoomByName(name); ok {
		return nil, Errorf("The room '%s' already exists", name)
	}
	room := &types.Room{
		Name:      name,
		CreatorId: creator.Id,
	}
	s.repo.AddRoom(room)
	s.repo.AddOwner(creator.Id, room.Name)
	s.repo.JoinRoom(creator.Id, room.Name)
	return room, nil
}

func (s *Service) JoinRoom(user *types.User, room *types.Room) {
	s.repo.JoinRoom(user.Id, room.Name)
}

func (s *Service) LeaveRoom(user *types.User, room *types.Room) {
	s.repo.LeaveRoom(user.Id, room.Name)
}

// AddOwner grants room ownership. Ownership does not require membership.
func (s *Service) AddOwner(actor, targetUser *types.User, targetRoom *types.Room) error {
	if err := s.ensureOwner(actor, targetRoom); err != nil {
		return err
	}
	if s.repo.IsOwner(targetUser.Id, targetRoom.Name) {
		return Errorf("'%s' is already an owner of '%s'.", targetUser.Name, targetRoom.Name)
	}
	s.repo.AddOwner(targetUser.Id, targetRoom.Name)
	return nil
}

// KickUser removes a member. Only owners kick; owners are only kickable by
// the room's creator.
func (s *Service) KickUser(actor, targetUser *types.User, targetRoom *types.Room) error {
	if err := s.ensureOwner(actor, targetRoom); err != nil {
		return err
	}
	if targetUser.Id == actor.Id {
		return Errorf("Why would you want to kick yourself?")
	}
	if !s.repo.IsMember(targetUser.Id, targetRoom.Name) {
		return Errorf("'%s' isn't in '%s'.", targetUser.Name, targetRoom.Name)
	}
	if s.repo.IsOwner(targetUser.Id, targetRoom.Name) && targetRoom.CreatorId != actor.Id {
		return Errorf("Owners cannot kick other owners. Only the room creator can kick an owner.")
	}
	s.LeaveRoom(targetUser, targetRoom)
	return nil
}

// NudgeUser stamps the target's nudge cooldown. Requires at least one other
// user in the system and a target outside its 60 second window.
func (s *Service) NudgeUser(actor, target *types.User) error {
	if len(s.repo.Users()) == 1 {
		return Errorf("You're the only person in here...")
	}
	if target.Id == actor.Id {
		return Errorf("You can't nudge yourself!")
	}
	now := s.now()
	if target.LastNudged != nil && target.LastNudged.After(now.Add(-nudgeCooldown)) {
		return Errorf("User can only be nudged once every %.0f seconds", nudgeCooldown.Seconds())
	}
	t := now
	target.LastNudged = &t
	s.repo.UpdateUser(target)
	return nil
}

// NudgeRoom is the room-wide variant, keyed on the room's cooldown stamp.
func (s *Service) NudgeRoom(actor *types.User, room *types.Room) error {
	now := s.now()
	if room.LastNudged != nil && room.LastNudged.After(now.Add(-nudgeCooldown)) {
		return Errorf("Room can only be nudged once every %.0f seconds", nudgeCooldown.Seconds())
	}
	t := now
	room.LastNudged = &t
	s.repo.UpdateRoom(room)
	return nil
}

// AddMessage appends a message to a room. Messages are never mutated or
// removed.
func (s *Service) AddMessage(user *types.User, room *types.Room, content string) *types.Message {
	msg := &types.Message{
		Id:       uuid.New().String(),
		RoomName: room.Name,
		UserId:   user.Id,
		Content:  content,
		When:     s.now().UTC(),
	}
	s.repo.AddMessage(msg)
	return msg
}

// UpdateActivity bumps a user back to active, it is called on every command
// or chat message the user issues.
func (s *Service) UpdateActivity(user *types.User) {
	user.Status = types.StatusActive
	user.LastActivity = s.now().UTC()
	s.repo.UpdateUser(user)
}

func (s *Service) ensureUserNameIsAvailable(userName string) error {
	if _, ok := s.repo.GetUserByName(userName); ok {
		return ErrUserExists(userName)
	}
	return nil
}

// ErrUserExists is the duplicate-name failure, shared with the nick claim
// flow in the dispatcher.
func ErrUserExists(userName string) *Error {
	return Errorf("Username %s already taken, please pick a new one using '/nick nickname'.", userName)
}

func (s *Service) ensureOwner(user *types.User, room *types.Room) error {
	if !s.repo.IsOwner(user.Id, room.Name) {
		return Errorf("You are not an owner of %s", room.Name)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 {
		return Errorf("Your password must be at least 6 characters.")
	}
	return nil
}

func isValidName(name string) bool {
	return name != "" && nameRe.MatchString(name)
}
