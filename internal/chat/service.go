package chat

import (
	"crypto/md5"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chat-core/internal/cache"
	"chat-core/internal/message"
)

const (
	// NudgeCooldown is the minimum interval between nudges of the same
	// target user or room.
	NudgeCooldown = 60 * time.Second

	maxNoteLength    = 140
	maxTopicLength   = 80
	maxWelcomeLength = 200
)

var (
	userNamePattern = regexp.MustCompile(`^[\w\-.]{1,30}$`)
	flagPattern     = regexp.MustCompile(`^[a-zA-Z]{2}$`)
)

// ChatService implements the state-mutating business operations behind the
// command set, independent of command parsing. Every operation re-validates
// its own preconditions before touching any entity, so a failure leaves all
// state unchanged. It never calls the Notifier; deciding who gets told is
// the CommandManager's job.
type ChatService struct {
	repo   Repository
	crypto Crypto
	recent *cache.RecentMessageCache
	admins map[string]struct{}
	now    func() time.Time

	// mu serializes every mutation of the shared user/room graph. Sessions
	// invoke the service concurrently and the entity maps are not safe for
	// unguarded access. It also covers the read-then-write of last-nudge
	// timestamps, so two near-simultaneous nudges cannot both observe "not
	// on cooldown".
	mu sync.Mutex
}

// NewChatService creates a chat service. adminUsers lists names (any case)
// that become admins when created.
func NewChatService(repo Repository, crypto Crypto, recent *cache.RecentMessageCache, adminUsers []string) *ChatService {
	admins := make(map[string]struct{}, len(adminUsers))
	for _, name := range adminUsers {
		admins[nameKey(name)] = struct{}{}
	}
	return &ChatService{
		repo:   repo,
		crypto: crypto,
		recent: recent,
		admins: admins,
		now:    time.Now,
	}
}

// SetClock overrides the service's wall clock. Intended for tests.
func (s *ChatService) SetClock(now func() time.Time) {
	s.now = now
}

// AddUser creates a new user bound to the calling client. password may be
// empty; one can be set later with /nick.
func (s *ChatService) AddUser(name, clientID, password string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !userNamePattern.MatchString(name) {
		return nil, commandErrorf("Sorry, the nickname '%s' is not valid. Nicknames are 1-30 letters, numbers, dashes or dots.", name)
	}
	if _, exists := s.repo.GetUserByName(name); exists {
		return nil, commandErrorf("The nickname '%s' is already taken.", name)
	}

	user := NewUser(name, s.now())
	if password != "" {
		if err := s.setPassword(user, password); err != nil {
			return nil, err
		}
	}
	if _, ok := s.admins[nameKey(name)]; ok {
		user.IsAdmin = true
	}
	user.AddClient(clientID)

	if err := s.repo.AddUser(user); err != nil {
		return nil, err
	}
	log.Info().Str("user", user.Name).Str("client", clientID).Msg("user created")
	return user, s.repo.CommitChanges()
}

// AuthenticateUser claims an existing name with its password and binds the
// calling client.
func (s *ChatService) AuthenticateUser(name, password, clientID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.repo.GetUserByName(name)
	if !exists {
		return nil, commandErrorf("Unable to find user '%s'.", name)
	}
	if !user.HasPassword() || !s.crypto.Verify(password, user.Salt, user.HashedPassword) {
		return nil, commandError("Invalid password.")
	}

	user.AddClient(clientID)
	user.Status = StatusActive
	user.LastActivity = s.now()

	log.Info().Str("user", user.Name).Str("client", clientID).Msg("user logged on")
	return user, s.repo.CommitChanges()
}

// ChangeUserName renames the user.
func (s *ChatService) ChangeUserName(user *User, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !userNamePattern.MatchString(newName) {
		return commandErrorf("Sorry, the nickname '%s' is not valid. Nicknames are 1-30 letters, numbers, dashes or dots.", newName)
	}
	if _, exists := s.repo.GetUserByName(newName); exists {
		return commandErrorf("The nickname '%s' is already taken.", newName)
	}

	oldName := user.Name
	if err := s.repo.RemoveUser(user); err != nil {
		return err
	}
	user.Name = newName
	if err := s.repo.AddUser(user); err != nil {
		// Restore the old key; the rename did not happen.
		user.Name = oldName
		s.repo.AddUser(user)
		return err
	}
	// Re-key the paired relations under the new name.
	for _, room := range user.Rooms {
		delete(room.Users, nameKey(oldName))
		room.Users[nameKey(newName)] = user
	}
	for _, room := range user.OwnedRooms {
		delete(room.Owners, nameKey(oldName))
		room.Owners[nameKey(newName)] = user
	}
	for _, room := range user.AllowedRooms {
		delete(room.AllowedUsers, nameKey(oldName))
		room.AllowedUsers[nameKey(newName)] = user
	}

	log.Info().Str("old", oldName).Str("new", newName).Msg("user renamed")
	return s.repo.CommitChanges()
}

// SetUserPassword sets an initial password.
func (s *ChatService) SetUserPassword(user *User, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.HasPassword() {
		return commandError(msgInvalidOperation)
	}
	if err := s.setPassword(user, password); err != nil {
		return err
	}
	return s.repo.CommitChanges()
}

// ChangeUserPassword replaces an existing password after verifying the old one.
func (s *ChatService) ChangeUserPassword(user *User, oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !user.HasPassword() {
		return commandError(msgInvalidOperation)
	}
	if !s.crypto.Verify(oldPassword, user.Salt, user.HashedPassword) {
		return commandError("Invalid password.")
	}
	if err := s.setPassword(user, newPassword); err != nil {
		return err
	}
	return s.repo.CommitChanges()
}

func (s *ChatService) setPassword(user *User, password string) error {
	if strings.TrimSpace(password) == "" {
		return commandError("Your password cannot be blank.")
	}
	salt, err := NewSalt()
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	hash, err := s.crypto.Hash(password, salt)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.Salt = salt
	user.HashedPassword = hash
	return nil
}

// UpdateActivity records activity from one of the user's clients, clearing
// AFK and marking the user active. The transport calls this directly for
// non-command traffic.
func (s *ChatService) UpdateActivity(user *User, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Status = StatusActive
	user.LastActivity = s.now()
	user.IsAFK = false
	user.AFKNote = ""
	user.AddClient(clientID)
	return s.repo.CommitChanges()
}

// DisconnectClient unbinds a client id from whichever user holds it. The
// user goes offline when the last client disappears.
func (s *ChatService) DisconnectClient(clientID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.repo.Users() {
		if _, ok := user.ConnectedClients[clientID]; !ok {
			continue
		}
		if !user.RemoveClient(clientID) {
			user.Status = StatusOffline
		}
		return user, s.repo.CommitChanges()
	}
	return nil, nil
}

// AddRoom creates a room; the creator becomes owner and member.
func (s *ChatService) AddRoom(creator *User, name string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.ContainsAny(name, " \t") {
		return nil, commandError("Room names cannot contain spaces.")
	}
	if name == "" {
		return nil, commandError("Which room do you want to create?")
	}
	if existing, exists := s.repo.GetRoomByName(name); exists {
		if existing.Closed {
			return nil, commandErrorf("The room '%s' already exists but it's closed", existing.Name)
		}
		return nil, commandErrorf("The room '%s' already exists", existing.Name)
	}

	room := NewRoom(name, creator)
	if err := s.repo.AddRoom(room); err != nil {
		return nil, err
	}
	log.Info().Str("room", room.Name).Str("creator", creator.Name).Msg("room created")
	return room, s.repo.CommitChanges()
}

// JoinRoom adds the user to the room, honoring privacy rules. Joining a room
// the user is already in is a no-op. For private rooms the user must be on
// the allow list, be an owner, or present the room's invite code.
func (s *ChatService) JoinRoom(user *User, room *Room, inviteCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room.Closed {
		return commandErrorf("The room '%s' is closed.", room.Name)
	}
	if room.HasUser(user) {
		return nil
	}
	if room.Private && !room.IsUserAllowed(user) {
		if room.InviteCode == "" || inviteCode != room.InviteCode {
			return commandError(msgRoomLocked)
		}
	}

	room.AddUser(user)
	log.Info().Str("user", user.Name).Str("room", room.Name).Msg("joined room")
	return s.repo.CommitChanges()
}

// LeaveRoom removes the user from the room.
func (s *ChatService) LeaveRoom(user *User, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.HasUser(user) {
		return commandErrorf("You're not in '%s'. Use '/join %s' to join it.", room.Name, room.Name)
	}
	room.RemoveUser(user)
	return s.repo.CommitChanges()
}

// KickUser throws the target out of the room. The actor must own the room;
// kicking a co-owner additionally requires the actor to be the creator.
func (s *ChatService) KickUser(actor, target *User, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.HasOwner(actor) {
		return commandErrorf("You are not an owner of '%s'.", room.Name)
	}
	if actor.ID == target.ID {
		return commandError(msgKickSelf)
	}
	if !room.HasUser(target) {
		return commandErrorf("'%s' isn't in '%s'.", target.Name, room.Name)
	}
	if room.HasOwner(target) && !room.IsCreator(actor) {
		return commandErrorf("Unable to kick '%s'. Only the room creator can kick other owners.", target.Name)
	}

	room.RemoveUser(target)
	log.Info().Str("actor", actor.Name).Str("target", target.Name).Str("room", room.Name).Msg("user kicked")
	return s.repo.CommitChanges()
}

// AddOwner grants room ownership to the target.
func (s *ChatService) AddOwner(actor, target *User, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.HasOwner(actor) {
		return commandErrorf("You are not an owner of '%s'.", room.Name)
	}
	if room.HasOwner(target) {
		return commandErrorf("'%s' is already an owner of '%s'.", target.Name, room.Name)
	}
	room.AddOwner(target)
	return s.repo.CommitChanges()
}

// RemoveOwner demotes a co-owner. Only the room's creator may do this, and
// the creator can never be demoted.
func (s *ChatService) RemoveOwner(actor, target *User, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.IsCreator(actor) {
		return commandErrorf("You are not the creator of '%s'.", room.Name)
	}
	if room.IsCreator(target) {
		return commandErrorf("Unable to remove '%s'. The room creator is always an owner.", target.Name)
	}
	if !room.HasOwner(target) {
		return commandErrorf("'%s' is not an owner of '%s'.", target.Name, room.Name)
	}
	room.RemoveOwner(target)
	return s.repo.CommitChanges()
}

// AllowUser adds the target to a private room's allow list.
func (s *ChatService) AllowUser(actor, target *User, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.Private {
		return commandErrorf("'%s' is not a private room.", room.Name)
	}
	if !room.HasOwner(actor) {
		return commandErrorf("You are not an owner of '%s'.", room.Name)
	}
	if _, ok := room.AllowedUsers[nameKey(target.Name)]; ok {
		return commandErrorf("'%s' is already allowed into '%s'.", target.Name, room.Name)
	}
	room.AllowUser(target)
	return s.repo.CommitChanges()
}

// UnallowUser removes the target from a private room's allow list.
func (s *ChatService) UnallowUser(actor, target *User, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.Private {
		return commandErrorf("'%s' is not a private room.", room.Name)
	}
	if !room.HasOwner(actor) {
		return commandErrorf("You are not an owner of '%s'.", room.Name)
	}
	if _, ok := room.AllowedUsers[nameKey(target.Name)]; !ok {
		return commandErrorf("'%s' isn't allowed into '%s'.", target.Name, room.Name)
	}
	room.UnallowUser(target)
	return s.repo.CommitChanges()
}

// LockRoom makes the room private. Owners and current members stay able to
// enter; everyone else needs the allow list or an invite code.
func (s *ChatService) LockRoom(actor *User, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.HasOwner(actor) {
		return commandErrorf("You are not an owner of '%s'.", room.Name)
	}
	if room.Private {
		return commandErrorf("'%s' is already locked.", room.Name)
	}
	room.Private = true
	// Members present at lock time keep their access.
	for _, member := range room.Users {
		room.AllowUser(member)
	}
	log.Info().Str("room", room.Name).Str("actor", actor.Name).Msg("room locked")
	return s.repo.CommitChanges()
}

// CloseRoom archives the room.
func (s *ChatService) CloseRoom(actor *User, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.HasOwner(actor) {
		return commandErrorf("You are not an owner of '%s'.", room.Name)
	}
	if room.Closed {
		return commandErrorf("'%s' is already closed.", room.Name)
	}
	room.Closed = true
	log.Info().Str("room", room.Name).Str("actor", actor.Name).Msg("room closed")
	return s.repo.CommitChanges()
}

// OpenRoom reopens a closed room and rejoins the acting owner.
func (s *ChatService) OpenRoom(actor *User, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.HasOwner(actor) {
		return commandErrorf("You are not an owner of '%s'.", room.Name)
	}
	if !room.Closed {
		return commandErrorf("'%s' is already open.", room.Name)
	}
	room.Closed = false
	room.AddUser(actor)
	log.Info().Str("room", room.Name).Str("actor", actor.Name).Msg("room opened")
	return s.repo.CommitChanges()
}

// EnsureInviteCode generates a 6-digit invite code if the room has none and
// returns the current code.
func (s *ChatService) EnsureInviteCode(actor *User, room *Room) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requirePrivateOwner(actor, room); err != nil {
		return "", err
	}
	if room.InviteCode == "" {
		code, err := newInviteCode()
		if err != nil {
			return "", err
		}
		room.InviteCode = code
		if err := s.repo.CommitChanges(); err != nil {
			return "", err
		}
	}
	return room.InviteCode, nil
}

// ResetInviteCode forces a fresh 6-digit invite code.
func (s *ChatService) ResetInviteCode(actor *User, room *Room) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requirePrivateOwner(actor, room); err != nil {
		return "", err
	}
	code, err := newInviteCode()
	if err != nil {
		return "", err
	}
	room.InviteCode = code
	return code, s.repo.CommitChanges()
}

// SetTopic sets or clears the room topic (80 characters max).
func (s *ChatService) SetTopic(actor *User, room *Room, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.HasOwner(actor) {
		return commandErrorf("You are not an owner of '%s'.", room.Name)
	}
	if len(topic) > maxTopicLength {
		return commandError(msgTopicTooLong)
	}
	room.Topic = topic
	return s.repo.CommitChanges()
}

// SetWelcome sets or clears the room welcome text (200 characters max).
func (s *ChatService) SetWelcome(actor *User, room *Room, welcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.HasOwner(actor) {
		return commandErrorf("You are not an owner of '%s'.", room.Name)
	}
	if len(welcome) > maxWelcomeLength {
		return commandError(msgWelcomeTooLong)
	}
	room.Welcome = welcome
	return s.repo.CommitChanges()
}

// SetNote sets or clears the user's note (140 characters max).
func (s *ChatService) SetNote(user *User, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(note) > maxNoteLength {
		return commandError(msgNoteTooLong)
	}
	user.Note = note
	return s.repo.CommitChanges()
}

// SetAFK marks the user away with an optional note (140 characters max).
func (s *ChatService) SetAFK(user *User, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(note) > maxNoteLength {
		return commandError(msgNoteTooLong)
	}
	user.IsAFK = true
	user.AFKNote = note
	return s.repo.CommitChanges()
}

// SetFlag sets the user's two-letter country flag; an empty code clears it.
func (s *ChatService) SetFlag(user *User, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if code != "" && !flagPattern.MatchString(code) {
		return commandError(msgInvalidFlag)
	}
	user.Flag = strings.ToLower(code)
	return s.repo.CommitChanges()
}

// SetGravatar derives the user's gravatar hash from an email address; an
// empty email clears it.
func (s *ChatService) SetGravatar(user *User, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if email == "" {
		user.GravatarHash = ""
	} else {
		normalized := strings.ToLower(strings.TrimSpace(email))
		user.GravatarHash = fmt.Sprintf("%x", md5.Sum([]byte(normalized)))
	}
	return s.repo.CommitChanges()
}

// NudgeUser pings another user, at most once per minute per target.
func (s *ChatService) NudgeUser(from, to *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !to.LastNudged.IsZero() && s.now().Sub(to.LastNudged) < NudgeCooldown {
		return commandError(msgNudgeUserCooldown)
	}
	to.LastNudged = s.now()
	return s.repo.CommitChanges()
}

// NudgeRoom pings a whole room, at most once per minute per room.
func (s *ChatService) NudgeRoom(from *User, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.LastNudged.IsZero() && s.now().Sub(room.LastNudged) < NudgeCooldown {
		return commandError(msgNudgeRoomCooldown)
	}
	room.LastNudged = s.now()
	return s.repo.CommitChanges()
}

// AddMessage records a room message, linkifying URLs, and feeds the recent
// message cache.
func (s *ChatService) AddMessage(user *User, room *Room, content string) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !room.HasUser(user) {
		return nil, commandErrorf("You're not in '%s'. Use '/join %s' to join it.", room.Name, room.Name)
	}

	linked, encoded := Linkify(content)
	msg := message.New(user.ID, user.Name, room.Name, linked, s.now())
	msg.HTMLEncoded = encoded
	s.recent.Add(msg)
	return msg, s.repo.CommitChanges()
}

// RoomMemberIDs returns a snapshot of the ids of the room's members. Callers
// outside the service lock must not iterate the live membership maps.
func (s *ChatService) RoomMemberIDs(room *Room) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(room.Users))
	for _, u := range room.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

// RoomMemberNames returns a snapshot of the room's member names.
func (s *ChatService) RoomMemberNames(room *Room) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return room.UserNames()
}

// UserRooms returns a snapshot of the rooms the user has joined.
func (s *ChatService) UserRooms(user *User) []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]*Room, 0, len(user.Rooms))
	for _, room := range user.Rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// UserRoomNames returns a snapshot of the names of the user's rooms.
func (s *ChatService) UserRoomNames(user *User) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(user.Rooms))
	for _, room := range user.Rooms {
		names = append(names, room.Name)
	}
	return names
}

func (s *ChatService) requirePrivateOwner(actor *User, room *Room) error {
	if !room.Private {
		return commandError(msgOnlyPrivateInvite)
	}
	if !room.HasOwner(actor) {
		return commandErrorf("You are not an owner of '%s'.", room.Name)
	}
	return nil
}

// newInviteCode returns a random code of exactly six digits.
func newInviteCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
