package chat

import (
	"sort"
	"strings"

	"chat-core/internal/cache"
)

// command is one entry in the dispatch table.
type command struct {
	Name           string
	Usage          string
	Description    string
	AllowAnonymous bool
	Handler        func(args []string, rest string) error
}

// CommandManager interprets slash commands for one session context: a
// client id, an optional authenticated user, and an optional active room.
// It parses, checks command preconditions, executes through the ChatService
// and Repository, and fires exactly one Notifier event per successful
// command.
type CommandManager struct {
	clientID string
	userID   string
	roomName string

	service  *ChatService
	repo     Repository
	recent   *cache.RecentMessageCache
	notifier Notifier
	commands map[string]*command
}

// NewCommandManager creates a command manager for one session. userID may be
// empty (anonymous) and roomName may be empty (no active room).
func NewCommandManager(clientID, userID, roomName string, service *ChatService, repo Repository, recent *cache.RecentMessageCache, notifier Notifier) *CommandManager {
	m := &CommandManager{
		clientID: clientID,
		userID:   userID,
		roomName: roomName,
		service:  service,
		repo:     repo,
		recent:   recent,
		notifier: notifier,
		commands: make(map[string]*command),
	}
	m.registerCommands()
	return m
}

// UserID returns the id of the session's user, empty when anonymous.
func (m *CommandManager) UserID() string {
	return m.userID
}

// ActiveRoom returns the session's active room name, empty when none.
func (m *CommandManager) ActiveRoom() string {
	return m.roomName
}

// SetActiveRoom updates which room plain (non-command) messages go to.
func (m *CommandManager) SetActiveRoom(name string) {
	m.roomName = name
}

// TryHandleCommand processes one raw input line. It returns false with no
// side effects when the input is not a command (does not start with '/', or
// is '/' alone). Otherwise it returns true, with a *CommandError describing
// any rejected precondition; on error no state was changed and no event was
// fired.
func (m *CommandManager) TryHandleCommand(input string) (bool, error) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return false, nil
	}
	body := strings.TrimSpace(strings.TrimPrefix(trimmed, "/"))
	if body == "" {
		return false, nil
	}

	parts := strings.Fields(body)
	name := strings.ToLower(parts[0])
	args := parts[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(body, parts[0]))

	cmd, exists := m.commands[name]
	if !exists {
		return true, commandErrorf("'%s' is not a valid command. Type /help to see the list of commands.", parts[0])
	}
	if !cmd.AllowAnonymous && m.userID == "" {
		return true, commandError(msgNotLoggedIn)
	}
	return true, cmd.Handler(args, rest)
}

// user resolves the session's user, nil when anonymous.
func (m *CommandManager) user() *User {
	if m.userID == "" {
		return nil
	}
	user, _ := m.repo.GetUserByID(m.userID)
	return user
}

// activeRoom resolves the session's active room.
func (m *CommandManager) activeRoom() (*Room, error) {
	if m.roomName == "" {
		return nil, commandError(msgNoActiveRoom)
	}
	room, exists := m.repo.GetRoomByName(m.roomName)
	if !exists {
		return nil, commandError(msgNoActiveRoom)
	}
	return room, nil
}

// roomFromArgs resolves an optional trailing room argument, falling back to
// the active room.
func (m *CommandManager) roomFromArgs(args []string, index int) (*Room, error) {
	if len(args) <= index {
		return m.activeRoom()
	}
	room, exists := m.repo.GetRoomByName(args[index])
	if !exists {
		return nil, commandErrorf("Unable to find room '%s'.", args[index])
	}
	return room, nil
}

// findUser resolves an exact (not partial) user name.
func (m *CommandManager) findUser(name string) (*User, error) {
	user, exists := m.repo.GetUserByName(name)
	if !exists {
		return nil, commandErrorf("Unable to find user '%s'.", name)
	}
	return user, nil
}

func (m *CommandManager) registerCommands() {
	for _, cmd := range []*command{
		{Name: "nick", Usage: "/nick name [password] [newpassword]", Description: "Pick a nickname, claim one with its password, rename yourself, or set/change your password", AllowAnonymous: true, Handler: m.handleNick},
		{Name: "logout", Usage: "/logout", Description: "Disconnect this client from your user", Handler: m.handleLogout},
		{Name: "create", Usage: "/create room", Description: "Create a new room", Handler: m.handleCreate},
		{Name: "join", Usage: "/join room [invitecode]", Description: "Join a room; private rooms need an allow-list entry or an invite code", Handler: m.handleJoin},
		{Name: "leave", Usage: "/leave [room]", Description: "Leave a room", Handler: m.handleLeave},
		{Name: "kick", Usage: "/kick user [room]", Description: "Kick a user from a room you own", Handler: m.handleKick},
		{Name: "open", Usage: "/open [room]", Description: "Reopen a closed room you own and rejoin it", Handler: m.handleOpen},
		{Name: "close", Usage: "/close [room]", Description: "Close a room you own", Handler: m.handleClose},
		{Name: "lock", Usage: "/lock [room]", Description: "Make a room you own private", Handler: m.handleLock},
		{Name: "addowner", Usage: "/addowner user [room]", Description: "Grant room ownership", Handler: m.handleAddOwner},
		{Name: "removeowner", Usage: "/removeowner user [room]", Description: "Revoke room ownership (creator only)", Handler: m.handleRemoveOwner},
		{Name: "allow", Usage: "/allow user [room]", Description: "Allow a user into a private room", Handler: m.handleAllow},
		{Name: "unallow", Usage: "/unallow user [room]", Description: "Remove a user from a private room's allow list", Handler: m.handleUnallow},
		{Name: "invitecode", Usage: "/invitecode [room]", Description: "Show (generating if needed) a private room's invite code", Handler: m.handleInviteCode},
		{Name: "resetinvitecode", Usage: "/resetinvitecode [room]", Description: "Generate a fresh invite code", Handler: m.handleResetInviteCode},
		{Name: "msg", Usage: "/msg user message", Description: "Send a private message", Handler: m.handleMsg},
		{Name: "me", Usage: "/me does something", Description: "Send an action message to the active room", Handler: m.handleMe},
		{Name: "broadcast", Usage: "/broadcast message", Description: "Send a message to every user (admins only)", Handler: m.handleBroadcast},
		{Name: "note", Usage: "/note [text]", Description: "Set or clear your note", Handler: m.handleNote},
		{Name: "afk", Usage: "/afk [note]", Description: "Mark yourself away, with an optional note", Handler: m.handleAFK},
		{Name: "flag", Usage: "/flag [code]", Description: "Set or clear your two-letter country flag", Handler: m.handleFlag},
		{Name: "gravatar", Usage: "/gravatar [email]", Description: "Set or clear your gravatar", Handler: m.handleGravatar},
		{Name: "topic", Usage: "/topic [text]", Description: "Set or clear the active room's topic", Handler: m.handleTopic},
		{Name: "welcome", Usage: "/welcome [text]", Description: "Set or clear the active room's welcome text", Handler: m.handleWelcome},
		{Name: "nudge", Usage: "/nudge [user]", Description: "Nudge a user, or the active room with no target", Handler: m.handleNudge},
		{Name: "who", Usage: "/who [user]", Description: "List users, or show one user's details", Handler: m.handleWho},
		{Name: "where", Usage: "/where user", Description: "List the rooms a user is in", Handler: m.handleWhere},
		{Name: "list", Usage: "/list room", Description: "List the members of a room", Handler: m.handleList},
		{Name: "help", Usage: "/help", Description: "Show this list", AllowAnonymous: true, Handler: m.handleHelp},
	} {
		m.commands[cmd.Name] = cmd
	}
}

// handleNick runs exactly one of: create, claim, rename, set password,
// change password, chosen from the session state and arguments.
func (m *CommandManager) handleNick(args []string, rest string) error {
	if len(args) == 0 {
		return commandError("What nickname do you want? Use '/nick name'.")
	}
	name := args[0]
	password := ""
	if len(args) > 1 {
		password = args[1]
	}

	user := m.user()
	if user == nil {
		if _, exists := m.repo.GetUserByName(name); exists {
			if password == "" {
				return commandError(msgInvalidOperation)
			}
			claimed, err := m.service.AuthenticateUser(name, password, m.clientID)
			if err != nil {
				return err
			}
			m.userID = claimed.ID
			m.notifier.OnUserLoggedOn(claimed, m.clientID)
			return nil
		}
		created, err := m.service.AddUser(name, m.clientID, password)
		if err != nil {
			return err
		}
		m.userID = created.ID
		m.notifier.OnUserCreated(created, m.clientID)
		return nil
	}

	if !strings.EqualFold(user.Name, name) {
		oldName := user.Name
		if err := m.service.ChangeUserName(user, name); err != nil {
			return err
		}
		m.notifier.OnUserNameChanged(user, oldName)
		return nil
	}

	switch len(args) {
	case 2:
		if user.HasPassword() {
			return commandError(msgInvalidOperation)
		}
		if err := m.service.SetUserPassword(user, args[1]); err != nil {
			return err
		}
		m.notifier.OnPasswordSet(user)
		return nil
	case 3:
		if err := m.service.ChangeUserPassword(user, args[1], args[2]); err != nil {
			return err
		}
		m.notifier.OnPasswordChanged(user)
		return nil
	default:
		return commandError(msgInvalidOperation)
	}
}

func (m *CommandManager) handleLogout(args []string, rest string) error {
	user := m.user()
	if _, err := m.service.DisconnectClient(m.clientID); err != nil {
		return err
	}
	m.userID = ""
	m.roomName = ""
	m.notifier.OnUserLoggedOut(user, m.clientID)
	return nil
}

func (m *CommandManager) handleCreate(args []string, rest string) error {
	if len(args) == 0 {
		return commandError("Which room do you want to create?")
	}
	if len(args) > 1 {
		return commandError("Room names cannot contain spaces.")
	}
	room, err := m.service.AddRoom(m.user(), args[0])
	if err != nil {
		return err
	}
	m.roomName = room.Name
	m.notifier.OnRoomCreated(m.user(), room)
	return nil
}

func (m *CommandManager) handleJoin(args []string, rest string) error {
	if len(args) == 0 {
		return commandError("Which room do you want to join?")
	}
	room, exists := m.repo.GetRoomByName(args[0])
	if !exists {
		return commandErrorf("Unable to find room '%s'.", args[0])
	}
	inviteCode := ""
	if len(args) > 1 {
		inviteCode = args[1]
	}

	user := m.user()
	if err := m.service.JoinRoom(user, room, inviteCode); err != nil {
		return err
	}
	m.roomName = room.Name
	m.notifier.OnJoinedRoom(user, room, m.recent.GetRecentMessages(room.Name))
	return nil
}

func (m *CommandManager) handleLeave(args []string, rest string) error {
	room, err := m.roomFromArgs(args, 0)
	if err != nil {
		return err
	}
	user := m.user()
	if err := m.service.LeaveRoom(user, room); err != nil {
		return err
	}
	if strings.EqualFold(m.roomName, room.Name) {
		m.roomName = ""
	}
	m.notifier.OnLeftRoom(user, room)
	return nil
}

func (m *CommandManager) handleKick(args []string, rest string) error {
	if len(args) == 0 {
		return commandError("Who do you want to kick?")
	}
	target, err := m.findUser(args[0])
	if err != nil {
		return err
	}
	room, err := m.roomFromArgs(args, 1)
	if err != nil {
		return err
	}
	if err := m.service.KickUser(m.user(), target, room); err != nil {
		return err
	}
	m.notifier.OnUserKicked(target, room)
	return nil
}

func (m *CommandManager) handleOpen(args []string, rest string) error {
	room, err := m.roomFromArgs(args, 0)
	if err != nil {
		return err
	}
	user := m.user()
	if err := m.service.OpenRoom(user, room); err != nil {
		return err
	}
	m.roomName = room.Name
	m.notifier.OnRoomOpened(user, room)
	return nil
}

func (m *CommandManager) handleClose(args []string, rest string) error {
	room, err := m.roomFromArgs(args, 0)
	if err != nil {
		return err
	}
	if err := m.service.CloseRoom(m.user(), room); err != nil {
		return err
	}
	if strings.EqualFold(m.roomName, room.Name) {
		m.roomName = ""
	}
	m.notifier.OnRoomClosed(room)
	return nil
}

func (m *CommandManager) handleLock(args []string, rest string) error {
	room, err := m.roomFromArgs(args, 0)
	if err != nil {
		return err
	}
	if err := m.service.LockRoom(m.user(), room); err != nil {
		return err
	}
	m.notifier.OnRoomLocked(room)
	return nil
}

func (m *CommandManager) handleAddOwner(args []string, rest string) error {
	if len(args) == 0 {
		return commandError("Who do you want to make an owner?")
	}
	target, err := m.findUser(args[0])
	if err != nil {
		return err
	}
	room, err := m.roomFromArgs(args, 1)
	if err != nil {
		return err
	}
	if err := m.service.AddOwner(m.user(), target, room); err != nil {
		return err
	}
	m.notifier.OnOwnerAdded(target, room)
	return nil
}

func (m *CommandManager) handleRemoveOwner(args []string, rest string) error {
	if len(args) == 0 {
		return commandError("Which owner do you want to remove?")
	}
	target, err := m.findUser(args[0])
	if err != nil {
		return err
	}
	room, err := m.roomFromArgs(args, 1)
	if err != nil {
		return err
	}
	if err := m.service.RemoveOwner(m.user(), target, room); err != nil {
		return err
	}
	m.notifier.OnOwnerRemoved(target, room)
	return nil
}

func (m *CommandManager) handleAllow(args []string, rest string) error {
	if len(args) == 0 {
		return commandError("Who do you want to allow?")
	}
	target, err := m.findUser(args[0])
	if err != nil {
		return err
	}
	room, err := m.roomFromArgs(args, 1)
	if err != nil {
		return err
	}
	if err := m.service.AllowUser(m.user(), target, room); err != nil {
		return err
	}
	m.notifier.OnUserAllowed(target, room)
	return nil
}

func (m *CommandManager) handleUnallow(args []string, rest string) error {
	if len(args) == 0 {
		return commandError("Who do you want to unallow?")
	}
	target, err := m.findUser(args[0])
	if err != nil {
		return err
	}
	room, err := m.roomFromArgs(args, 1)
	if err != nil {
		return err
	}
	if err := m.service.UnallowUser(m.user(), target, room); err != nil {
		return err
	}
	m.notifier.OnUserUnallowed(target, room)
	return nil
}

func (m *CommandManager) handleInviteCode(args []string, rest string) error {
	room, err := m.roomFromArgs(args, 0)
	if err != nil {
		return err
	}
	code, err := m.service.EnsureInviteCode(m.user(), room)
	if err != nil {
		return err
	}
	m.notifier.OnInviteCode(room, code)
	return nil
}

func (m *CommandManager) handleResetInviteCode(args []string, rest string) error {
	room, err := m.roomFromArgs(args, 0)
	if err != nil {
		return err
	}
	code, err := m.service.ResetInviteCode(m.user(), room)
	if err != nil {
		return err
	}
	m.notifier.OnInviteCode(room, code)
	return nil
}

func (m *CommandManager) handleMsg(args []string, rest string) error {
	if m.repo.UserCount() < 2 {
		return commandError(msgAloneUser)
	}
	if len(args) == 0 {
		return commandError("Who do you want to send a private message to?")
	}
	target, err := m.findUser(args[0])
	if err != nil {
		return err
	}
	user := m.user()
	if target.ID == user.ID {
		return commandError(msgMsgSelf)
	}
	text := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
	if text == "" {
		return commandError(msgSayWhat)
	}
	linked, _ := Linkify(text)
	m.notifier.OnPrivateMessage(user, target, linked)
	return nil
}

func (m *CommandManager) handleMe(args []string, rest string) error {
	room, err := m.activeRoom()
	if err != nil {
		return err
	}
	if rest == "" {
		return commandError(msgMeWhat)
	}
	m.notifier.OnMeMessage(m.user(), room, rest)
	return nil
}

func (m *CommandManager) handleBroadcast(args []string, rest string) error {
	user := m.user()
	if !user.IsAdmin {
		return commandError(msgNotAdmin)
	}
	if rest == "" {
		return commandError(msgBroadcastEmpty)
	}
	linked, _ := Linkify(rest)
	m.notifier.OnBroadcast(user, linked)
	return nil
}

func (m *CommandManager) handleNote(args []string, rest string) error {
	user := m.user()
	if err := m.service.SetNote(user, rest); err != nil {
		return err
	}
	m.notifier.OnNoteChanged(user)
	return nil
}

func (m *CommandManager) handleAFK(args []string, rest string) error {
	user := m.user()
	if err := m.service.SetAFK(user, rest); err != nil {
		return err
	}
	m.notifier.OnNoteChanged(user)
	return nil
}

func (m *CommandManager) handleFlag(args []string, rest string) error {
	user := m.user()
	code := ""
	if len(args) > 0 {
		code = args[0]
	}
	if err := m.service.SetFlag(user, code); err != nil {
		return err
	}
	m.notifier.OnFlagChanged(user)
	return nil
}

func (m *CommandManager) handleGravatar(args []string, rest string) error {
	user := m.user()
	email := ""
	if len(args) > 0 {
		email = args[0]
	}
	if err := m.service.SetGravatar(user, email); err != nil {
		return err
	}
	m.notifier.OnGravatarChanged(user)
	return nil
}

func (m *CommandManager) handleTopic(args []string, rest string) error {
	room, err := m.activeRoom()
	if err != nil {
		return err
	}
	if err := m.service.SetTopic(m.user(), room, rest); err != nil {
		return err
	}
	m.notifier.OnTopicChanged(room)
	return nil
}

func (m *CommandManager) handleWelcome(args []string, rest string) error {
	room, err := m.activeRoom()
	if err != nil {
		return err
	}
	if err := m.service.SetWelcome(m.user(), room, rest); err != nil {
		return err
	}
	m.notifier.OnWelcomeChanged(room)
	return nil
}

func (m *CommandManager) handleNudge(args []string, rest string) error {
	user := m.user()
	if len(args) == 0 {
		room, err := m.activeRoom()
		if err != nil {
			return err
		}
		if err := m.service.NudgeRoom(user, room); err != nil {
			return err
		}
		m.notifier.OnRoomNudged(user, room)
		return nil
	}

	if m.repo.UserCount() < 2 {
		return commandError(msgAloneUser)
	}
	target, err := m.findUser(args[0])
	if err != nil {
		return err
	}
	if target.ID == user.ID {
		return commandError(msgNudgeSelf)
	}
	if err := m.service.NudgeUser(user, target); err != nil {
		return err
	}
	m.notifier.OnUserNudged(user, target)
	return nil
}

func (m *CommandManager) handleWho(args []string, rest string) error {
	if len(args) == 0 {
		names := make([]string, 0, m.repo.UserCount())
		for _, u := range m.repo.Users() {
			names = append(names, u.Name)
		}
		sort.Strings(names)
		m.notifier.OnUserList("", names)
		return nil
	}
	target, err := m.findUser(args[0])
	if err != nil {
		return err
	}
	m.notifier.OnUserInfo(target)
	return nil
}

func (m *CommandManager) handleWhere(args []string, rest string) error {
	if len(args) == 0 {
		return commandError("Who are you looking for?")
	}
	target, err := m.findUser(args[0])
	if err != nil {
		return err
	}
	rooms := m.service.UserRoomNames(target)
	sort.Strings(rooms)
	m.notifier.OnUserRooms(target, rooms)
	return nil
}

func (m *CommandManager) handleList(args []string, rest string) error {
	if len(args) == 0 {
		return commandError("Which room do you want to list?")
	}
	room, exists := m.repo.GetRoomByName(args[0])
	if !exists {
		return commandErrorf("Unable to find room '%s'.", args[0])
	}
	names := m.service.RoomMemberNames(room)
	sort.Strings(names)
	m.notifier.OnUserList(room.Name, names)
	return nil
}

func (m *CommandManager) handleHelp(args []string, rest string) error {
	infos := make([]CommandInfo, 0, len(m.commands))
	for _, cmd := range m.commands {
		infos = append(infos, CommandInfo{Name: cmd.Name, Usage: cmd.Usage, Description: cmd.Description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	m.notifier.OnHelp(infos)
	return nil
}
