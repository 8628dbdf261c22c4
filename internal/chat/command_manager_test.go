package chat

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"chat-core/internal/cache"
	"chat-core/internal/message"
)

// fakeCrypto hashes deterministically so tests can assert on outcomes
// without bcrypt cost.
type fakeCrypto struct{}

func (fakeCrypto) Hash(password, salt string) (string, error) {
	return "h:" + salt + ":" + password, nil
}

func (fakeCrypto) Verify(password, salt, hash string) bool {
	return hash == "h:"+salt+":"+password
}

// recorderNotifier records every event fired, in order, with the last
// payloads the assertions care about.
type recorderNotifier struct {
	events []string

	lastRecent  []*message.Message
	lastNames   []string
	lastRooms   []string
	lastCode    string
	lastContent string
	lastHelp    []CommandInfo
}

func (r *recorderNotifier) record(event string) { r.events = append(r.events, event) }

func (r *recorderNotifier) OnUserCreated(user *User, clientID string)   { r.record("UserCreated") }
func (r *recorderNotifier) OnUserLoggedOn(user *User, clientID string)  { r.record("UserLoggedOn") }
func (r *recorderNotifier) OnUserLoggedOut(user *User, clientID string) { r.record("UserLoggedOut") }
func (r *recorderNotifier) OnUserNameChanged(user *User, oldName string) {
	r.record("UserNameChanged")
}
func (r *recorderNotifier) OnPasswordSet(user *User)     { r.record("PasswordSet") }
func (r *recorderNotifier) OnPasswordChanged(user *User) { r.record("PasswordChanged") }

func (r *recorderNotifier) OnRoomCreated(user *User, room *Room) { r.record("RoomCreated") }
func (r *recorderNotifier) OnJoinedRoom(user *User, room *Room, recent []*message.Message) {
	r.record("JoinedRoom")
	r.lastRecent = recent
}
func (r *recorderNotifier) OnLeftRoom(user *User, room *Room) { r.record("LeftRoom") }
func (r *recorderNotifier) OnUserKicked(target *User, room *Room) {
	r.record("UserKicked")
}
func (r *recorderNotifier) OnRoomOpened(user *User, room *Room) { r.record("RoomOpened") }
func (r *recorderNotifier) OnRoomClosed(room *Room)             { r.record("RoomClosed") }
func (r *recorderNotifier) OnRoomLocked(room *Room)             { r.record("RoomLocked") }

func (r *recorderNotifier) OnOwnerAdded(target *User, room *Room)    { r.record("OwnerAdded") }
func (r *recorderNotifier) OnOwnerRemoved(target *User, room *Room)  { r.record("OwnerRemoved") }
func (r *recorderNotifier) OnUserAllowed(target *User, room *Room)   { r.record("UserAllowed") }
func (r *recorderNotifier) OnUserUnallowed(target *User, room *Room) { r.record("UserUnallowed") }
func (r *recorderNotifier) OnInviteCode(room *Room, code string) {
	r.record("InviteCode")
	r.lastCode = code
}

func (r *recorderNotifier) OnTopicChanged(room *Room)   { r.record("TopicChanged") }
func (r *recorderNotifier) OnWelcomeChanged(room *Room) { r.record("WelcomeChanged") }
func (r *recorderNotifier) OnNoteChanged(user *User)    { r.record("NoteChanged") }
func (r *recorderNotifier) OnFlagChanged(user *User)    { r.record("FlagChanged") }
func (r *recorderNotifier) OnGravatarChanged(user *User) {
	r.record("GravatarChanged")
}

func (r *recorderNotifier) OnPrivateMessage(from, to *User, content string) {
	r.record("PrivateMessage")
	r.lastContent = content
}
func (r *recorderNotifier) OnBroadcast(from *User, content string) {
	r.record("Broadcast")
	r.lastContent = content
}
func (r *recorderNotifier) OnMeMessage(user *User, room *Room, content string) {
	r.record("MeMessage")
	r.lastContent = content
}
func (r *recorderNotifier) OnUserNudged(from, to *User)         { r.record("UserNudged") }
func (r *recorderNotifier) OnRoomNudged(from *User, room *Room) { r.record("RoomNudged") }

func (r *recorderNotifier) OnUserList(roomName string, names []string) {
	r.record("UserList")
	r.lastNames = names
}
func (r *recorderNotifier) OnUserInfo(user *User) { r.record("UserInfo") }
func (r *recorderNotifier) OnUserRooms(user *User, rooms []string) {
	r.record("UserRooms")
	r.lastRooms = rooms
}
func (r *recorderNotifier) OnHelp(commands []CommandInfo) {
	r.record("Help")
	r.lastHelp = commands
}
func (r *recorderNotifier) OnRoomNotification(room *Room, text string) {
	r.record("RoomNotification")
}

var _ Notifier = (*recorderNotifier)(nil)

// fakeClock is an adjustable wall clock for cooldown tests.
type fakeClock struct {
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.current }
func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

type testEnv struct {
	repo     *InMemoryRepository
	service  *ChatService
	recent   *cache.RecentMessageCache
	notifier *recorderNotifier
	clock    *fakeClock
}

func newTestEnv(admins ...string) *testEnv {
	env := &testEnv{
		repo:     NewInMemoryRepository(),
		recent:   cache.New(5),
		notifier: &recorderNotifier{},
		clock:    newFakeClock(),
	}
	env.service = NewChatService(env.repo, fakeCrypto{}, env.recent, admins)
	env.service.SetClock(env.clock.Now)
	return env
}

func (env *testEnv) manager(clientID string) *CommandManager {
	return NewCommandManager(clientID, "", "", env.service, env.repo, env.recent, env.notifier)
}

// loggedIn creates a user through /nick and returns its manager.
func (env *testEnv) loggedIn(t *testing.T, clientID, name string) *CommandManager {
	t.Helper()
	m := env.manager(clientID)
	mustHandle(t, m, "/nick "+name)
	return m
}

func mustHandle(t *testing.T, m *CommandManager, input string) {
	t.Helper()
	handled, err := m.TryHandleCommand(input)
	if !handled {
		t.Fatalf("input %q was not treated as a command", input)
	}
	if err != nil {
		t.Fatalf("command %q failed: %v", input, err)
	}
}

func handleErr(t *testing.T, m *CommandManager, input string) string {
	t.Helper()
	handled, err := m.TryHandleCommand(input)
	if !handled {
		t.Fatalf("input %q was not treated as a command", input)
	}
	if err == nil {
		t.Fatalf("command %q unexpectedly succeeded", input)
	}
	cmdErr, ok := err.(*CommandError)
	if !ok {
		t.Fatalf("command %q returned %T, want *CommandError", input, err)
	}
	return cmdErr.Message
}

func (env *testEnv) lastEvent(t *testing.T) string {
	t.Helper()
	if len(env.notifier.events) == 0 {
		t.Fatal("no events were fired")
	}
	return env.notifier.events[len(env.notifier.events)-1]
}

func TestNonCommandInputIsNotHandled(t *testing.T) {
	env := newTestEnv()
	m := env.manager("c1")

	for _, input := range []string{"hello there", "  plain text", "/", "  /  ", ""} {
		handled, err := m.TryHandleCommand(input)
		if handled {
			t.Errorf("input %q was treated as a command", input)
		}
		if err != nil {
			t.Errorf("input %q returned error %v", input, err)
		}
	}
	if len(env.notifier.events) != 0 {
		t.Fatalf("non-command input fired events: %v", env.notifier.events)
	}
}

func TestUnknownCommand(t *testing.T) {
	env := newTestEnv()
	m := env.manager("c1")

	got := handleErr(t, m, "/frobnicate now")
	want := "'frobnicate' is not a valid command. Type /help to see the list of commands."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAnonymousSessionsOnlyGetNickAndHelp(t *testing.T) {
	env := newTestEnv()
	m := env.manager("c1")

	if got := handleErr(t, m, "/create den"); got != "You're not logged in. Use /nick to pick a name." {
		t.Fatalf("got %q", got)
	}
	mustHandle(t, m, "/help")
	if env.lastEvent(t) != "Help" {
		t.Fatalf("expected Help event, got %v", env.notifier.events)
	}
}

func TestNickCreatesUser(t *testing.T) {
	env := newTestEnv()
	m := env.manager("c1")

	mustHandle(t, m, "/nick alice secret")

	user, exists := env.repo.GetUserByName("alice")
	if !exists {
		t.Fatal("user was not created")
	}
	if m.UserID() != user.ID {
		t.Fatalf("session not bound: manager has %q, user is %q", m.UserID(), user.ID)
	}
	if !user.HasPassword() {
		t.Fatal("password was not set")
	}
	if !(fakeCrypto{}).Verify("secret", user.Salt, user.HashedPassword) {
		t.Fatal("stored hash does not verify against the supplied password")
	}
	if _, ok := user.ConnectedClients["c1"]; !ok {
		t.Fatal("client id was not bound to the user")
	}
	if got := env.notifier.events; len(got) != 1 || got[0] != "UserCreated" {
		t.Fatalf("events: got %v, want [UserCreated]", got)
	}
}

func TestNickRejectsInvalidName(t *testing.T) {
	env := newTestEnv()
	m := env.manager("c1")

	got := handleErr(t, m, "/nick bad*name")
	if !strings.Contains(got, "is not valid") {
		t.Fatalf("got %q", got)
	}
	if env.repo.UserCount() != 0 {
		t.Fatal("invalid nick still created a user")
	}
}

func TestNickClaimExistingName(t *testing.T) {
	env := newTestEnv()
	first := env.manager("c1")
	mustHandle(t, first, "/nick alice secret")

	second := env.manager("c2")
	if got := handleErr(t, second, "/nick alice wrong"); got != "Invalid password." {
		t.Fatalf("got %q", got)
	}
	if second.UserID() != "" {
		t.Fatal("failed claim still bound the session")
	}

	if got := handleErr(t, second, "/nick alice"); got != "Invalid operation." {
		t.Fatalf("claim without password: got %q", got)
	}

	mustHandle(t, second, "/nick alice secret")
	user, _ := env.repo.GetUserByName("alice")
	if second.UserID() != user.ID {
		t.Fatal("claim did not bind the session")
	}
	if env.lastEvent(t) != "UserLoggedOn" {
		t.Fatalf("events: %v", env.notifier.events)
	}
	if _, ok := user.ConnectedClients["c2"]; !ok {
		t.Fatal("second client not bound after claim")
	}
}

func TestNickRename(t *testing.T) {
	env := newTestEnv()
	m := env.loggedIn(t, "c1", "alice")
	mustHandle(t, m, "/create den")

	mustHandle(t, m, "/nick alicia")

	if _, exists := env.repo.GetUserByName("alice"); exists {
		t.Fatal("old name still resolves")
	}
	user, exists := env.repo.GetUserByName("alicia")
	if !exists {
		t.Fatal("new name does not resolve")
	}
	room, _ := env.repo.GetRoomByName("den")
	if !room.HasUser(user) || !room.HasOwner(user) {
		t.Fatal("room relations were not re-keyed after rename")
	}
	if env.lastEvent(t) != "UserNameChanged" {
		t.Fatalf("events: %v", env.notifier.events)
	}
}

func TestNickSetAndChangePassword(t *testing.T) {
	env := newTestEnv()
	m := env.loggedIn(t, "c1", "alice")

	mustHandle(t, m, "/nick alice secret")
	if env.lastEvent(t) != "PasswordSet" {
		t.Fatalf("events: %v", env.notifier.events)
	}

	// A second two-arg /nick must not silently overwrite the password.
	if got := handleErr(t, m, "/nick alice hijack"); got != "Invalid operation." {
		t.Fatalf("got %q", got)
	}

	if got := handleErr(t, m, "/nick alice wrong newpass"); got != "Invalid password." {
		t.Fatalf("got %q", got)
	}
	mustHandle(t, m, "/nick alice secret newpass")
	user, _ := env.repo.GetUserByName("alice")
	if !(fakeCrypto{}).Verify("newpass", user.Salt, user.HashedPassword) {
		t.Fatal("password was not changed")
	}
	if env.lastEvent(t) != "PasswordChanged" {
		t.Fatalf("events: %v", env.notifier.events)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	env := newTestEnv()
	m := env.loggedIn(t, "c1", "alice")
	mustHandle(t, m, "/create den")

	mustHandle(t, m, "/logout")

	if m.UserID() != "" || m.ActiveRoom() != "" {
		t.Fatalf("session not cleared: user %q room %q", m.UserID(), m.ActiveRoom())
	}
	user, _ := env.repo.GetUserByName("alice")
	if user.Status != StatusOffline {
		t.Fatalf("status after logout: got %v, want offline", user.Status)
	}
	if env.lastEvent(t) != "UserLoggedOut" {
		t.Fatalf("events: %v", env.notifier.events)
	}
}

func TestCreateRoomBecomesActive(t *testing.T) {
	env := newTestEnv()
	m := env.loggedIn(t, "c1", "alice")

	mustHandle(t, m, "/create den")

	if m.ActiveRoom() != "den" {
		t.Fatalf("active room: got %q, want den", m.ActiveRoom())
	}
	room, exists := env.repo.GetRoomByName("den")
	if !exists {
		t.Fatal("room was not created")
	}
	user, _ := env.repo.GetUserByName("alice")
	if !room.HasUser(user) || !room.HasOwner(user) || !room.IsCreator(user) {
		t.Fatal("creator is not member, owner and creator of the new room")
	}

	if got := handleErr(t, m, "/create den"); got != "The room 'den' already exists" {
		t.Fatalf("got %q", got)
	}
	if got := handleErr(t, m, "/create my den"); got != "Room names cannot contain spaces." {
		t.Fatalf("got %q", got)
	}
}

func TestJoinDeliversRecentMessages(t *testing.T) {
	env := newTestEnv()
	owner := env.loggedIn(t, "c1", "alice")
	mustHandle(t, owner, "/create den")

	user, _ := env.repo.GetUserByName("alice")
	room, _ := env.repo.GetRoomByName("den")
	for i := 0; i < 8; i++ {
		if _, err := env.service.AddMessage(user, room, fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	joiner := env.loggedIn(t, "c2", "bob")
	mustHandle(t, joiner, "/join den")

	if env.lastEvent(t) != "JoinedRoom" {
		t.Fatalf("events: %v", env.notifier.events)
	}
	recent := env.notifier.lastRecent
	if len(recent) != 5 {
		t.Fatalf("recent window: got %d, want 5", len(recent))
	}
	if recent[0].Content != "msg-3" || recent[4].Content != "msg-7" {
		t.Fatalf("recent window: first %q, last %q", recent[0].Content, recent[4].Content)
	}
	if joiner.ActiveRoom() != "den" {
		t.Fatalf("active room: got %q", joiner.ActiveRoom())
	}
}

func TestJoinPrivateRoom(t *testing.T) {
	env := newTestEnv()
	owner := env.loggedIn(t, "c1", "alice")
	mustHandle(t, owner, "/create den")
	mustHandle(t, owner, "/lock den")
	mustHandle(t, owner, "/invitecode den")
	code := env.notifier.lastCode

	joiner := env.loggedIn(t, "c2", "bob")
	want := "Unable to join room. This room is locked and you don't have permission to enter. " +
		"If you have an invite code, make sure to enter it in the /join command"
	if got := handleErr(t, joiner, "/join den"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := handleErr(t, joiner, "/join den 000000x"); got != want {
		t.Fatalf("wrong code: got %q", got)
	}

	mustHandle(t, joiner, "/join den "+code)
	room, _ := env.repo.GetRoomByName("den")
	bob, _ := env.repo.GetUserByName("bob")
	if !room.HasUser(bob) {
		t.Fatal("invite code did not admit the user")
	}
}

func TestJoinPrivateRoomViaAllowList(t *testing.T) {
	env := newTestEnv()
	owner := env.loggedIn(t, "c1", "alice")
	joiner := env.loggedIn(t, "c2", "bob")
	mustHandle(t, owner, "/create den")
	mustHandle(t, owner, "/lock den")
	mustHandle(t, owner, "/allow bob den")

	mustHandle(t, joiner, "/join den")
	room, _ := env.repo.GetRoomByName("den")
	bob, _ := env.repo.GetUserByName("bob")
	if !room.HasUser(bob) {
		t.Fatal("allow-listed user could not join")
	}
}

func TestKickRules(t *testing.T) {
	env := newTestEnv()
	owner := env.loggedIn(t, "c1", "alice")
	other := env.loggedIn(t, "c2", "bob")
	mustHandle(t, owner, "/create den")
	mustHandle(t, other, "/join den")

	if got := handleErr(t, other, "/kick alice den"); got != "You are not an owner of 'den'." {
		t.Fatalf("got %q", got)
	}
	if got := handleErr(t, owner, "/kick alice den"); got != "Why would you want to kick yourself?" {
		t.Fatalf("got %q", got)
	}

	mustHandle(t, owner, "/kick bob den")
	room, _ := env.repo.GetRoomByName("den")
	bob, _ := env.repo.GetUserByName("bob")
	if room.HasUser(bob) {
		t.Fatal("kicked user is still a member")
	}
	if env.lastEvent(t) != "UserKicked" {
		t.Fatalf("events: %v", env.notifier.events)
	}
}

func TestOnlyCreatorKicksOwners(t *testing.T) {
	env := newTestEnv()
	creator := env.loggedIn(t, "c1", "alice")
	coOwner := env.loggedIn(t, "c2", "bob")
	mustHandle(t, creator, "/create den")
	mustHandle(t, coOwner, "/join den")
	mustHandle(t, creator, "/addowner bob den")

	if got := handleErr(t, coOwner, "/kick alice den"); got != "Unable to kick 'alice'. Only the room creator can kick other owners." {
		t.Fatalf("got %q", got)
	}
	mustHandle(t, creator, "/kick bob den")
}

func TestRemoveOwnerIsCreatorOnly(t *testing.T) {
	env := newTestEnv()
	creator := env.loggedIn(t, "c1", "alice")
	coOwner := env.loggedIn(t, "c2", "bob")
	mustHandle(t, creator, "/create den")
	mustHandle(t, coOwner, "/join den")
	mustHandle(t, creator, "/addowner bob den")

	if got := handleErr(t, coOwner, "/removeowner alice den"); got != "You are not the creator of 'den'." {
		t.Fatalf("got %q", got)
	}

	if got := handleErr(t, creator, "/removeowner alice den"); got != "Unable to remove 'alice'. The room creator is always an owner." {
		t.Fatalf("got %q", got)
	}
	room, _ := env.repo.GetRoomByName("den")
	alice, _ := env.repo.GetUserByName("alice")
	if !room.HasOwner(alice) {
		t.Fatal("creator lost ownership of their own room")
	}

	mustHandle(t, creator, "/removeowner bob den")
	bob, _ := env.repo.GetUserByName("bob")
	if room.HasOwner(bob) {
		t.Fatal("ownership was not revoked")
	}
	if _, ok := bob.OwnedRooms["den"]; ok {
		t.Fatal("user side of the ownership relation was not cleared")
	}
}

func TestAllowRequiresPrivateRoom(t *testing.T) {
	env := newTestEnv()
	owner := env.loggedIn(t, "c1", "alice")
	env.loggedIn(t, "c2", "bob")
	mustHandle(t, owner, "/create den")

	if got := handleErr(t, owner, "/allow bob den"); got != "'den' is not a private room." {
		t.Fatalf("got %q", got)
	}
}

func TestInviteCodeLifecycle(t *testing.T) {
	env := newTestEnv()
	owner := env.loggedIn(t, "c1", "alice")
	mustHandle(t, owner, "/create den")

	if got := handleErr(t, owner, "/invitecode den"); got != "Only private rooms can have invite codes" {
		t.Fatalf("got %q", got)
	}

	mustHandle(t, owner, "/lock den")
	mustHandle(t, owner, "/invitecode den")
	first := env.notifier.lastCode
	if len(first) != 6 {
		t.Fatalf("invite code %q is not six digits", first)
	}
	for _, ch := range first {
		if ch < '0' || ch > '9' {
			t.Fatalf("invite code %q contains a non-digit", first)
		}
	}

	mustHandle(t, owner, "/invitecode den")
	if env.notifier.lastCode != first {
		t.Fatal("showing the invite code regenerated it")
	}
}

func TestNudgeUserCooldown(t *testing.T) {
	env := newTestEnv()
	alice := env.loggedIn(t, "c1", "alice")
	env.loggedIn(t, "c2", "bob")

	mustHandle(t, alice, "/nudge bob")
	if env.lastEvent(t) != "UserNudged" {
		t.Fatalf("events: %v", env.notifier.events)
	}

	env.clock.Advance(30 * time.Second)
	if got := handleErr(t, alice, "/nudge bob"); got != "User can only be nudged once every 60 seconds." {
		t.Fatalf("got %q", got)
	}

	env.clock.Advance(31 * time.Second)
	mustHandle(t, alice, "/nudge bob")
}

func TestNudgeRoomCooldown(t *testing.T) {
	env := newTestEnv()
	alice := env.loggedIn(t, "c1", "alice")
	mustHandle(t, alice, "/create den")

	mustHandle(t, alice, "/nudge")
	if got := handleErr(t, alice, "/nudge"); got != "Room can only be nudged once every 60 seconds." {
		t.Fatalf("got %q", got)
	}
	env.clock.Advance(61 * time.Second)
	mustHandle(t, alice, "/nudge")
}

func TestNudgeRejectsSelfAndLoneliness(t *testing.T) {
	env := newTestEnv()
	alice := env.loggedIn(t, "c1", "alice")

	if got := handleErr(t, alice, "/nudge bob"); got != "You're the only person in here..." {
		t.Fatalf("got %q", got)
	}
	env.loggedIn(t, "c2", "bob")
	if got := handleErr(t, alice, "/nudge alice"); got != "You can't nudge yourself!" {
		t.Fatalf("got %q", got)
	}
}

func TestTopicLengthAndClearing(t *testing.T) {
	env := newTestEnv()
	m := env.loggedIn(t, "c1", "alice")
	mustHandle(t, m, "/create den")

	long := strings.Repeat("x", 81)
	if got := handleErr(t, m, "/topic "+long); got != "Sorry, but your topic is too long. Please keep it under 80 characters." {
		t.Fatalf("got %q", got)
	}
	room, _ := env.repo.GetRoomByName("den")
	if room.Topic != "" {
		t.Fatal("rejected topic still changed the room")
	}

	mustHandle(t, m, "/topic today: gophers    and   spaces")
	if room.Topic != "today: gophers    and   spaces" {
		t.Fatalf("topic lost its inner spacing: %q", room.Topic)
	}

	mustHandle(t, m, "/topic")
	if room.Topic != "" {
		t.Fatalf("empty /topic did not clear: %q", room.Topic)
	}
	if env.lastEvent(t) != "TopicChanged" {
		t.Fatalf("events: %v", env.notifier.events)
	}
}

func TestBroadcastIsAdminOnly(t *testing.T) {
	env := newTestEnv("root")
	alice := env.loggedIn(t, "c1", "alice")
	if got := handleErr(t, alice, "/broadcast hi all"); got != "You are not an admin." {
		t.Fatalf("got %q", got)
	}

	admin := env.loggedIn(t, "c2", "root")
	if got := handleErr(t, admin, "/broadcast"); got != "What did you want to broadcast?" {
		t.Fatalf("got %q", got)
	}
	mustHandle(t, admin, "/broadcast server restart soon")
	if env.lastEvent(t) != "Broadcast" || env.notifier.lastContent != "server restart soon" {
		t.Fatalf("event %q content %q", env.lastEvent(t), env.notifier.lastContent)
	}
}

func TestPrivateMessage(t *testing.T) {
	env := newTestEnv()
	alice := env.loggedIn(t, "c1", "alice")

	if got := handleErr(t, alice, "/msg bob hi"); got != "You're the only person in here..." {
		t.Fatalf("got %q", got)
	}
	env.loggedIn(t, "c2", "bob")

	if got := handleErr(t, alice, "/msg alice hi"); got != "You can't private message yourself!" {
		t.Fatalf("got %q", got)
	}
	if got := handleErr(t, alice, "/msg bob"); got != "What did you want to say?" {
		t.Fatalf("got %q", got)
	}

	mustHandle(t, alice, "/msg bob psst  two  spaces")
	if env.notifier.lastContent != "psst  two  spaces" {
		t.Fatalf("private message content: %q", env.notifier.lastContent)
	}
}

func TestMeMessage(t *testing.T) {
	env := newTestEnv()
	m := env.loggedIn(t, "c1", "alice")

	if got := handleErr(t, m, "/me waves"); got != "Use '/join room' to join a room." {
		t.Fatalf("got %q", got)
	}
	mustHandle(t, m, "/create den")
	if got := handleErr(t, m, "/me"); got != "You what?" {
		t.Fatalf("got %q", got)
	}
	mustHandle(t, m, "/me waves at everyone")
	if env.notifier.lastContent != "waves at everyone" {
		t.Fatalf("me content: %q", env.notifier.lastContent)
	}
}

func TestWhoWhereList(t *testing.T) {
	env := newTestEnv()
	alice := env.loggedIn(t, "c1", "alice")
	bob := env.loggedIn(t, "c2", "bob")
	mustHandle(t, alice, "/create den")
	mustHandle(t, bob, "/join den")
	mustHandle(t, bob, "/create attic")

	mustHandle(t, alice, "/who")
	if got := env.notifier.lastNames; len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("who: %v", got)
	}

	mustHandle(t, alice, "/where bob")
	if got := env.notifier.lastRooms; len(got) != 2 || got[0] != "attic" || got[1] != "den" {
		t.Fatalf("where: %v", got)
	}

	mustHandle(t, alice, "/list den")
	if got := env.notifier.lastNames; len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("list: %v", got)
	}
	if got := handleErr(t, alice, "/list cellar"); got != "Unable to find room 'cellar'." {
		t.Fatalf("got %q", got)
	}
}

func TestHelpListsEveryCommandSorted(t *testing.T) {
	env := newTestEnv()
	m := env.manager("c1")
	mustHandle(t, m, "/help")

	help := env.notifier.lastHelp
	if len(help) != 29 {
		t.Fatalf("help entries: got %d, want 29", len(help))
	}
	for i := 1; i < len(help); i++ {
		if help[i-1].Name >= help[i].Name {
			t.Fatalf("help is not sorted: %q before %q", help[i-1].Name, help[i].Name)
		}
	}
}

func TestCommandNamesAreCaseInsensitive(t *testing.T) {
	env := newTestEnv()
	m := env.manager("c1")
	mustHandle(t, m, "/NICK alice")
	if m.UserID() == "" {
		t.Fatal("uppercase command name was not dispatched")
	}
}

func TestFailedCommandFiresNoEvent(t *testing.T) {
	env := newTestEnv()
	m := env.loggedIn(t, "c1", "alice")
	before := len(env.notifier.events)

	handleErr(t, m, "/join nowhere")
	handleErr(t, m, "/kick alice")
	handleErr(t, m, "/topic")

	if got := len(env.notifier.events); got != before {
		t.Fatalf("failed commands fired events: %v", env.notifier.events[before:])
	}
}
