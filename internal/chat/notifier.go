package chat

import "chat-core/internal/message"

// CommandInfo describes one registered command for /help output.
type CommandInfo struct {
	Name        string `json:"name"`
	Usage       string `json:"usage"`
	Description string `json:"description"`
}

// Notifier is consumed by the transport layer to push user-visible events.
// One method per event; the CommandManager invokes exactly one of these (or
// none, on failure) per processed command. Implementations decide which
// sessions each event reaches.
type Notifier interface {
	OnUserCreated(user *User, clientID string)
	OnUserLoggedOn(user *User, clientID string)
	OnUserLoggedOut(user *User, clientID string)
	OnUserNameChanged(user *User, oldName string)
	OnPasswordSet(user *User)
	OnPasswordChanged(user *User)

	OnRoomCreated(user *User, room *Room)
	OnJoinedRoom(user *User, room *Room, recent []*message.Message)
	OnLeftRoom(user *User, room *Room)
	OnUserKicked(target *User, room *Room)
	OnRoomOpened(user *User, room *Room)
	OnRoomClosed(room *Room)
	OnRoomLocked(room *Room)

	OnOwnerAdded(target *User, room *Room)
	OnOwnerRemoved(target *User, room *Room)
	OnUserAllowed(target *User, room *Room)
	OnUserUnallowed(target *User, room *Room)
	OnInviteCode(room *Room, code string)

	OnTopicChanged(room *Room)
	OnWelcomeChanged(room *Room)
	OnNoteChanged(user *User)
	OnFlagChanged(user *User)
	OnGravatarChanged(user *User)

	OnPrivateMessage(from, to *User, content string)
	OnBroadcast(from *User, content string)
	OnMeMessage(user *User, room *Room, content string)
	OnUserNudged(from, to *User)
	OnRoomNudged(from *User, room *Room)

	OnUserList(roomName string, names []string)
	OnUserInfo(user *User)
	OnUserRooms(user *User, rooms []string)
	OnHelp(commands []CommandInfo)
	OnRoomNotification(room *Room, text string)
}
