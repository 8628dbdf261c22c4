package transport

import (
	"chat-core/internal/chat"
	"chat-core/internal/message"
	"chat-core/internal/metrics"
)

// sessionNotifier implements chat.Notifier for one session. Replies to the
// invoking session go straight back on it; state changes fan out to the
// affected users and rooms through the server.
type sessionNotifier struct {
	server  *Server
	session *Session
}

var _ chat.Notifier = (*sessionNotifier)(nil)

func frame(event string, data any) *Frame {
	metrics.EventsTotal.WithLabelValues(event).Inc()
	return &Frame{Event: event, Data: data}
}

func userPayload(user *chat.User) map[string]any {
	return map[string]any{
		"name":          user.Name,
		"status":        user.Status.String(),
		"is_afk":        user.IsAFK,
		"afk_note":      user.AFKNote,
		"note":          user.Note,
		"flag":          user.Flag,
		"gravatar_hash": user.GravatarHash,
	}
}

func roomPayload(room *chat.Room) map[string]any {
	return map[string]any{
		"name":    room.Name,
		"topic":   room.Topic,
		"welcome": room.Welcome,
		"private": room.Private,
		"closed":  room.Closed,
	}
}

func (n *sessionNotifier) OnUserCreated(user *chat.User, clientID string) {
	n.session.enqueue(frame("user.created", map[string]any{"user": userPayload(user)}))
}

func (n *sessionNotifier) OnUserLoggedOn(user *chat.User, clientID string) {
	n.session.enqueue(frame("user.logged_on", map[string]any{"user": userPayload(user)}))
}

func (n *sessionNotifier) OnUserLoggedOut(user *chat.User, clientID string) {
	n.session.enqueue(frame("user.logged_out", map[string]any{"user": user.Name}))
}

func (n *sessionNotifier) OnUserNameChanged(user *chat.User, oldName string) {
	f := frame("user.name_changed", map[string]any{"user": user.Name, "old_name": oldName})
	n.server.toUser(user.ID, f)
	for _, room := range n.server.service.UserRooms(user) {
		n.server.toRoom(room, f)
	}
}

func (n *sessionNotifier) OnPasswordSet(user *chat.User) {
	n.session.enqueue(frame("password.set", map[string]any{"user": user.Name}))
}

func (n *sessionNotifier) OnPasswordChanged(user *chat.User) {
	n.session.enqueue(frame("password.changed", map[string]any{"user": user.Name}))
}

func (n *sessionNotifier) OnRoomCreated(user *chat.User, room *chat.Room) {
	n.session.enqueue(frame("room.created", map[string]any{"room": roomPayload(room)}))
}

func (n *sessionNotifier) OnJoinedRoom(user *chat.User, room *chat.Room, recent []*message.Message) {
	n.server.toRoom(room, frame("room.joined", map[string]any{"user": user.Name, "room": room.Name}))
	n.session.enqueue(frame("room.recent", map[string]any{
		"room":     roomPayload(room),
		"messages": recent,
	}))
}

func (n *sessionNotifier) OnLeftRoom(user *chat.User, room *chat.Room) {
	f := frame("room.left", map[string]any{"user": user.Name, "room": room.Name})
	n.server.toUser(user.ID, f)
	n.server.toRoom(room, f)
}

func (n *sessionNotifier) OnUserKicked(target *chat.User, room *chat.Room) {
	f := frame("room.kicked", map[string]any{"user": target.Name, "room": room.Name})
	n.server.toUser(target.ID, f)
	n.server.toRoom(room, f)
}

func (n *sessionNotifier) OnRoomOpened(user *chat.User, room *chat.Room) {
	n.server.toRoom(room, frame("room.opened", map[string]any{"user": user.Name, "room": room.Name}))
}

func (n *sessionNotifier) OnRoomClosed(room *chat.Room) {
	f := frame("room.closed", map[string]any{"room": room.Name})
	n.server.toRoom(room, f)
	n.session.enqueue(f)
}

func (n *sessionNotifier) OnRoomLocked(room *chat.Room) {
	n.server.toRoom(room, frame("room.locked", map[string]any{"room": room.Name}))
}

func (n *sessionNotifier) OnOwnerAdded(target *chat.User, room *chat.Room) {
	n.server.toRoom(room, frame("room.owner_added", map[string]any{"user": target.Name, "room": room.Name}))
}

func (n *sessionNotifier) OnOwnerRemoved(target *chat.User, room *chat.Room) {
	n.server.toRoom(room, frame("room.owner_removed", map[string]any{"user": target.Name, "room": room.Name}))
}

func (n *sessionNotifier) OnUserAllowed(target *chat.User, room *chat.Room) {
	f := frame("room.user_allowed", map[string]any{"user": target.Name, "room": room.Name})
	n.session.enqueue(f)
	n.server.toUser(target.ID, f)
}

func (n *sessionNotifier) OnUserUnallowed(target *chat.User, room *chat.Room) {
	f := frame("room.user_unallowed", map[string]any{"user": target.Name, "room": room.Name})
	n.session.enqueue(f)
	n.server.toUser(target.ID, f)
}

func (n *sessionNotifier) OnInviteCode(room *chat.Room, code string) {
	n.session.enqueue(frame("room.invite_code", map[string]any{"room": room.Name, "code": code}))
}

func (n *sessionNotifier) OnTopicChanged(room *chat.Room) {
	n.server.toRoom(room, frame("room.topic", map[string]any{"room": room.Name, "topic": room.Topic}))
}

func (n *sessionNotifier) OnWelcomeChanged(room *chat.Room) {
	n.server.toRoom(room, frame("room.welcome", map[string]any{"room": room.Name, "welcome": room.Welcome}))
}

func (n *sessionNotifier) OnNoteChanged(user *chat.User) {
	n.server.toUser(user.ID, frame("user.note", map[string]any{"user": user.Name, "note": user.Note}))
}

func (n *sessionNotifier) OnFlagChanged(user *chat.User) {
	n.server.toUser(user.ID, frame("user.flag", map[string]any{"user": user.Name, "flag": user.Flag}))
}

func (n *sessionNotifier) OnGravatarChanged(user *chat.User) {
	n.server.toUser(user.ID, frame("user.gravatar", map[string]any{"user": user.Name, "gravatar_hash": user.GravatarHash}))
}

func (n *sessionNotifier) OnPrivateMessage(from, to *chat.User, content string) {
	f := frame("message.private", map[string]any{"from": from.Name, "to": to.Name, "content": content})
	n.server.toUser(from.ID, f)
	n.server.toUser(to.ID, f)
	if to.IsAFK {
		note := to.AFKNote
		if note == "" {
			note = "AFK"
		}
		n.session.enqueue(frame("user.afk", map[string]any{"user": to.Name, "note": note}))
	}
}

func (n *sessionNotifier) OnBroadcast(from *chat.User, content string) {
	n.server.toAll(frame("message.broadcast", map[string]any{"from": from.Name, "content": content}))
}

func (n *sessionNotifier) OnMeMessage(user *chat.User, room *chat.Room, content string) {
	n.server.toRoom(room, frame("message.me", map[string]any{"user": user.Name, "room": room.Name, "content": content}))
}

func (n *sessionNotifier) OnUserNudged(from, to *chat.User) {
	f := frame("nudge.user", map[string]any{"from": from.Name, "to": to.Name})
	n.server.toUser(from.ID, f)
	n.server.toUser(to.ID, f)
}

func (n *sessionNotifier) OnRoomNudged(from *chat.User, room *chat.Room) {
	n.server.toRoom(room, frame("nudge.room", map[string]any{"from": from.Name, "room": room.Name}))
}

func (n *sessionNotifier) OnUserList(roomName string, names []string) {
	n.session.enqueue(frame("room.users", map[string]any{"room": roomName, "users": names}))
}

func (n *sessionNotifier) OnUserInfo(user *chat.User) {
	n.session.enqueue(frame("user.info", map[string]any{"user": userPayload(user)}))
}

func (n *sessionNotifier) OnUserRooms(user *chat.User, rooms []string) {
	n.session.enqueue(frame("user.rooms", map[string]any{"user": user.Name, "rooms": rooms}))
}

func (n *sessionNotifier) OnHelp(commands []chat.CommandInfo) {
	n.session.enqueue(frame("help", map[string]any{"commands": commands}))
}

func (n *sessionNotifier) OnRoomNotification(room *chat.Room, text string) {
	n.server.toRoom(room, frame("room.notice", map[string]any{"room": room.Name, "text": text}))
}
