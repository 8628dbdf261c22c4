package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserStatus tracks a user's presence.
type UserStatus int

const (
	StatusOffline UserStatus = iota
	StatusInactive
	StatusActive
)

// String returns the presence label.
func (s UserStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	default:
		return "offline"
	}
}

// User represents a chat user.
type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	HashedPassword string     `json:"-"`
	Salt           string     `json:"-"`
	Status         UserStatus `json:"status"`
	IsAFK          bool       `json:"is_afk"`
	AFKNote        string     `json:"afk_note"`
	Note           string     `json:"note"`
	Flag           string     `json:"flag"`
	GravatarHash   string     `json:"gravatar_hash"`
	IsAdmin        bool       `json:"is_admin"`
	LastActivity   time.Time  `json:"last_activity"`
	LastNudged     time.Time  `json:"last_nudged"`

	// Rooms the user has joined, owns, and is explicitly allowed into,
	// keyed by lowercase room name. The room-side sets are kept in sync by
	// the Room mutators below.
	Rooms        map[string]*Room `json:"-"`
	OwnedRooms   map[string]*Room `json:"-"`
	AllowedRooms map[string]*Room `json:"-"`

	// ConnectedClients holds the client ids of every live session bound to
	// this user.
	ConnectedClients map[string]struct{} `json:"-"`
}

// NewUser creates a user with a fresh id and empty relation sets.
func NewUser(name string, now time.Time) *User {
	return &User{
		ID:               uuid.NewString(),
		Name:             name,
		Status:           StatusActive,
		LastActivity:     now,
		Rooms:            make(map[string]*Room),
		OwnedRooms:       make(map[string]*Room),
		AllowedRooms:     make(map[string]*Room),
		ConnectedClients: make(map[string]struct{}),
	}
}

// HasPassword reports whether a password has been set.
func (u *User) HasPassword() bool {
	return u.HashedPassword != ""
}

// InRoom reports whether the user is a member of the room.
func (u *User) InRoom(room *Room) bool {
	_, ok := u.Rooms[nameKey(room.Name)]
	return ok
}

// AddClient binds a client id to the user.
func (u *User) AddClient(clientID string) {
	u.ConnectedClients[clientID] = struct{}{}
}

// RemoveClient unbinds a client id; it reports whether any clients remain.
func (u *User) RemoveClient(clientID string) bool {
	delete(u.ConnectedClients, clientID)
	return len(u.ConnectedClients) > 0
}

// Room represents a named chat channel.
type Room struct {
	Name       string    `json:"name"`
	Topic      string    `json:"topic"`
	Welcome    string    `json:"welcome"`
	Private    bool      `json:"private"`
	Closed     bool      `json:"closed"`
	InviteCode string    `json:"-"`
	Creator    *User     `json:"-"`
	LastNudged time.Time `json:"last_nudged"`

	// Owners, members and allowed users keyed by lowercase user name.
	Owners       map[string]*User `json:"-"`
	Users        map[string]*User `json:"-"`
	AllowedUsers map[string]*User `json:"-"`
}

// NewRoom creates a room owned and populated by its creator.
func NewRoom(name string, creator *User) *Room {
	room := &Room{
		Name:         name,
		Creator:      creator,
		Owners:       make(map[string]*User),
		Users:        make(map[string]*User),
		AllowedUsers: make(map[string]*User),
	}
	room.AddOwner(creator)
	room.AddUser(creator)
	return room
}

// AddUser makes the user a member, updating both sides of the relation.
func (r *Room) AddUser(u *User) {
	r.Users[nameKey(u.Name)] = u
	u.Rooms[nameKey(r.Name)] = r
}

// RemoveUser drops the user's membership on both sides.
func (r *Room) RemoveUser(u *User) {
	delete(r.Users, nameKey(u.Name))
	delete(u.Rooms, nameKey(r.Name))
}

// AddOwner grants ownership, updating both sides of the relation.
func (r *Room) AddOwner(u *User) {
	r.Owners[nameKey(u.Name)] = u
	u.OwnedRooms[nameKey(r.Name)] = r
}

// RemoveOwner revokes ownership on both sides.
func (r *Room) RemoveOwner(u *User) {
	delete(r.Owners, nameKey(u.Name))
	delete(u.OwnedRooms, nameKey(r.Name))
}

// AllowUser puts the user on the room's allow list, both sides.
func (r *Room) AllowUser(u *User) {
	r.AllowedUsers[nameKey(u.Name)] = u
	u.AllowedRooms[nameKey(r.Name)] = r
}

// UnallowUser removes the user from the allow list, both sides.
func (r *Room) UnallowUser(u *User) {
	delete(r.AllowedUsers, nameKey(u.Name))
	delete(u.AllowedRooms, nameKey(r.Name))
}

// HasUser reports membership.
func (r *Room) HasUser(u *User) bool {
	_, ok := r.Users[nameKey(u.Name)]
	return ok
}

// HasOwner reports ownership.
func (r *Room) HasOwner(u *User) bool {
	_, ok := r.Owners[nameKey(u.Name)]
	return ok
}

// IsUserAllowed reports whether the user may enter this private room without
// an invite code.
func (r *Room) IsUserAllowed(u *User) bool {
	if _, ok := r.AllowedUsers[nameKey(u.Name)]; ok {
		return true
	}
	return r.HasOwner(u)
}

// IsCreator reports whether the user created the room.
func (r *Room) IsCreator(u *User) bool {
	return r.Creator != nil && r.Creator.ID == u.ID
}

// UserNames returns the member names in no particular order.
func (r *Room) UserNames() []string {
	names := make([]string, 0, len(r.Users))
	for _, u := range r.Users {
		names = append(names, u.Name)
	}
	return names
}

// nameKey normalizes user and room names for case-insensitive lookups.
func nameKey(name string) string {
	return strings.ToLower(name)
}
