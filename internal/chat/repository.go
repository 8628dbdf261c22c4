package chat

import (
	"fmt"
	"sync"
)

// Repository manages user and room persistence. Implementations must provide
// at least per-entity atomic commit; callers treat one command's mutations as
// a single unit of work ending in CommitChanges.
type Repository interface {
	GetUserByID(id string) (*User, bool)
	GetUserByName(name string) (*User, bool)
	GetRoomByName(name string) (*Room, bool)
	AddUser(u *User) error
	AddRoom(r *Room) error
	RemoveUser(u *User) error
	RemoveRoom(r *Room) error
	Users() []*User
	Rooms() []*Room
	UserCount() int
	CommitChanges() error
}

// InMemoryRepository implements Repository using in-memory storage with
// case-insensitive name keys.
type InMemoryRepository struct {
	users     map[string]*User // lowercase name -> User
	usersByID map[string]*User
	rooms     map[string]*Room // lowercase name -> Room
	mutex     sync.RWMutex
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:     make(map[string]*User),
		usersByID: make(map[string]*User),
		rooms:     make(map[string]*Room),
	}
}

// GetUserByID gets a user by id.
func (r *InMemoryRepository) GetUserByID(id string) (*User, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	user, exists := r.usersByID[id]
	return user, exists
}

// GetUserByName gets a user by name, case-insensitively.
func (r *InMemoryRepository) GetUserByName(name string) (*User, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	user, exists := r.users[nameKey(name)]
	return user, exists
}

// GetRoomByName gets a room by name, case-insensitively.
func (r *InMemoryRepository) GetRoomByName(name string) (*Room, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	room, exists := r.rooms[nameKey(name)]
	return room, exists
}

// AddUser stores a new user.
func (r *InMemoryRepository) AddUser(u *User) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.users[nameKey(u.Name)]; exists {
		return fmt.Errorf("user '%s' already exists", u.Name)
	}
	r.users[nameKey(u.Name)] = u
	r.usersByID[u.ID] = u
	return nil
}

// AddRoom stores a new room.
func (r *InMemoryRepository) AddRoom(room *Room) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.rooms[nameKey(room.Name)]; exists {
		return fmt.Errorf("room '%s' already exists", room.Name)
	}
	r.rooms[nameKey(room.Name)] = room
	return nil
}

// RemoveUser removes a user.
func (r *InMemoryRepository) RemoveUser(u *User) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.users[nameKey(u.Name)]; !exists {
		return fmt.Errorf("user '%s' not found", u.Name)
	}
	delete(r.users, nameKey(u.Name))
	delete(r.usersByID, u.ID)
	return nil
}

// RemoveRoom removes a room.
func (r *InMemoryRepository) RemoveRoom(room *Room) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.rooms[nameKey(room.Name)]; !exists {
		return fmt.Errorf("room '%s' not found", room.Name)
	}
	delete(r.rooms, nameKey(room.Name))
	return nil
}

// Users returns all users.
func (r *InMemoryRepository) Users() []*User {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	users := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	return users
}

// Rooms returns all rooms.
func (r *InMemoryRepository) Rooms() []*Room {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// UserCount returns the number of known users.
func (r *InMemoryRepository) UserCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.users)
}

// CommitChanges is a no-op for in-memory storage; mutations are visible as
// soon as they happen.
func (r *InMemoryRepository) CommitChanges() error {
	return nil
}
