package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chat-core/internal/chat"
	"chat-core/internal/message"
)

// UserDocument is the persisted shape of a user. Relations are stored as
// lowercase room names and rebuilt into the live graph on load.
type UserDocument struct {
	ID             string    `bson:"_id"`
	Key            string    `bson:"key"` // lowercase name
	Name           string    `bson:"name"`
	HashedPassword string    `bson:"hashed_password"`
	Salt           string    `bson:"salt"`
	Status         int       `bson:"status"`
	IsAFK          bool      `bson:"is_afk"`
	AFKNote        string    `bson:"afk_note"`
	Note           string    `bson:"note"`
	Flag           string    `bson:"flag"`
	GravatarHash   string    `bson:"gravatar_hash"`
	IsAdmin        bool      `bson:"is_admin"`
	LastActivity   time.Time `bson:"last_activity"`
	LastNudged     time.Time `bson:"last_nudged"`
}

// RoomDocument is the persisted shape of a room. Member, owner and allow
// lists hold lowercase user names.
type RoomDocument struct {
	Key          string    `bson:"_id"` // lowercase name
	Name         string    `bson:"name"`
	Topic        string    `bson:"topic"`
	Welcome      string    `bson:"welcome"`
	Private      bool      `bson:"private"`
	Closed       bool      `bson:"closed"`
	InviteCode   string    `bson:"invite_code"`
	CreatorID    string    `bson:"creator_id"`
	LastNudged   time.Time `bson:"last_nudged"`
	Owners       []string  `bson:"owners"`
	Users        []string  `bson:"users"`
	AllowedUsers []string  `bson:"allowed_users"`
}

// MongoRepository implements chat.Repository with a write-through scheme:
// the live entity graph stays in an in-memory repository (the source of
// truth while the process runs) and CommitChanges flushes it to MongoDB.
// The graph is small, so the flush is coarse rather than dirty-tracked.
type MongoRepository struct {
	mem      *chat.InMemoryRepository
	users    *mongo.Collection
	rooms    *mongo.Collection
	messages *mongo.Collection
}

var _ chat.Repository = (*MongoRepository)(nil)

// NewMongoRepository creates a Mongo-backed repository.
func NewMongoRepository(db *MongoDB) *MongoRepository {
	return &MongoRepository{
		mem:      chat.NewInMemoryRepository(),
		users:    db.Collection("users"),
		rooms:    db.Collection("rooms"),
		messages: db.Collection("messages"),
	}
}

// Load reads all users and rooms from MongoDB and rebuilds the entity graph.
func (r *MongoRepository) Load(ctx context.Context) error {
	userDocs := make(map[string]*UserDocument)
	cur, err := r.users.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	for cur.Next(ctx) {
		var doc UserDocument
		if err := cur.Decode(&doc); err != nil {
			return fmt.Errorf("decode user: %w", err)
		}
		userDocs[doc.Key] = &doc
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("iterate users: %w", err)
	}

	users := make(map[string]*chat.User, len(userDocs))
	usersByID := make(map[string]*chat.User, len(userDocs))
	for key, doc := range userDocs {
		user := doc.toUser()
		users[key] = user
		usersByID[user.ID] = user
		if err := r.mem.AddUser(user); err != nil {
			return err
		}
	}

	cur, err = r.rooms.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}
	for cur.Next(ctx) {
		var doc RoomDocument
		if err := cur.Decode(&doc); err != nil {
			return fmt.Errorf("decode room: %w", err)
		}
		room := doc.toRoom(users, usersByID)
		if err := r.mem.AddRoom(room); err != nil {
			return err
		}
	}
	return cur.Err()
}

// GetUserByID gets a user by id.
func (r *MongoRepository) GetUserByID(id string) (*chat.User, bool) {
	return r.mem.GetUserByID(id)
}

// GetUserByName gets a user by name, case-insensitively.
func (r *MongoRepository) GetUserByName(name string) (*chat.User, bool) {
	return r.mem.GetUserByName(name)
}

// GetRoomByName gets a room by name, case-insensitively.
func (r *MongoRepository) GetRoomByName(name string) (*chat.Room, bool) {
	return r.mem.GetRoomByName(name)
}

// AddUser stores a new user in memory and MongoDB.
func (r *MongoRepository) AddUser(u *chat.User) error {
	if err := r.mem.AddUser(u); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := r.users.InsertOne(ctx, newUserDocument(u)); err != nil {
		r.mem.RemoveUser(u)
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// AddRoom stores a new room in memory and MongoDB.
func (r *MongoRepository) AddRoom(room *chat.Room) error {
	if err := r.mem.AddRoom(room); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := r.rooms.InsertOne(ctx, newRoomDocument(room)); err != nil {
		r.mem.RemoveRoom(room)
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// RemoveUser removes a user from memory and MongoDB.
func (r *MongoRepository) RemoveUser(u *chat.User) error {
	if err := r.mem.RemoveUser(u); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := r.users.DeleteOne(ctx, bson.M{"_id": u.ID}); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// RemoveRoom removes a room from memory and MongoDB.
func (r *MongoRepository) RemoveRoom(room *chat.Room) error {
	if err := r.mem.RemoveRoom(room); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := r.rooms.DeleteOne(ctx, bson.M{"_id": strings.ToLower(room.Name)}); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// Users returns all users.
func (r *MongoRepository) Users() []*chat.User {
	return r.mem.Users()
}

// Rooms returns all rooms.
func (r *MongoRepository) Rooms() []*chat.Room {
	return r.mem.Rooms()
}

// UserCount returns the number of known users.
func (r *MongoRepository) UserCount() int {
	return r.mem.UserCount()
}

// CommitChanges flushes every live entity to MongoDB.
func (r *MongoRepository) CommitChanges() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	replace := options.Replace().SetUpsert(true)

	for _, u := range r.mem.Users() {
		doc := newUserDocument(u)
		if _, err := r.users.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, replace); err != nil {
			return fmt.Errorf("flush user '%s': %w", u.Name, err)
		}
	}
	for _, room := range r.mem.Rooms() {
		doc := newRoomDocument(room)
		if _, err := r.rooms.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, replace); err != nil {
			return fmt.Errorf("flush room '%s': %w", room.Name, err)
		}
	}
	return nil
}

// SaveMessage persists one room message.
func (r *MongoRepository) SaveMessage(msg *message.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := r.messages.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentMessages returns the last limit messages of a room in chronological
// order, for priming the recent message cache at startup.
func (r *MongoRepository) RecentMessages(roomName string, limit int) ([]*message.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "when", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.messages.Find(ctx, bson.M{"room_name": roomName}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}

	var msgs []*message.Message
	for cur.Next(ctx) {
		var msg message.Message
		if err := cur.Decode(&msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Newest-first from the query; reverse to chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func newUserDocument(u *chat.User) *UserDocument {
	return &UserDocument{
		ID:             u.ID,
		Key:            strings.ToLower(u.Name),
		Name:           u.Name,
		HashedPassword: u.HashedPassword,
		Salt:           u.Salt,
		Status:         int(u.Status),
		IsAFK:          u.IsAFK,
		AFKNote:        u.AFKNote,
		Note:           u.Note,
		Flag:           u.Flag,
		GravatarHash:   u.GravatarHash,
		IsAdmin:        u.IsAdmin,
		LastActivity:   u.LastActivity,
		LastNudged:     u.LastNudged,
	}
}

func (doc *UserDocument) toUser() *chat.User {
	user := chat.NewUser(doc.Name, doc.LastActivity)
	user.ID = doc.ID
	user.HashedPassword = doc.HashedPassword
	user.Salt = doc.Salt
	user.Status = chat.StatusOffline // connections do not survive a restart
	user.IsAFK = doc.IsAFK
	user.AFKNote = doc.AFKNote
	user.Note = doc.Note
	user.Flag = doc.Flag
	user.GravatarHash = doc.GravatarHash
	user.IsAdmin = doc.IsAdmin
	user.LastNudged = doc.LastNudged
	return user
}

func newRoomDocument(room *chat.Room) *RoomDocument {
	doc := &RoomDocument{
		Key:        strings.ToLower(room.Name),
		Name:       room.Name,
		Topic:      room.Topic,
		Welcome:    room.Welcome,
		Private:    room.Private,
		Closed:     room.Closed,
		InviteCode: room.InviteCode,
		LastNudged: room.LastNudged,
	}
	if room.Creator != nil {
		doc.CreatorID = room.Creator.ID
	}
	for key := range room.Owners {
		doc.Owners = append(doc.Owners, key)
	}
	for key := range room.Users {
		doc.Users = append(doc.Users, key)
	}
	for key := range room.AllowedUsers {
		doc.AllowedUsers = append(doc.AllowedUsers, key)
	}
	return doc
}

func (doc *RoomDocument) toRoom(users map[string]*chat.User, usersByID map[string]*chat.User) *chat.Room {
	room := &chat.Room{
		Name:         doc.Name,
		Topic:        doc.Topic,
		Welcome:      doc.Welcome,
		Private:      doc.Private,
		Closed:       doc.Closed,
		InviteCode:   doc.InviteCode,
		LastNudged:   doc.LastNudged,
		Owners:       make(map[string]*chat.User),
		Users:        make(map[string]*chat.User),
		AllowedUsers: make(map[string]*chat.User),
	}
	if creator, ok := usersByID[doc.CreatorID]; ok {
		room.Creator = creator
	}
	for _, key := range doc.Owners {
		if u, ok := users[key]; ok {
			room.AddOwner(u)
		}
	}
	for _, key := range doc.Users {
		if u, ok := users[key]; ok {
			room.AddUser(u)
		}
	}
	for _, key := range doc.AllowedUsers {
		if u, ok := users[key]; ok {
			room.AllowUser(u)
		}
	}
	return room
}
