package cache

import (
	"strings"
	"sync"

	"chat-core/internal/message"
)

// DefaultCapacity is the per-room window size used when none is configured.
const DefaultCapacity = 30

// RecentMessageCache keeps a bounded window of the most recent messages per
// room so a newly joined client can be populated without a storage query.
// Buffers for different rooms never share a lock; writers to the same room
// are serialized by that room's own mutex.
type RecentMessageCache struct {
	capacity int
	mutex    sync.RWMutex
	rooms    map[string]*roomBuffer
}

// roomBuffer holds the message window for one room. The backing slice is
// allowed to grow to twice the capacity before it is compacted, so appends
// are amortized rather than shifting on every insert.
type roomBuffer struct {
	capacity int
	mutex    sync.Mutex
	messages []*message.Message
}

// New creates a cache that retains the last capacity messages per room.
func New(capacity int) *RecentMessageCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RecentMessageCache{
		capacity: capacity,
		rooms:    make(map[string]*roomBuffer),
	}
}

// Add appends a message to the buffer of msg.RoomName, creating the buffer
// if the room has not been seen before.
func (c *RecentMessageCache) Add(msg *message.Message) {
	buf := c.buffer(msg.RoomName)
	buf.mutex.Lock()
	defer buf.mutex.Unlock()

	buf.messages = append(buf.messages, msg)
	if len(buf.messages) > buf.capacity*2 {
		compacted := make([]*message.Message, buf.capacity, buf.capacity*2)
		copy(compacted, buf.messages[len(buf.messages)-buf.capacity:])
		buf.messages = compacted
	}
}

// Prime seeds a room's buffer from an ordered sequence loaded from storage,
// replacing anything already cached for that room.
func (c *RecentMessageCache) Prime(roomName string, initial []*message.Message) {
	buf := c.buffer(roomName)
	buf.mutex.Lock()
	defer buf.mutex.Unlock()

	if len(initial) > buf.capacity {
		initial = initial[len(initial)-buf.capacity:]
	}
	buf.messages = make([]*message.Message, len(initial), buf.capacity*2)
	copy(buf.messages, initial)
}

// GetRecentMessages returns the last min(capacity, total-added) messages for
// the room in chronological order. An unknown room yields an empty slice.
func (c *RecentMessageCache) GetRecentMessages(roomName string) []*message.Message {
	c.mutex.RLock()
	buf, exists := c.rooms[roomKey(roomName)]
	c.mutex.RUnlock()
	if !exists {
		return []*message.Message{}
	}

	buf.mutex.Lock()
	defer buf.mutex.Unlock()

	window := buf.messages
	if len(window) > buf.capacity {
		window = window[len(window)-buf.capacity:]
	}
	out := make([]*message.Message, len(window))
	copy(out, window)
	return out
}

// buffer returns the buffer for a room, creating it lazily.
func (c *RecentMessageCache) buffer(roomName string) *roomBuffer {
	key := roomKey(roomName)

	c.mutex.RLock()
	buf, exists := c.rooms[key]
	c.mutex.RUnlock()
	if exists {
		return buf
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if buf, exists = c.rooms[key]; exists {
		return buf
	}
	buf = &roomBuffer{
		capacity: c.capacity,
		messages: make([]*message.Message, 0, c.capacity*2),
	}
	c.rooms[key] = buf
	return buf
}

func roomKey(name string) string {
	return strings.ToLower(name)
}
