package message

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a single chat message. Author and room are referenced
// by id/name so the message can travel through the cache and the transport
// without dragging the entity graph along.
type Message struct {
	ID          string    `json:"id" bson:"_id,omitempty"`
	Content     string    `json:"content" bson:"content"`
	UserID      string    `json:"user_id" bson:"user_id"`
	UserName    string    `json:"user_name" bson:"user_name"`
	RoomName    string    `json:"room_name" bson:"room_name"`
	When        time.Time `json:"when" bson:"when"`
	HTMLEncoded bool      `json:"html_encoded" bson:"html_encoded"`
}

// New creates a message with a fresh id.
func New(userID, userName, roomName, content string, when time.Time) *Message {
	return &Message{
		ID:       uuid.NewString(),
		Content:  content,
		UserID:   userID,
		UserName: userName,
		RoomName: roomName,
		When:     when,
	}
}
