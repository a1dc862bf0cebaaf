// Package events publishes domain events to a RabbitMQ topic exchange.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type is the routing key of an event
type Type string

const (
	PhotoUploaded  Type = "photo.uploaded"
	PhotoDeleted   Type = "photo.deleted"
	CatCreated     Type = "cat.created"
	CatUpdated     Type = "cat.updated"
	CatDeleted     Type = "cat.deleted"
	CommentCreated Type = "comment.created"
	CommentDeleted Type = "comment.deleted"
	ThreadCreated  Type = "thread.created"
	ThreadDeleted  Type = "thread.deleted"
	UserUpdated    Type = "user.updated"
)

// Event is the envelope of every published message
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	SubjectID  string    `json:"subject_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// New creates an event of the given type
func New(t Type, subjectID, actorID string, data any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		SubjectID:  subjectID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}
