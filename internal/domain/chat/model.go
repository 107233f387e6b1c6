package chat

import (
	"time"

	"github.com/google/uuid"
)

// MaxBodyLength bounds a single message body in bytes.
const MaxBodyLength = 4000

// Message is immutable once stored.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Room      string    `json:"room"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	MediaURL  *string   `json:"media_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SendInput struct {
	Body     string `json:"body"`
	MediaURL string `json:"media_url"`
}
