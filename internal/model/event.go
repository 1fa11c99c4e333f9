package model

import "time"

// Event is one inbound chat-protocol event as delivered by the transport
// webhook. Rendering, keyboards, and full command parsing stay on the
// transport side; the gateway only needs the sender and the text.
type Event struct {
	ID         string    `json:"id"` // transport update id, used for logging only
	UserKey    string    `json:"user_key"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}
