package domain

import (
	"fmt"
	"time"
)

// User is a registered identity. Username is the unique key, compared
// case-insensitively, and never changes after registration.
type User struct {
	Name         string `json:"name"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Profile      string `json:"profile"`
	Picture      string `json:"picture"`
}

// Message is one entry in a conversation log, immutable once created.
// Exactly one of Body and PhotoRef is set.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Body      string    `json:"body,omitempty"`
	PhotoRef  string    `json:"photo_ref,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

func (m Message) IsPhoto() bool { return m.PhotoRef != "" }

// String renders the message the way MESSAGES_LIST entries are sent to
// clients.
func (m Message) String() string {
	ts := m.SentAt.Format(time.RFC3339)
	if m.IsPhoto() {
		return fmt.Sprintf("[%s] %s sent a photo: %s", ts, m.Sender, m.PhotoRef)
	}
	return fmt.Sprintf("[%s] %s: %s", ts, m.Sender, m.Body)
}
