// Package store defines the persisted snapshot model and the backend
// contract: the in-memory state is authoritative, one snapshot of the
// durable portion is written after every mutating operation and loaded once
// at startup.
package store

import (
	"context"

	"chatterserver/internal/domain"
)

// UserRelations is the persisted relationship state of one identity.
type UserRelations struct {
	Username string   `json:"username"`
	Friends  []string `json:"friends,omitempty"`
	Pending  []string `json:"pending_incoming,omitempty"`
	Blocked  []string `json:"blocked,omitempty"`
}

// OwnedMessage is one conversation-log entry together with the log it
// belongs to. Each side of a conversation owns its own copy.
type OwnedMessage struct {
	Owner   string         `json:"owner"`
	Peer    string         `json:"peer"`
	Message domain.Message `json:"message"`
}

type Snapshot struct {
	Users     []domain.User   `json:"users"`
	Relations []UserRelations `json:"relations,omitempty"`
	Messages  []OwnedMessage  `json:"messages,omitempty"`
}

// Store is a snapshot backend. Load on a backend that has never been
// written returns an empty snapshot, not an error.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}
