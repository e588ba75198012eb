package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatterserver/internal/domain"
)

const saveTimeout = 10 * time.Second

// Saver assembles a snapshot from the live components and writes it through
// the configured backend. Saves are serialized; each component's snapshot is
// taken under that component's own lock.
type Saver struct {
	Backend   Store
	Directory interface{ Snapshot() []domain.User }
	Graph     interface{ Snapshot() []UserRelations }
	Messages  interface{ Snapshot() []OwnedMessage }
	Logger    *slog.Logger

	mu sync.Mutex
}

func (s *Saver) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Users:     s.Directory.Snapshot(),
		Relations: s.Graph.Snapshot(),
		Messages:  s.Messages.Snapshot(),
	}
	return s.Backend.Save(ctx, snap)
}

// Persist saves and logs any failure. A client whose command already
// succeeded in memory is never told about storage trouble.
func (s *Saver) Persist() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.Save(ctx); err != nil {
		if s.Logger != nil {
			s.Logger.Error("snapshot save failed", "err", err)
		}
	}
}
