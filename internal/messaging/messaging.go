// Package messaging holds per-identity conversation logs. Writes are gated
// by the social graph: only mutually unblocked friends can exchange
// messages. Each side of a conversation keeps its own copy of every message;
// delivery appends to both logs as one operation.
package messaging

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"

	"chatterserver/internal/directory"
	"chatterserver/internal/domain"
	"chatterserver/internal/social"
	"chatterserver/internal/store"
)

type Store struct {
	mu    sync.Mutex
	graph *social.Graph
	logs  map[string]map[string][]domain.Message // owner -> peer -> ordered log

	Now func() time.Time
}

func New(graph *social.Graph) *Store {
	return &Store{
		graph: graph,
		logs:  make(map[string]map[string][]domain.Message),
	}
}

func (s *Store) CanMessage(from, to string) bool {
	return s.graph.CanMessage(from, to)
}

// Append delivers a text message from one user to another, appending it to
// both conversation logs. The relationship gate and both appends happen
// under the store lock, so delivery is at-most-once and order-preserving
// per conversation.
func (s *Store) Append(from, to, body string) (domain.Message, error) {
	if body == "" {
		return domain.Message{}, domain.NewValidationError(map[string]string{"body": "required"})
	}
	return s.deliver(from, to, body, "")
}

// AppendPhoto delivers a photo-reference message.
func (s *Store) AppendPhoto(from, to, photoRef string) (domain.Message, error) {
	if photoRef == "" {
		return domain.Message{}, domain.NewValidationError(map[string]string{"photo": "required"})
	}
	return s.deliver(from, to, "", photoRef)
}

func (s *Store) deliver(from, to, body, photoRef string) (domain.Message, error) {
	sender, recipient := directory.Canonical(from), directory.Canonical(to)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.graph.IsFriend(sender, recipient) {
		return domain.Message{}, domain.ErrNotFriends
	}
	if !s.graph.CanMessage(sender, recipient) {
		return domain.Message{}, domain.ErrCannotMessage
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	msg := domain.Message{
		ID:        xid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Body:      body,
		PhotoRef:  photoRef,
		SentAt:    now(),
	}

	s.append(sender, recipient, msg)
	s.append(recipient, sender, msg)
	return msg, nil
}

// append adds msg to owner's log under peer. Callers hold s.mu.
func (s *Store) append(owner, peer string, msg domain.Message) {
	byPeer, ok := s.logs[owner]
	if !ok {
		byPeer = make(map[string][]domain.Message)
		s.logs[owner] = byPeer
	}
	byPeer[peer] = append(byPeer[peer], msg)
}

// History returns a copy of owner's log with peer, in delivery order.
func (s *Store) History(owner, peer string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[directory.Canonical(owner)][directory.Canonical(peer)]
	out := make([]domain.Message, len(log))
	copy(out, log)
	return out
}

// Delete removes matching messages from owner's own log only; the peer's
// copy is untouched. Returns the number removed.
func (s *Store) Delete(owner, peer string, match func(domain.Message) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPeer := s.logs[directory.Canonical(owner)]
	key := directory.Canonical(peer)
	log, ok := byPeer[key]
	if !ok {
		return 0
	}

	kept := log[:0]
	removed := 0
	for _, m := range log {
		if match(m) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	byPeer[key] = kept
	return removed
}

// Snapshot returns every owned log entry, ordered by owner, then peer, then
// position in the log.
func (s *Store) Snapshot() []store.OwnedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := make([]string, 0, len(s.logs))
	for owner := range s.logs {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	var out []store.OwnedMessage
	for _, owner := range owners {
		byPeer := s.logs[owner]
		peers := make([]string, 0, len(byPeer))
		for peer := range byPeer {
			peers = append(peers, peer)
		}
		sort.Strings(peers)
		for _, peer := range peers {
			for _, msg := range byPeer[peer] {
				out = append(out, store.OwnedMessage{Owner: owner, Peer: peer, Message: msg})
			}
		}
	}
	return out
}

// Restore replaces all logs from a snapshot, preserving entry order.
func (s *Store) Restore(msgs []store.OwnedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = make(map[string]map[string][]domain.Message)
	for _, om := range msgs {
		s.append(directory.Canonical(om.Owner), directory.Canonical(om.Peer), om.Message)
	}
}
