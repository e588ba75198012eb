package server

import (
	"sync"

	"chatterserver/internal/directory"
	"chatterserver/internal/domain"
)

// Registry is the process-wide table of who is online and how to reach
// them. At most one session per username; login must check-and-claim the
// entry as one atomic step.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register claims the username for sess. A second registration while the
// first is active fails with ErrAlreadyOnline; it never replaces the first.
func (r *Registry) Register(username string, sess *Session) error {
	key := directory.Canonical(username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, online := r.sessions[key]; online {
		return domain.ErrAlreadyOnline
	}
	r.sessions[key] = sess
	return nil
}

func (r *Registry) Unregister(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, directory.Canonical(username))
}

func (r *Registry) IsOnline(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, online := r.sessions[directory.Canonical(username)]
	return online
}

// Route delivers one line to the named user's session, if any. Offline
// targets are dropped; there is no queueing.
func (r *Registry) Route(username, line string) bool {
	r.mu.Lock()
	sess := r.sessions[directory.Canonical(username)]
	r.mu.Unlock()

	if sess == nil {
		return false
	}
	sess.send(line)
	return true
}

// Broadcast sends one line to every online session.
func (r *Registry) Broadcast(line string) {
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		targets = append(targets, sess)
	}
	r.mu.Unlock()

	for _, sess := range targets {
		sess.send(line)
	}
}
