// Package social implements the friend/pending/blocked relationship state
// machine. Every mutation that touches two identities runs as one critical
// section under the graph-wide mutex, so friendship can never be observed
// asymmetric and racing requests cannot leave partial updates.
package social

import (
	"sort"
	"sync"

	"chatterserver/internal/directory"
	"chatterserver/internal/domain"
	"chatterserver/internal/store"
)

type relations struct {
	friends map[string]struct{}
	pending map[string]struct{} // incoming requests, keyed by requester
	blocked map[string]struct{}
}

func newRelations() *relations {
	return &relations{
		friends: make(map[string]struct{}),
		pending: make(map[string]struct{}),
		blocked: make(map[string]struct{}),
	}
}

type Graph struct {
	mu  sync.Mutex
	rel map[string]*relations
}

func New() *Graph {
	return &Graph{rel: make(map[string]*relations)}
}

// ensure returns the relation sets for a user, creating them on first use.
// Callers hold g.mu.
func (g *Graph) ensure(user string) *relations {
	r, ok := g.rel[user]
	if !ok {
		r = newRelations()
		g.rel[user] = r
	}
	return r
}

func canonPair(self, other string) (string, string, error) {
	a, b := directory.Canonical(self), directory.Canonical(other)
	if a == b {
		return "", "", domain.ErrSelfTarget
	}
	return a, b, nil
}

// SendRequest records a friend request from self to other. Re-sending while
// a request is pending in either direction reports ErrRequestPending and
// changes nothing.
func (g *Graph) SendRequest(self, other string) error {
	from, to, err := canonPair(self, other)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	sender, recipient := g.ensure(from), g.ensure(to)
	if _, ok := sender.friends[to]; ok {
		return domain.ErrAlreadyFriends
	}
	if _, ok := recipient.pending[from]; ok {
		return domain.ErrRequestPending
	}
	if _, ok := sender.pending[to]; ok {
		return domain.ErrRequestPending
	}
	if _, ok := recipient.blocked[from]; ok {
		return domain.ErrBlockedByUser
	}
	if _, ok := sender.blocked[to]; ok {
		return domain.ErrBlockedByUser
	}

	recipient.pending[from] = struct{}{}
	return nil
}

// Approve turns a pending request from requester into a friendship. Both
// friend sets are updated in the same critical section.
func (g *Graph) Approve(self, requester string) error {
	me, req, err := canonPair(self, requester)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	mine := g.ensure(me)
	if _, ok := mine.pending[req]; !ok {
		return domain.ErrNoSuchRequest
	}
	delete(mine.pending, req)
	mine.friends[req] = struct{}{}
	g.ensure(req).friends[me] = struct{}{}
	return nil
}

func (g *Graph) Reject(self, requester string) error {
	me, req, err := canonPair(self, requester)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	mine := g.ensure(me)
	if _, ok := mine.pending[req]; !ok {
		return domain.ErrNoSuchRequest
	}
	delete(mine.pending, req)
	return nil
}

func (g *Graph) RemoveFriend(self, other string) error {
	me, them, err := canonPair(self, other)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	mine := g.ensure(me)
	if _, ok := mine.friends[them]; !ok {
		return domain.ErrNotFriends
	}
	delete(mine.friends, them)
	delete(g.ensure(them).friends, me)
	return nil
}

// Block is idempotent. Blocking dissolves any friendship on both sides and
// invalidates pending requests in both directions.
func (g *Graph) Block(self, other string) error {
	me, them, err := canonPair(self, other)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	mine, theirs := g.ensure(me), g.ensure(them)
	if _, ok := mine.blocked[them]; ok {
		return domain.ErrAlreadyBlocked
	}

	mine.blocked[them] = struct{}{}
	delete(mine.friends, them)
	delete(theirs.friends, me)
	delete(mine.pending, them)
	delete(theirs.pending, me)
	return nil
}

// Unblock removes the block only; it does not restore any prior friendship
// or pending request.
func (g *Graph) Unblock(self, other string) error {
	me, them, err := canonPair(self, other)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	mine := g.ensure(me)
	if _, ok := mine.blocked[them]; !ok {
		return domain.ErrNotBlocked
	}
	delete(mine.blocked, them)
	return nil
}

func (g *Graph) IsFriend(self, other string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.ensure(directory.Canonical(self)).friends[directory.Canonical(other)]
	return ok
}

// IsBlocked reports whether self has blocked other. Blocking is one-way.
func (g *Graph) IsBlocked(self, other string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.ensure(directory.Canonical(self)).blocked[directory.Canonical(other)]
	return ok
}

// BlockedEitherWay reports whether either side has blocked the other.
func (g *Graph) BlockedEitherWay(a, b string) bool {
	ca, cb := directory.Canonical(a), directory.Canonical(b)

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.ensure(ca).blocked[cb]; ok {
		return true
	}
	_, ok := g.ensure(cb).blocked[ca]
	return ok
}

func (g *Graph) HasPendingFrom(self, other string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.ensure(directory.Canonical(self)).pending[directory.Canonical(other)]
	return ok
}

// CanMessage reports whether a may message b: they are friends and neither
// has blocked the other. Evaluated under one lock so a concurrent block
// cannot produce a half-true answer.
func (g *Graph) CanMessage(a, b string) bool {
	ca, cb := directory.Canonical(a), directory.Canonical(b)
	if ca == cb {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ra, rb := g.ensure(ca), g.ensure(cb)
	if _, ok := ra.friends[cb]; !ok {
		return false
	}
	if _, ok := ra.blocked[cb]; ok {
		return false
	}
	if _, ok := rb.blocked[ca]; ok {
		return false
	}
	return true
}

// Friends returns a sorted copy of self's friend set.
func (g *Graph) Friends(self string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return sortedKeys(g.ensure(directory.Canonical(self)).friends)
}

func (g *Graph) Blocked(self string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return sortedKeys(g.ensure(directory.Canonical(self)).blocked)
}

// PendingIncoming returns the usernames whose requests await self's decision.
func (g *Graph) PendingIncoming(self string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return sortedKeys(g.ensure(directory.Canonical(self)).pending)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the persisted form of the graph, sorted by username.
// Users with no relationships are omitted.
func (g *Graph) Snapshot() []store.UserRelations {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]store.UserRelations, 0, len(g.rel))
	for user, r := range g.rel {
		if len(r.friends) == 0 && len(r.pending) == 0 && len(r.blocked) == 0 {
			continue
		}
		out = append(out, store.UserRelations{
			Username: user,
			Friends:  sortedKeys(r.friends),
			Pending:  sortedKeys(r.pending),
			Blocked:  sortedKeys(r.blocked),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Restore replaces the graph contents from a snapshot.
func (g *Graph) Restore(rels []store.UserRelations) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rel = make(map[string]*relations, len(rels))
	for _, ur := range rels {
		r := g.ensure(directory.Canonical(ur.Username))
		for _, f := range ur.Friends {
			r.friends[directory.Canonical(f)] = struct{}{}
		}
		for _, p := range ur.Pending {
			r.pending[directory.Canonical(p)] = struct{}{}
		}
		for _, b := range ur.Blocked {
			r.blocked[directory.Canonical(b)] = struct{}{}
		}
	}
}
