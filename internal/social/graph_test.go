package social

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"chatterserver/internal/domain"
)

func befriend(t *testing.T, g *Graph, a, b string) {
	t.Helper()
	if err := g.SendRequest(a, b); err != nil {
		t.Fatalf("SendRequest(%s,%s) returned error: %v", a, b, err)
	}
	if err := g.Approve(b, a); err != nil {
		t.Fatalf("Approve(%s,%s) returned error: %v", b, a, err)
	}
}

func TestRequestApproveLifecycle(t *testing.T) {
	g := New()

	if err := g.SendRequest("alice", "bob"); err != nil {
		t.Fatalf("SendRequest returned error: %v", err)
	}
	if !g.HasPendingFrom("bob", "alice") {
		t.Fatal("bob should have a pending request from alice")
	}
	if g.IsFriend("alice", "bob") {
		t.Fatal("pending request must not imply friendship")
	}

	if err := g.Approve("bob", "alice"); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if !g.IsFriend("alice", "bob") || !g.IsFriend("bob", "alice") {
		t.Fatal("friendship must be symmetric after approval")
	}
	if g.HasPendingFrom("bob", "alice") {
		t.Fatal("approval must consume the pending request")
	}
}

func TestRejectConsumesRequest(t *testing.T) {
	g := New()
	if err := g.SendRequest("alice", "bob"); err != nil {
		t.Fatalf("SendRequest returned error: %v", err)
	}

	if err := g.Reject("bob", "alice"); err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}
	if g.IsFriend("alice", "bob") {
		t.Fatal("reject must not create a friendship")
	}
	if err := g.Reject("bob", "alice"); !errors.Is(err, domain.ErrNoSuchRequest) {
		t.Fatalf("second reject: expected ErrNoSuchRequest, got %v", err)
	}

	// A fresh request after rejection works.
	if err := g.SendRequest("alice", "bob"); err != nil {
		t.Fatalf("re-send after reject returned error: %v", err)
	}
}

func TestSendRequestDuplicates(t *testing.T) {
	g := New()
	if err := g.SendRequest("alice", "bob"); err != nil {
		t.Fatalf("SendRequest returned error: %v", err)
	}

	if err := g.SendRequest("alice", "bob"); !errors.Is(err, domain.ErrRequestPending) {
		t.Fatalf("duplicate request: expected ErrRequestPending, got %v", err)
	}
	// The reverse direction is also refused while one request is in flight.
	if err := g.SendRequest("bob", "alice"); !errors.Is(err, domain.ErrRequestPending) {
		t.Fatalf("reverse request: expected ErrRequestPending, got %v", err)
	}
}

func TestSendRequestToFriendOrSelf(t *testing.T) {
	g := New()
	befriend(t, g, "alice", "bob")

	if err := g.SendRequest("alice", "bob"); !errors.Is(err, domain.ErrAlreadyFriends) {
		t.Fatalf("expected ErrAlreadyFriends, got %v", err)
	}
	if err := g.SendRequest("alice", "ALICE"); !errors.Is(err, domain.ErrSelfTarget) {
		t.Fatalf("expected ErrSelfTarget, got %v", err)
	}
}

func TestBlockDissolvesFriendship(t *testing.T) {
	g := New()
	befriend(t, g, "alice", "bob")

	if err := g.Block("alice", "bob"); err != nil {
		t.Fatalf("Block returned error: %v", err)
	}
	if g.IsFriend("alice", "bob") || g.IsFriend("bob", "alice") {
		t.Fatal("block must dissolve the friendship on both sides")
	}
	if !g.IsBlocked("alice", "bob") {
		t.Fatal("alice should have bob blocked")
	}
	if g.IsBlocked("bob", "alice") {
		t.Fatal("blocking is one-way; bob has not blocked alice")
	}
}

func TestBlockClearsPendingBothDirections(t *testing.T) {
	g := New()
	if err := g.SendRequest("alice", "bob"); err != nil {
		t.Fatalf("SendRequest returned error: %v", err)
	}

	if err := g.Block("bob", "alice"); err != nil {
		t.Fatalf("Block returned error: %v", err)
	}
	if g.HasPendingFrom("bob", "alice") {
		t.Fatal("block must invalidate the pending request")
	}
	if err := g.Approve("bob", "alice"); !errors.Is(err, domain.ErrNoSuchRequest) {
		t.Fatalf("approve after block: expected ErrNoSuchRequest, got %v", err)
	}

	// Neither side can open a new request while the block stands.
	if err := g.SendRequest("alice", "bob"); !errors.Is(err, domain.ErrBlockedByUser) {
		t.Fatalf("blocked requester: expected ErrBlockedByUser, got %v", err)
	}
	if err := g.SendRequest("bob", "alice"); !errors.Is(err, domain.ErrBlockedByUser) {
		t.Fatalf("blocking requester: expected ErrBlockedByUser, got %v", err)
	}
}

func TestBlockIdempotence(t *testing.T) {
	g := New()
	if err := g.Block("alice", "bob"); err != nil {
		t.Fatalf("Block returned error: %v", err)
	}
	if err := g.Block("alice", "bob"); !errors.Is(err, domain.ErrAlreadyBlocked) {
		t.Fatalf("expected ErrAlreadyBlocked, got %v", err)
	}
	if !g.IsBlocked("alice", "bob") {
		t.Fatal("repeated block must leave the block in place")
	}
}

func TestUnblockDoesNotRestoreFriendship(t *testing.T) {
	g := New()
	befriend(t, g, "alice", "bob")
	if err := g.Block("alice", "bob"); err != nil {
		t.Fatalf("Block returned error: %v", err)
	}

	if err := g.Unblock("alice", "bob"); err != nil {
		t.Fatalf("Unblock returned error: %v", err)
	}
	if g.IsBlocked("alice", "bob") {
		t.Fatal("unblock must clear the block")
	}
	if g.IsFriend("alice", "bob") {
		t.Fatal("unblock must not resurrect the dissolved friendship")
	}
	if err := g.Unblock("alice", "bob"); !errors.Is(err, domain.ErrNotBlocked) {
		t.Fatalf("second unblock: expected ErrNotBlocked, got %v", err)
	}
}

func TestCanMessage(t *testing.T) {
	g := New()

	if g.CanMessage("alice", "bob") {
		t.Fatal("strangers must not be able to message")
	}

	befriend(t, g, "alice", "bob")
	if !g.CanMessage("alice", "bob") || !g.CanMessage("bob", "alice") {
		t.Fatal("friends should be able to message both ways")
	}

	if err := g.Block("bob", "alice"); err != nil {
		t.Fatalf("Block returned error: %v", err)
	}
	if g.CanMessage("alice", "bob") || g.CanMessage("bob", "alice") {
		t.Fatal("a block in either direction must stop messaging")
	}
}

func TestRemoveFriend(t *testing.T) {
	g := New()
	befriend(t, g, "alice", "bob")

	if err := g.RemoveFriend("alice", "bob"); err != nil {
		t.Fatalf("RemoveFriend returned error: %v", err)
	}
	if g.IsFriend("bob", "alice") {
		t.Fatal("removal must be symmetric")
	}
	if err := g.RemoveFriend("alice", "bob"); !errors.Is(err, domain.ErrNotFriends) {
		t.Fatalf("expected ErrNotFriends, got %v", err)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	g := New()
	befriend(t, g, "alice", "bob")
	if err := g.SendRequest("carol", "alice"); err != nil {
		t.Fatalf("SendRequest returned error: %v", err)
	}
	if err := g.Block("bob", "dave"); err != nil {
		t.Fatalf("Block returned error: %v", err)
	}

	restored := New()
	restored.Restore(g.Snapshot())

	if !restored.IsFriend("alice", "bob") {
		t.Fatal("friendship lost across snapshot round trip")
	}
	if !restored.HasPendingFrom("alice", "carol") {
		t.Fatal("pending request lost across snapshot round trip")
	}
	if !restored.IsBlocked("bob", "dave") {
		t.Fatal("block lost across snapshot round trip")
	}
}

func TestConcurrentMutations(t *testing.T) {
	g := New()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user%02d", i)
			g.SendRequest(user, "hub")
			g.Approve("hub", user)
			if i%2 == 0 {
				g.Block(user, "pariah")
			}
		}(i)
	}
	wg.Wait()

	friends := g.Friends("hub")
	if len(friends) != n {
		t.Fatalf("expected %d friends of hub, got %d", n, len(friends))
	}
	for _, f := range friends {
		if !g.IsFriend(f, "hub") {
			t.Fatalf("friendship with %s is asymmetric", f)
		}
	}
}
