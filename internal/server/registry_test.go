package server

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegisterClaimsNameOnce(t *testing.T) {
	r := NewRegistry()
	a, b := &Session{id: "a"}, &Session{id: "b"}

	if err := r.Register("Alice", a); err != nil {
		t.Fatalf("first Register returned error: %v", err)
	}
	if err := r.Register("alice", b); err == nil {
		t.Fatal("second Register with same name must fail")
	}
	if !r.IsOnline("ALICE") {
		t.Fatal("alice should be online, case-insensitively")
	}

	r.Unregister("alice")
	if r.IsOnline("alice") {
		t.Fatal("alice should be offline after Unregister")
	}
	if err := r.Register("alice", b); err != nil {
		t.Fatalf("Register after Unregister returned error: %v", err)
	}
}

func TestRegisterConcurrentSingleWinner(t *testing.T) {
	r := NewRegistry()

	const attempts = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Register("alice", &Session{}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one successful registration, got %d", got)
	}
}

func TestRouteToOfflineUser(t *testing.T) {
	r := NewRegistry()
	if r.Route("ghost", "MESSAGE,alice,hi") {
		t.Fatal("Route to an offline user must report false")
	}
}
