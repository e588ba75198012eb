package sqlite

import (
	"context"
	"testing"
	"time"

	"chatterserver/internal/domain"
	"chatterserver/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadEmptyDatabase(t *testing.T) {
	s := openTestStore(t)

	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(snap.Users) != 0 || len(snap.Relations) != 0 || len(snap.Messages) != 0 {
		t.Fatalf("fresh database must load empty, got %+v", snap)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ts := time.Date(2026, 8, 1, 12, 0, 0, 123456789, time.UTC)
	want := store.Snapshot{
		Users: []domain.User{
			{Name: "Alice", Username: "alice", PasswordHash: "$2a$10$x", Profile: "Email: a@x.test", Picture: "a.png"},
			{Name: "Bob", Username: "bob", PasswordHash: "$2a$10$y", Profile: "Email: b@x.test", Picture: "b.png"},
		},
		Relations: []store.UserRelations{
			{Username: "alice", Friends: []string{"bob"}, Pending: []string{"carol"}},
			{Username: "bob", Friends: []string{"alice"}, Blocked: []string{"dave"}},
		},
		Messages: []store.OwnedMessage{
			{Owner: "alice", Peer: "bob", Message: domain.Message{
				ID: "m1", Sender: "alice", Recipient: "bob", Body: "first", SentAt: ts,
			}},
			{Owner: "alice", Peer: "bob", Message: domain.Message{
				ID: "m2", Sender: "bob", Recipient: "alice", PhotoRef: "beach.png", SentAt: ts.Add(time.Minute),
			}},
			{Owner: "bob", Peer: "alice", Message: domain.Message{
				ID: "m1", Sender: "alice", Recipient: "bob", Body: "first", SentAt: ts,
			}},
		},
	}

	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(got.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(got.Users))
	}
	for i := range want.Users {
		if got.Users[i] != want.Users[i] {
			t.Fatalf("user %d changed across round trip: %+v vs %+v", i, got.Users[i], want.Users[i])
		}
	}

	if len(got.Relations) != 2 {
		t.Fatalf("expected 2 relation rows, got %d", len(got.Relations))
	}
	if got.Relations[0].Friends[0] != "bob" || got.Relations[0].Pending[0] != "carol" {
		t.Fatalf("alice's relations changed: %+v", got.Relations[0])
	}
	if got.Relations[1].Blocked[0] != "dave" {
		t.Fatalf("bob's relations changed: %+v", got.Relations[1])
	}

	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 message rows, got %d", len(got.Messages))
	}
	if got.Messages[0].Message.ID != "m1" || got.Messages[1].Message.ID != "m2" {
		t.Fatalf("per-conversation order lost: %+v", got.Messages)
	}
	if got.Messages[1].Message.PhotoRef != "beach.png" {
		t.Fatalf("photo reference lost: %+v", got.Messages[1].Message)
	}
	if !got.Messages[0].Message.SentAt.Equal(ts) {
		t.Fatalf("timestamp changed: %v, want %v", got.Messages[0].Message.SentAt, ts)
	}
}

func TestSaveReplacesPreviousSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := store.Snapshot{Users: []domain.User{{Name: "A", Username: "alice", PasswordHash: "h", Profile: "p", Picture: "x"}}}
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("first Save returned error: %v", err)
	}
	second := store.Snapshot{Users: []domain.User{{Name: "B", Username: "bob", PasswordHash: "h", Profile: "p", Picture: "x"}}}
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("second Save returned error: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(got.Users) != 1 || got.Users[0].Username != "bob" {
		t.Fatalf("each save must replace the previous snapshot, got %+v", got.Users)
	}
}
