package domain

import (
	"errors"
	"testing"
	"time"
)

func TestMessageString(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)

	text := Message{Sender: "alice", Body: "hello", SentAt: ts}
	if got, want := text.String(), "[2026-08-01T12:30:00Z] alice: hello"; got != want {
		t.Fatalf("text message renders as %q, want %q", got, want)
	}

	photo := Message{Sender: "bob", PhotoRef: "beach.png", SentAt: ts}
	if got, want := photo.String(), "[2026-08-01T12:30:00Z] bob sent a photo: beach.png"; got != want {
		t.Fatalf("photo message renders as %q, want %q", got, want)
	}
	if !photo.IsPhoto() || text.IsPhoto() {
		t.Fatal("IsPhoto must follow PhotoRef")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError(map[string]string{
		"username": "required",
		"password": "required",
	})

	if !errors.Is(err, ErrValidation) {
		t.Fatal("validation errors must unwrap to ErrValidation")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	// Fields render sorted so the message is stable.
	if got, want := verr.Error(), "validation failed: password: required, username: required"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
