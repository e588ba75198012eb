package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("not_found")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAlreadyOnline      = errors.New("already_online")
	ErrValidation         = errors.New("validation")

	// Relationship conflicts. Reported to the caller as named conditions,
	// never treated as faults.
	ErrSelfTarget     = errors.New("self_target")
	ErrAlreadyFriends = errors.New("already_friends")
	ErrRequestPending = errors.New("request_pending")
	ErrBlockedByUser  = errors.New("blocked_by_user")
	ErrAlreadyBlocked = errors.New("already_blocked")
	ErrNotBlocked     = errors.New("not_blocked")
	ErrNotFriends     = errors.New("not_friends")
	ErrNoSuchRequest  = errors.New("no_such_request")
	ErrCannotMessage  = errors.New("cannot_message")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}
