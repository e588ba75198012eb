// Package directory holds the process-wide identity store: every registered
// user, ordered by insertion, indexed by case-insensitive username.
package directory

import (
	"strings"
	"sync"

	"chatterserver/internal/auth"
	"chatterserver/internal/domain"
)

// Canonical returns the form of a username used as a lookup key.
func Canonical(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

type Directory struct {
	mu     sync.RWMutex
	users  []*domain.User
	byName map[string]*domain.User
}

func New() *Directory {
	return &Directory{byName: make(map[string]*domain.User)}
}

// Register creates a new identity. All fields are required; the username
// must be unique case-insensitively. The password is stored only as a
// bcrypt hash.
func (d *Directory) Register(name, username, password, profile, picture string) (domain.User, error) {
	name = strings.TrimSpace(name)
	username = strings.TrimSpace(username)
	profile = strings.TrimSpace(profile)
	picture = strings.TrimSpace(picture)

	fields := map[string]string{}
	if name == "" {
		fields["name"] = "required"
	}
	if username == "" {
		fields["username"] = "required"
	}
	if password == "" {
		fields["password"] = "required"
	}
	if profile == "" {
		fields["profile"] = "required"
	}
	if picture == "" {
		fields["picture"] = "required"
	}
	if len(fields) > 0 {
		return domain.User{}, domain.NewValidationError(fields)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	key := Canonical(username)
	if _, exists := d.byName[key]; exists {
		return domain.User{}, domain.ErrUsernameTaken
	}

	u := &domain.User{
		Name:         name,
		Username:     username,
		PasswordHash: hash,
		Profile:      profile,
		Picture:      picture,
	}
	d.users = append(d.users, u)
	d.byName[key] = u
	return *u, nil
}

func (d *Directory) Find(username string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byName[Canonical(username)]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return *u, nil
}

// Authenticate verifies credentials. An unknown username and a wrong
// password are indistinguishable to the caller.
func (d *Directory) Authenticate(username, password string) (domain.User, error) {
	u, err := d.Find(username)
	if err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	ok, err := auth.VerifyPassword(u.PasswordHash, password)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return u, nil
}

// All returns a copy of every identity in insertion order.
func (d *Directory) All() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, *u)
	}
	return out
}

// Snapshot is the persisted form of the directory. Identical to All; named
// separately so the saver reads as intent.
func (d *Directory) Snapshot() []domain.User {
	return d.All()
}

// Restore replaces the directory contents from a snapshot, preserving the
// snapshot's order. Password hashes are taken as-is.
func (d *Directory) Restore(users []domain.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users = d.users[:0]
	d.byName = make(map[string]*domain.User, len(users))
	for i := range users {
		u := users[i]
		key := Canonical(u.Username)
		if key == "" {
			return domain.NewValidationError(map[string]string{"username": "required"})
		}
		if _, exists := d.byName[key]; exists {
			return domain.ErrUsernameTaken
		}
		cp := u
		d.users = append(d.users, &cp)
		d.byName[key] = &cp
	}
	return nil
}
