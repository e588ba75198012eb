// Package sqlite implements the snapshot backend on an embedded SQLite
// database. modernc.org/sqlite is pure Go, so the server stays a single
// static binary; ":memory:" gives tests a throwaway database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"chatterserver/internal/domain"
	"chatterserver/internal/store"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL keeps readers unblocked while a snapshot save rewrites tables.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS users (
			ordinal       INTEGER PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			profile       TEXT NOT NULL,
			picture       TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS relations (
			username TEXT NOT NULL,
			peer     TEXT NOT NULL,
			kind     TEXT NOT NULL CHECK (kind IN ('friend', 'pending', 'blocked')),
			PRIMARY KEY (username, peer, kind)
		);
		CREATE TABLE IF NOT EXISTS messages (
			ordinal   INTEGER NOT NULL,
			owner     TEXT NOT NULL,
			peer      TEXT NOT NULL,
			id        TEXT NOT NULL,
			sender    TEXT NOT NULL,
			recipient TEXT NOT NULL,
			body      TEXT NOT NULL DEFAULT '',
			photo_ref TEXT NOT NULL DEFAULT '',
			sent_at   TEXT NOT NULL,
			PRIMARY KEY (owner, peer, ordinal)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot

	rows, err := s.db.QueryContext(ctx, `
		SELECT username, name, password_hash, profile, picture
		FROM users ORDER BY ordinal ASC
	`)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load users: %w", err)
	}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.Username, &u.Name, &u.PasswordHash, &u.Profile, &u.Picture); err != nil {
			rows.Close()
			return store.Snapshot{}, fmt.Errorf("scan user: %w", err)
		}
		snap.Users = append(snap.Users, u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return store.Snapshot{}, fmt.Errorf("load users: %w", err)
	}
	rows.Close()

	rels, err := s.loadRelations(ctx)
	if err != nil {
		return store.Snapshot{}, err
	}
	snap.Relations = rels

	msgs, err := s.loadMessages(ctx)
	if err != nil {
		return store.Snapshot{}, err
	}
	snap.Messages = msgs

	return snap, nil
}

func (s *Store) loadRelations(ctx context.Context) ([]store.UserRelations, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, peer, kind
		FROM relations ORDER BY username, kind, peer
	`)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	defer rows.Close()

	byUser := map[string]*store.UserRelations{}
	var order []string
	for rows.Next() {
		var username, peer, kind string
		if err := rows.Scan(&username, &peer, &kind); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		ur, ok := byUser[username]
		if !ok {
			ur = &store.UserRelations{Username: username}
			byUser[username] = ur
			order = append(order, username)
		}
		switch kind {
		case "friend":
			ur.Friends = append(ur.Friends, peer)
		case "pending":
			ur.Pending = append(ur.Pending, peer)
		case "blocked":
			ur.Blocked = append(ur.Blocked, peer)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}

	out := make([]store.UserRelations, 0, len(order))
	for _, u := range order {
		out = append(out, *byUser[u])
	}
	return out, nil
}

func (s *Store) loadMessages(ctx context.Context) ([]store.OwnedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, peer, id, sender, recipient, body, photo_ref, sent_at
		FROM messages ORDER BY owner, peer, ordinal ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var out []store.OwnedMessage
	for rows.Next() {
		var om store.OwnedMessage
		var sentAt string
		if err := rows.Scan(&om.Owner, &om.Peer, &om.Message.ID, &om.Message.Sender,
			&om.Message.Recipient, &om.Message.Body, &om.Message.PhotoRef, &sentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, sentAt)
		if err != nil {
			return nil, fmt.Errorf("parse message timestamp %q: %w", sentAt, err)
		}
		om.Message.SentAt = ts
		out = append(out, om)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, snap store.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "relations", "users"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, u := range snap.Users {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (ordinal, username, name, password_hash, profile, picture)
			VALUES (?, ?, ?, ?, ?, ?)
		`, i, u.Username, u.Name, u.PasswordHash, u.Profile, u.Picture); err != nil {
			return fmt.Errorf("insert user %s: %w", u.Username, err)
		}
	}

	for _, ur := range snap.Relations {
		for kind, peers := range map[string][]string{
			"friend":  ur.Friends,
			"pending": ur.Pending,
			"blocked": ur.Blocked,
		} {
			for _, peer := range peers {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO relations (username, peer, kind) VALUES (?, ?, ?)
				`, ur.Username, peer, kind); err != nil {
					return fmt.Errorf("insert %s relation %s->%s: %w", kind, ur.Username, peer, err)
				}
			}
		}
	}

	ordinals := map[[2]string]int{}
	for _, om := range snap.Messages {
		key := [2]string{om.Owner, om.Peer}
		ord := ordinals[key]
		ordinals[key] = ord + 1
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (ordinal, owner, peer, id, sender, recipient, body, photo_ref, sent_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, ord, om.Owner, om.Peer, om.Message.ID, om.Message.Sender, om.Message.Recipient,
			om.Message.Body, om.Message.PhotoRef, om.Message.SentAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert message %s: %w", om.Message.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
