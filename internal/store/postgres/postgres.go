// Package postgres implements the snapshot backend on PostgreSQL. Each save
// rewrites the snapshot tables in one transaction, mirroring the
// whole-state-rewrite semantics of the file backend.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatterserver/internal/domain"
	"chatterserver/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS users (
			ordinal       INT PRIMARY KEY,
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
			ordinal   INT NOT NULL,
			owner     TEXT NOT NULL,
			peer      TEXT NOT NULL,
			id        TEXT NOT NULL,
			sender    TEXT NOT NULL,
			recipient TEXT NOT NULL,
			body      TEXT NOT NULL DEFAULT '',
			photo_ref TEXT NOT NULL DEFAULT '',
			sent_at   TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (owner, peer, ordinal)
		);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot

	users, err := s.loadUsers(ctx)
	if err != nil {
		return store.Snapshot{}, err
	}
	snap.Users = users

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

func (s *Store) loadUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT username, name, password_hash, profile, picture
		FROM users ORDER BY ordinal ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.Username, &u.Name, &u.PasswordHash, &u.Profile, &u.Picture); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return out, nil
}

func (s *Store) loadRelations(ctx context.Context) ([]store.UserRelations, error) {
	rows, err := s.pool.Query(ctx, `
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
	rows, err := s.pool.Query(ctx, `
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
		if err := rows.Scan(&om.Owner, &om.Peer, &om.Message.ID, &om.Message.Sender,
			&om.Message.Recipient, &om.Message.Body, &om.Message.PhotoRef, &om.Message.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, om)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, snap store.Snapshot) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"messages", "relations", "users"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, u := range snap.Users {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (ordinal, username, name, password_hash, profile, picture)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, i, u.Username, u.Name, u.PasswordHash, u.Profile, u.Picture); err != nil {
			return fmt.Errorf("insert user %s: %w", u.Username, err)
		}
	}

	for _, ur := range snap.Relations {
		if err := insertRelations(ctx, tx, ur.Username, "friend", ur.Friends); err != nil {
			return err
		}
		if err := insertRelations(ctx, tx, ur.Username, "pending", ur.Pending); err != nil {
			return err
		}
		if err := insertRelations(ctx, tx, ur.Username, "blocked", ur.Blocked); err != nil {
			return err
		}
	}

	ordinals := map[[2]string]int{}
	for _, om := range snap.Messages {
		key := [2]string{om.Owner, om.Peer}
		ord := ordinals[key]
		ordinals[key] = ord + 1
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (ordinal, owner, peer, id, sender, recipient, body, photo_ref, sent_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, ord, om.Owner, om.Peer, om.Message.ID, om.Message.Sender, om.Message.Recipient,
			om.Message.Body, om.Message.PhotoRef, om.Message.SentAt); err != nil {
			return fmt.Errorf("insert message %s: %w", om.Message.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func insertRelations(ctx context.Context, tx pgx.Tx, username, kind string, peers []string) error {
	for _, peer := range peers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO relations (username, peer, kind) VALUES ($1, $2, $3)
		`, username, peer, kind); err != nil {
			return fmt.Errorf("insert %s relation %s->%s: %w", kind, username, peer, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
