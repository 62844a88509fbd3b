// Package store provides the Postgres-backed persistence layer behind the
// permission resolver: list ownership, share records, and the combined
// access picture of a list.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/taskwire/taskwire/pkg/permission"
)

const schema = `
create table if not exists users (
    id         text primary key,
    email      text not null unique,
    name       text not null default ''
);

create table if not exists lists (
    id         text primary key,
    owner_id   text not null references users(id) on delete cascade,
    title      text not null default '',
    created_at timestamptz not null default now()
);

create table if not exists list_shares (
    list_id          text not null references lists(id) on delete cascade,
    user_id          text not null references users(id) on delete cascade,
    permission_level text not null,
    created_at       timestamptz not null default now(),
    primary key (list_id, user_id)
);

create index if not exists list_shares_user_idx on list_shares(user_id);
`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

// Open connects via the pgx stdlib driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db), nil
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

var _ permission.Store = (*Store)(nil)

// ListOwnership returns the list row if userID owns listID, (nil, nil)
// otherwise.
func (s *Store) ListOwnership(ctx context.Context, listID, userID string) (*permission.ListRecord, error) {
	var rec permission.ListRecord
	err := s.db.QueryRowContext(ctx,
		`select id, owner_id, title from lists where id=$1 and owner_id=$2`,
		listID, userID).
		Scan(&rec.ID, &rec.OwnerID, &rec.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Share returns the share record granting userID a tier on listID,
// (nil, nil) when no such grant exists.
func (s *Store) Share(ctx context.Context, listID, userID string) (*permission.ShareRecord, error) {
	var (
		rec   permission.ShareRecord
		level string
	)
	err := s.db.QueryRowContext(ctx,
		`select ls.list_id, u.id, u.email, u.name, ls.permission_level
		   from list_shares ls join users u on u.id = ls.user_id
		  where ls.list_id=$1 and ls.user_id=$2`,
		listID, userID).
		Scan(&rec.ListID, &rec.User.ID, &rec.User.Email, &rec.User.Name, &level)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Level, err = permission.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("share %s/%s: %w", listID, userID, err)
	}
	return &rec, nil
}

// ListWithShares returns the owner identity and every share of listID,
// (nil, nil) when the list does not exist.
func (s *Store) ListWithShares(ctx context.Context, listID string) (*permission.ListAccess, error) {
	var access permission.ListAccess
	err := s.db.QueryRowContext(ctx,
		`select u.id, u.email, u.name
		   from lists l join users u on u.id = l.owner_id
		  where l.id=$1`,
		listID).
		Scan(&access.Owner.ID, &access.Owner.Email, &access.Owner.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select ls.list_id, u.id, u.email, u.name, ls.permission_level
		   from list_shares ls join users u on u.id = ls.user_id
		  where ls.list_id=$1`,
		listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec   permission.ShareRecord
			level string
		)
		if err := rows.Scan(&rec.ListID, &rec.User.ID, &rec.User.Email, &rec.User.Name, &level); err != nil {
			return nil, err
		}
		rec.Level, err = permission.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("share %s/%s: %w", rec.ListID, rec.User.ID, err)
		}
		access.Shares = append(access.Shares, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &access, nil
}
