// Package pg is the PostgreSQL storage backend.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
	"parley.chat/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle; tests pass a mock through here.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Users() auth.UserStore                 { return userStore{s} }
func (s *Store) Organizations() auth.OrganizationStore { return orgStore{s} }
func (s *Store) Tokens() auth.TokenStore               { return tokenStore{s} }
func (s *Store) Conversations() chat.Store             { return convStore{s} }
func (s *Store) Messages() chat.MessageStore           { return msgStore{s} }

// EnsureSchema creates the tables when missing and seeds the bootstrap
// super admin on a fresh database.
func (s *Store) EnsureSchema(ctx context.Context, adminID, adminUsername, adminHash string) error {
	stmts := []string{
		`create table if not exists users (
			id text primary key,
			username text not null unique,
			email text not null default '',
			full_name text not null default '',
			organization_id text not null default '',
			role text not null,
			disabled boolean not null default false,
			hashed_password text not null
		)`,
		`create table if not exists organizations (
			id text primary key,
			name text not null,
			description text not null default '',
			owner_id text not null default '',
			disabled boolean not null default false
		)`,
		`create table if not exists conversations (
			id text primary key,
			organization_id text not null,
			type text not null,
			name text not null default '',
			participants jsonb not null default '[]',
			disabled boolean not null default false,
			created_at bigint not null,
			updated_at bigint not null
		)`,
		`create table if not exists messages (
			id text primary key,
			conversation_id text not null,
			sender_id text not null,
			type text not null,
			content text not null,
			edited boolean not null default false,
			deleted boolean not null default false,
			reply_to text not null default '',
			metadata jsonb,
			reactions jsonb not null default '[]',
			created_at bigint not null,
			updated_at bigint not null
		)`,
		`create index if not exists messages_conversation_idx
			on messages(conversation_id, id)`,
		`create table if not exists token_cache (
			username text primary key,
			access_token text not null,
			refresh_token text not null,
			token_type text not null,
			expires_at bigint not null
		)`,
		`create table if not exists token_blacklist (
			token text primary key,
			revoked_at timestamptz not null default now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	if adminUsername != "" {
		_, err := s.db.ExecContext(ctx, `
			insert into users(id, username, full_name, role, hashed_password)
			values ($1,$2,'Super Admin',$3,$4)
			on conflict (username) do nothing
		`, adminID, adminUsername, string(auth.RoleSuperAdmin), adminHash)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}
	return nil
}

// cursorClause renders the window condition for an id column, appending
// bind values to args.
func cursorClause(col string, opts store.ListOptions, args *[]any) []string {
	var conds []string
	if opts.Start != "" {
		*args = append(*args, opts.Start)
		op := ">="
		if opts.Sort == store.SortDesc {
			op = "<="
		}
		conds = append(conds, fmt.Sprintf("%s %s $%d", col, op, len(*args)))
	}
	if opts.Before != "" {
		*args = append(*args, opts.Before)
		op := "<"
		if opts.Sort == store.SortDesc {
			op = ">"
		}
		conds = append(conds, fmt.Sprintf("%s %s $%d", col, op, len(*args)))
	}
	return conds
}

func orderAndLimit(col string, opts store.ListOptions, args *[]any) string {
	dir := "asc"
	if opts.Sort == store.SortDesc {
		dir = "desc"
	}
	// One extra row decides has_more.
	*args = append(*args, opts.Limit+1)
	return fmt.Sprintf(" order by %s %s limit $%d", col, dir, len(*args))
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " where " + strings.Join(conds, " and ")
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func join(ph []string) string { return strings.Join(ph, ",") }

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
