package auth

import (
	"context"

	"parley.chat/internal/store"
)

// Store aggregates the persistence surfaces the auth layer depends on.
type Store interface {
	Users() UserStore
	Organizations() OrganizationStore
	Tokens() TokenStore
}

// UserFilter narrows List results. Zero values mean "no constraint".
// PlatformOnly selects users with no organization.
type UserFilter struct {
	OrganizationID string
	PlatformOnly   bool
	Roles          []Role
}

type UserStore interface {
	Create(ctx context.Context, u *User) error
	Retrieve(ctx context.Context, id string) (*User, error)
	RetrieveByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, filter UserFilter, opts store.ListOptions) (store.Page[User], error)
	Update(ctx context.Context, u *User) error
	// Delete removes a user; soft deletion disables the record instead.
	Delete(ctx context.Context, id string, soft bool) error
}

// OrganizationFilter narrows organization listings to a set of ids.
type OrganizationFilter struct {
	IDs []string
}

type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Retrieve(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context, filter OrganizationFilter, opts store.ListOptions) (store.Page[Organization], error)
	Update(ctx context.Context, org *Organization) error
	Delete(ctx context.Context, id string, soft bool) error
}

// TokenStore is the per-user single-active-token cache plus the revocation
// blacklist. All operations are total: acting on an absent entry is not an
// error. Backends must make each operation atomic per username.
type TokenStore interface {
	// Cache stores tok as the active token for username and returns it,
	// unless an active non-blacklisted entry already exists, in which
	// case nothing is stored and Cache returns nil.
	Cache(ctx context.Context, username string, tok Token) (*Token, error)

	// Cached returns the active token for username, or nil when there is
	// none or the cached pair has been blacklisted.
	Cached(ctx context.Context, username string) (*Token, error)

	// Invalidate blacklists both strings of tok and drops the cached
	// entry whose content hash matches. Idempotent.
	Invalidate(ctx context.Context, tok Token) error

	// IsBlocked reports whether the exact token string is blacklisted.
	IsBlocked(ctx context.Context, token string) (bool, error)

	// Logout drops the cached entry for username; when revoke is set the
	// dropped pair is blacklisted as well.
	Logout(ctx context.Context, username string, revoke bool) error
}
