// Package memory is the in-process storage backend. It backs development
// and tests, and is the reference implementation of the store semantics
// the SQL backend must match.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
	"parley.chat/internal/store"
)

// Seeded bootstrap administrator. The hash is bcrypt("pass1234").
const (
	SeedAdminID       = "01917074-e006-7df3-b00b-d5daa3631291"
	SeedAdminUsername = "admin"
	SeedAdminHash     = "$2b$12$vju9EMyn.CE80h88pErZNuSC.0EZOH/rqw2RpCLdCeEVLRPfhDlYS"
)

// Store keeps everything behind one mutex. Per-username token atomicity
// follows directly: every token operation holds the write lock end to end.
type Store struct {
	mu sync.RWMutex

	users         map[string]*auth.User // by id
	usersByName   map[string]string     // username -> id
	organizations map[string]*auth.Organization
	conversations map[string]*chat.Conversation
	messages      map[string]*chat.Message

	tokens    map[string]auth.Token // username -> active pair
	blacklist map[string]struct{}   // revoked token strings
}

// New returns an empty store seeded with the bootstrap super admin.
func New() *Store {
	s := &Store{
		users:         make(map[string]*auth.User),
		usersByName:   make(map[string]string),
		organizations: make(map[string]*auth.Organization),
		conversations: make(map[string]*chat.Conversation),
		messages:      make(map[string]*chat.Message),
		tokens:        make(map[string]auth.Token),
		blacklist:     make(map[string]struct{}),
	}
	admin := &auth.User{
		ID:             SeedAdminID,
		Username:       SeedAdminUsername,
		FullName:       "Super Admin",
		Role:           auth.RoleSuperAdmin,
		HashedPassword: SeedAdminHash,
	}
	s.users[admin.ID] = admin
	s.usersByName[admin.Username] = admin.ID
	return s
}

func (s *Store) Users() auth.UserStore                 { return userStore{s} }
func (s *Store) Organizations() auth.OrganizationStore { return orgStore{s} }
func (s *Store) Tokens() auth.TokenStore               { return tokenStore{s} }
func (s *Store) Conversations() chat.Store             { return convStore{s} }
func (s *Store) Messages() chat.MessageStore           { return msgStore{s} }

// Ping reports readiness; the in-memory backend is always ready.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func cloneUser(u *auth.User) *auth.User {
	cp := *u
	return &cp
}

func cloneOrg(o *auth.Organization) *auth.Organization {
	cp := *o
	return &cp
}

func cloneConv(c *chat.Conversation) *chat.Conversation {
	cp := *c
	cp.Participants = append([]chat.Participant(nil), c.Participants...)
	return &cp
}

func cloneMsg(m *chat.Message) *chat.Message {
	cp := *m
	cp.Reactions = append([]chat.Reaction(nil), m.Reactions...)
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

type userStore struct{ s *Store }

func (st userStore) Create(ctx context.Context, u *auth.User) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.users[u.ID]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := st.s.usersByName[u.Username]; ok {
		return store.ErrAlreadyExists
	}
	st.s.users[u.ID] = cloneUser(u)
	st.s.usersByName[u.Username] = u.ID
	return nil
}

func (st userStore) Retrieve(ctx context.Context, id string) (*auth.User, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	u, ok := st.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (st userStore) RetrieveByUsername(ctx context.Context, username string) (*auth.User, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	id, ok := st.s.usersByName[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(st.s.users[id]), nil
}

func matchRole(role auth.Role, roles []auth.Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if role == r {
			return true
		}
	}
	return false
}

func (st userStore) List(ctx context.Context, filter auth.UserFilter, opts store.ListOptions) (store.Page[auth.User], error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	var items []auth.User
	for _, u := range st.s.users {
		if filter.OrganizationID != "" && u.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.PlatformOnly && u.OrganizationID != "" {
			continue
		}
		if !matchRole(u.Role, filter.Roles) {
			continue
		}
		if opts.Disabled != nil && u.Disabled != *opts.Disabled {
			continue
		}
		if !opts.InWindow(u.ID) {
			continue
		}
		items = append(items, *cloneUser(u))
	}
	sortByID(items, func(u auth.User) string { return u.ID }, opts.Sort)
	return store.NewPage(items, opts.Limit, func(u auth.User) string { return u.ID }), nil
}

func (st userStore) Update(ctx context.Context, u *auth.User) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	cur, ok := st.s.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Username != u.Username {
		if _, taken := st.s.usersByName[u.Username]; taken {
			return store.ErrAlreadyExists
		}
		delete(st.s.usersByName, cur.Username)
		st.s.usersByName[u.Username] = u.ID
	}
	st.s.users[u.ID] = cloneUser(u)
	return nil
}

func (st userStore) Delete(ctx context.Context, id string, soft bool) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	u, ok := st.s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if soft {
		u.Disabled = true
		return nil
	}
	delete(st.s.usersByName, u.Username)
	delete(st.s.users, id)
	return nil
}

type orgStore struct{ s *Store }

func (st orgStore) Create(ctx context.Context, org *auth.Organization) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.organizations[org.ID]; ok {
		return store.ErrAlreadyExists
	}
	st.s.organizations[org.ID] = cloneOrg(org)
	return nil
}

func (st orgStore) Retrieve(ctx context.Context, id string) (*auth.Organization, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	org, ok := st.s.organizations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrg(org), nil
}

func (st orgStore) List(ctx context.Context, filter auth.OrganizationFilter, opts store.ListOptions) (store.Page[auth.Organization], error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	allowed := make(map[string]struct{}, len(filter.IDs))
	for _, id := range filter.IDs {
		allowed[id] = struct{}{}
	}
	var items []auth.Organization
	for _, org := range st.s.organizations {
		if len(filter.IDs) > 0 {
			if _, ok := allowed[org.ID]; !ok {
				continue
			}
		}
		if opts.Disabled != nil && org.Disabled != *opts.Disabled {
			continue
		}
		if !opts.InWindow(org.ID) {
			continue
		}
		items = append(items, *cloneOrg(org))
	}
	sortByID(items, func(o auth.Organization) string { return o.ID }, opts.Sort)
	return store.NewPage(items, opts.Limit, func(o auth.Organization) string { return o.ID }), nil
}

func (st orgStore) Update(ctx context.Context, org *auth.Organization) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.organizations[org.ID]; !ok {
		return store.ErrNotFound
	}
	st.s.organizations[org.ID] = cloneOrg(org)
	return nil
}

func (st orgStore) Delete(ctx context.Context, id string, soft bool) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	org, ok := st.s.organizations[id]
	if !ok {
		return store.ErrNotFound
	}
	if soft {
		org.Disabled = true
		return nil
	}
	delete(st.s.organizations, id)
	return nil
}

type tokenStore struct{ s *Store }

func (st tokenStore) Cache(ctx context.Context, username string, tok auth.Token) (*auth.Token, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if cur, ok := st.s.tokens[username]; ok && !st.s.blockedLocked(cur) {
		return nil, nil
	}
	st.s.tokens[username] = tok
	cp := tok
	return &cp, nil
}

func (st tokenStore) Cached(ctx context.Context, username string) (*auth.Token, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	tok, ok := st.s.tokens[username]
	if !ok || st.s.blockedLocked(tok) {
		return nil, nil
	}
	cp := tok
	return &cp, nil
}

func (st tokenStore) Invalidate(ctx context.Context, tok auth.Token) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if tok.AccessToken != "" {
		st.s.blacklist[tok.AccessToken] = struct{}{}
	}
	if tok.RefreshToken != "" {
		st.s.blacklist[tok.RefreshToken] = struct{}{}
	}
	hash := tok.Hash()
	for username, cur := range st.s.tokens {
		if cur.Hash() == hash {
			delete(st.s.tokens, username)
		}
	}
	return nil
}

func (st tokenStore) IsBlocked(ctx context.Context, token string) (bool, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	_, blocked := st.s.blacklist[token]
	return blocked, nil
}

func (st tokenStore) Logout(ctx context.Context, username string, revoke bool) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	tok, ok := st.s.tokens[username]
	if !ok {
		return nil
	}
	delete(st.s.tokens, username)
	if revoke {
		if tok.AccessToken != "" {
			st.s.blacklist[tok.AccessToken] = struct{}{}
		}
		if tok.RefreshToken != "" {
			st.s.blacklist[tok.RefreshToken] = struct{}{}
		}
	}
	return nil
}

func (s *Store) blockedLocked(tok auth.Token) bool {
	if _, ok := s.blacklist[tok.AccessToken]; ok {
		return true
	}
	_, ok := s.blacklist[tok.RefreshToken]
	return ok
}

type convStore struct{ s *Store }

func (st convStore) Create(ctx context.Context, c *chat.Conversation) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.conversations[c.ID]; ok {
		return store.ErrAlreadyExists
	}
	st.s.conversations[c.ID] = cloneConv(c)
	return nil
}

func (st convStore) Retrieve(ctx context.Context, id string) (*chat.Conversation, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	c, ok := st.s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneConv(c), nil
}

func (st convStore) List(ctx context.Context, f chat.Filter, opts store.ListOptions) (store.Page[chat.Conversation], error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	var items []chat.Conversation
	for _, c := range st.s.conversations {
		if f.OrganizationID != "" && c.OrganizationID != f.OrganizationID {
			continue
		}
		if f.Participant != "" && !c.IsParticipant(f.Participant) {
			continue
		}
		if opts.Disabled != nil && c.Disabled != *opts.Disabled {
			continue
		}
		if !opts.InWindow(c.ID) {
			continue
		}
		items = append(items, *cloneConv(c))
	}
	sortByID(items, func(c chat.Conversation) string { return c.ID }, opts.Sort)
	return store.NewPage(items, opts.Limit, func(c chat.Conversation) string { return c.ID }), nil
}

func (st convStore) Update(ctx context.Context, c *chat.Conversation) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.conversations[c.ID]; !ok {
		return store.ErrNotFound
	}
	st.s.conversations[c.ID] = cloneConv(c)
	return nil
}

func (st convStore) Delete(ctx context.Context, id string, soft bool) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	c, ok := st.s.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	if soft {
		c.Disabled = true
		c.UpdatedAt = time.Now().UTC().Unix()
		return nil
	}
	delete(st.s.conversations, id)
	return nil
}

type msgStore struct{ s *Store }

func (st msgStore) Create(ctx context.Context, m *chat.Message) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.messages[m.ID]; ok {
		return store.ErrAlreadyExists
	}
	st.s.messages[m.ID] = cloneMsg(m)
	return nil
}

func (st msgStore) Retrieve(ctx context.Context, id string) (*chat.Message, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	m, ok := st.s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneMsg(m), nil
}

func (st msgStore) List(ctx context.Context, f chat.MessageFilter, opts store.ListOptions) (store.Page[chat.Message], error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	var items []chat.Message
	for _, m := range st.s.messages {
		if f.ConversationID != "" && m.ConversationID != f.ConversationID {
			continue
		}
		if opts.Disabled != nil && m.Deleted != *opts.Disabled {
			continue
		}
		if !opts.InWindow(m.ID) {
			continue
		}
		items = append(items, *cloneMsg(m))
	}
	sortByID(items, func(m chat.Message) string { return m.ID }, opts.Sort)
	return store.NewPage(items, opts.Limit, func(m chat.Message) string { return m.ID }), nil
}

func (st msgStore) Update(ctx context.Context, m *chat.Message) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.messages[m.ID]; !ok {
		return store.ErrNotFound
	}
	st.s.messages[m.ID] = cloneMsg(m)
	return nil
}

func (st msgStore) Delete(ctx context.Context, id string, soft bool) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	m, ok := st.s.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	if soft {
		m.Deleted = true
		m.UpdatedAt = time.Now().UTC().Unix()
		return nil
	}
	delete(st.s.messages, id)
	return nil
}

func sortByID[T any](items []T, id func(T) string, order string) {
	sort.Slice(items, func(i, j int) bool {
		if order == store.SortDesc {
			return id(items[i]) > id(items[j])
		}
		return id(items[i]) < id(items[j])
	})
}
