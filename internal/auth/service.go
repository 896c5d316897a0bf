package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"parley.chat/internal/ids"
	"parley.chat/internal/store"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Service implements the token lifecycle: login, guest registration,
// logout and refresh rotation.
type Service struct {
	store        Store
	codec        *Codec
	accessTTL    time.Duration
	refreshTTL   time.Duration
	clientID     string
	clientSecret string
}

type ServiceOption func(*Service)

func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.accessTTL = ttl }
}

func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.refreshTTL = ttl }
}

// WithClientCredentials enables client validation on refresh. When unset,
// client_id/client_secret in refresh requests are ignored.
func WithClientCredentials(id, secret string) ServiceOption {
	return func(s *Service) {
		s.clientID = id
		s.clientSecret = secret
	}
}

func NewService(st Store, codec *Codec, opts ...ServiceOption) *Service {
	s := &Service{
		store:      st,
		codec:      codec,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) mintPair(u *User) (Token, error) {
	access, expires, err := s.codec.Issue(u, GrantAccessToken, s.accessTTL)
	if err != nil {
		return Token{}, err
	}
	refresh, _, err := s.codec.Issue(u, GrantRefreshToken, s.refreshTTL)
	if err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    expires.Unix(),
	}, nil
}

// Login authenticates a username/password pair and returns the active
// token. Login is idempotent: while a cached token is still valid, repeated
// logins return that token instead of minting a new pair. A cached but
// expired token is revoked and replaced.
func (s *Service) Login(ctx context.Context, username, password string) (*Token, *User, error) {
	user, err := s.store.Users().RetrieveByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, Unauthorized(MsgBadLogin)
	}
	if err != nil {
		return nil, nil, err
	}
	if !VerifyPassword(user.HashedPassword, password) {
		return nil, nil, Unauthorized(MsgBadLogin)
	}
	if user.Disabled {
		return nil, nil, BadRequest(MsgInactiveUser)
	}

	cached, err := s.store.Tokens().Cached(ctx, user.Username)
	if err != nil {
		return nil, nil, err
	}
	if cached != nil {
		if claims, err := s.codec.Verify(cached.AccessToken); err == nil && !s.codec.IsExpired(claims) {
			return cached, user, nil
		}
		// Stale entry: revoke the pair so neither string can be replayed.
		if err := s.store.Tokens().Logout(ctx, user.Username, true); err != nil {
			return nil, nil, err
		}
	}

	tok, err := s.mintPair(user)
	if err != nil {
		return nil, nil, err
	}
	stored, err := s.store.Tokens().Cache(ctx, user.Username, tok)
	if err != nil {
		return nil, nil, err
	}
	if stored == nil {
		// A concurrent login won the cache slot; hand out the survivor.
		if cur, err := s.store.Tokens().Cached(ctx, user.Username); err == nil && cur != nil {
			return cur, user, nil
		}
		return &tok, user, nil
	}
	return stored, user, nil
}

// GuestRegistration is the self-service signup payload.
type GuestRegistration struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Password string `json:"password"`
}

// Register creates an org_client user under the organization and logs the
// new account in.
func (s *Service) Register(ctx context.Context, orgID string, reg GuestRegistration) (*Token, *User, error) {
	if err := ValidateUsername(reg.Username); err != nil {
		return nil, nil, BadRequest(err.Error())
	}
	if err := ValidatePassword(reg.Password); err != nil {
		return nil, nil, BadRequest(err.Error())
	}
	hash, err := HashPassword(reg.Password)
	if err != nil {
		return nil, nil, err
	}
	user := &User{
		ID:             ids.New(),
		Username:       strings.TrimSpace(reg.Username),
		Email:          strings.TrimSpace(reg.Email),
		FullName:       strings.TrimSpace(reg.FullName),
		OrganizationID: orgID,
		Role:           RoleOrgClient,
		HashedPassword: hash,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, nil, BadRequest("username already taken")
		}
		return nil, nil, err
	}
	tok, err := s.mintPair(user)
	if err != nil {
		return nil, nil, err
	}
	if stored, err := s.store.Tokens().Cache(ctx, user.Username, tok); err != nil {
		return nil, nil, err
	} else if stored != nil {
		tok = *stored
	}
	return &tok, user, nil
}

// Logout revokes the principal's active token. Both strings of the cached
// pair land on the blacklist, so neither login nor refresh can resurrect it.
func (s *Service) Logout(ctx context.Context, g *Grant) error {
	return s.store.Tokens().Logout(ctx, g.Principal.Username, true)
}

// RefreshRequest is the refresh-token exchange payload.
type RefreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Refresh exchanges a valid refresh token for a fresh pair and rotates the
// cache: the old pair is invalidated so the presented refresh token can
// never be replayed.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (*Token, *User, error) {
	if req.GrantType != GrantRefreshToken {
		return nil, nil, BadRequest("invalid grant_type")
	}
	if s.clientID != "" || s.clientSecret != "" {
		if req.ClientID != s.clientID || req.ClientSecret != s.clientSecret {
			return nil, nil, Unauthorized("invalid client credentials")
		}
	}

	claims, err := s.codec.Verify(req.RefreshToken)
	if err != nil {
		return nil, nil, Unauthorized(MsgCredentials)
	}
	if claims.GrantType != GrantRefreshToken {
		return nil, nil, Unauthorized(MsgCredentials)
	}
	if s.codec.IsExpired(claims) {
		return nil, nil, Unauthorized(MsgTokenExpired)
	}
	blocked, err := s.store.Tokens().IsBlocked(ctx, req.RefreshToken)
	if err != nil {
		return nil, nil, err
	}
	if blocked || claims.Disabled {
		return nil, nil, Unauthorized(MsgCredentials)
	}
	user, err := s.store.Users().RetrieveByUsername(ctx, strings.TrimSpace(claims.Subject))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, Unauthorized(MsgCredentials)
	}
	if err != nil {
		return nil, nil, err
	}
	if user.Disabled {
		return nil, nil, BadRequest(MsgInactiveUser)
	}

	old, err := s.store.Tokens().Cached(ctx, user.Username)
	if err != nil {
		return nil, nil, err
	}
	if old != nil {
		if err := s.store.Tokens().Invalidate(ctx, *old); err != nil {
			return nil, nil, err
		}
	}
	// Burn the presented string regardless of what the cache held; the
	// cached pair and the presented token can diverge.
	if err := s.store.Tokens().Invalidate(ctx, Token{RefreshToken: req.RefreshToken}); err != nil {
		return nil, nil, err
	}

	tok, err := s.mintPair(user)
	if err != nil {
		return nil, nil, err
	}
	if stored, err := s.store.Tokens().Cache(ctx, user.Username, tok); err != nil {
		return nil, nil, err
	} else if stored != nil {
		tok = *stored
	}
	return &tok, user, nil
}
