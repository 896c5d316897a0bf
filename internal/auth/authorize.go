package auth

import (
	"context"
	"errors"
	"strings"

	"parley.chat/internal/store"
)

// Grant is the context accumulated by the authorization pipeline for one
// request: the verified token, its claims, the resolved principal and,
// after scope checks, the addressed organization and target user.
type Grant struct {
	Token        string
	Claims       *Claims
	Principal    *User
	Organization *Organization
	Target       *User
}

// Authorizer runs the per-request authorization pipeline. The stages are
// ordered so that each failure mode maps to exactly one rejection:
// signature, expiry, revocation, principal resolution, active check, then
// scope and permission guards. Guards only read state and enrich the grant.
type Authorizer struct {
	codec *Codec
	store Store
}

func NewAuthorizer(codec *Codec, st Store) *Authorizer {
	return &Authorizer{codec: codec, store: st}
}

// Authenticate verifies a bearer token and resolves its principal.
func (a *Authorizer) Authenticate(ctx context.Context, token string) (*Grant, error) {
	if strings.TrimSpace(token) == "" {
		return nil, Unauthorized(MsgCredentials)
	}
	claims, err := a.codec.Verify(token)
	if err != nil {
		return nil, Unauthorized(MsgCredentials)
	}
	if a.codec.IsExpired(claims) {
		return nil, Unauthorized(MsgTokenExpired)
	}
	blocked, err := a.store.Tokens().IsBlocked(ctx, token)
	if err != nil {
		return nil, err
	}
	// A token minted for a disabled account is rejected even before the
	// principal lookup; the claim is part of the signed payload.
	if blocked || claims.Disabled {
		return nil, Unauthorized(MsgCredentials)
	}
	username := strings.TrimSpace(claims.Subject)
	if username == "" {
		return nil, Unauthorized(MsgCredentials)
	}
	principal, err := a.store.Users().RetrieveByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Unauthorized(MsgCredentials)
	}
	if err != nil {
		return nil, err
	}
	if principal.Disabled {
		return nil, BadRequest(MsgInactiveUser)
	}
	return &Grant{Token: token, Claims: claims, Principal: principal}, nil
}

// PlatformScope requires a platform-tier principal.
func (a *Authorizer) PlatformScope(g *Grant) error {
	if !g.Principal.Role.PlatformTier() {
		return Forbidden("platform scope required")
	}
	return nil
}

// OrganizationScope resolves the path-addressed organization and requires
// the principal to belong to it. Platform-tier principals may address any
// organization. The organization is resolved even when disabled; handlers
// decide whether a disabled organization blocks the operation.
func (a *Authorizer) OrganizationScope(ctx context.Context, g *Grant, orgID string) error {
	org, err := a.store.Organizations().Retrieve(ctx, orgID)
	if errors.Is(err, store.ErrNotFound) {
		return NotFound("organization not found")
	}
	if err != nil {
		return err
	}
	if !g.Principal.Role.PlatformTier() && g.Principal.OrganizationID != org.ID {
		return Forbidden("not a member of this organization")
	}
	g.Organization = org
	return nil
}

// UserManagingScope resolves the target user and enforces the escalation
// limits: no principal may manage a target of higher authority, org-tier
// principals may manage only members of their own organization, and
// self-only roles may manage only themselves.
func (a *Authorizer) UserManagingScope(ctx context.Context, g *Grant, targetID string) error {
	target, err := a.store.Users().Retrieve(ctx, targetID)
	if errors.Is(err, store.ErrNotFound) {
		return NotFound("user not found")
	}
	if err != nil {
		return err
	}
	if AuthorityLevel(target.Role) > AuthorityLevel(g.Principal.Role) {
		return Forbidden("cannot manage a user of higher authority")
	}
	if !g.Principal.Role.PlatformTier() {
		if g.Principal.Role.SelfOnly() && target.ID != g.Principal.ID {
			return Forbidden("may only manage own account")
		}
		if target.OrganizationID == "" || target.OrganizationID != g.Principal.OrganizationID {
			return Forbidden("target user is outside your organization")
		}
	}
	g.Target = target
	return nil
}

// OrgUserManagingScope composes organization and user-managing scopes for
// routes that address a user under an organization. The target must belong
// to the addressed organization.
func (a *Authorizer) OrgUserManagingScope(ctx context.Context, g *Grant, orgID, targetID string) error {
	if err := a.OrganizationScope(ctx, g, orgID); err != nil {
		return err
	}
	if err := a.UserManagingScope(ctx, g, targetID); err != nil {
		return err
	}
	if g.Target.OrganizationID != g.Organization.ID {
		return NotFound("user not found")
	}
	return nil
}

// RequirePermissions is the final pipeline stage: the principal's role must
// satisfy every required permission (or carry manage_all_resources).
func (a *Authorizer) RequirePermissions(g *Grant, required ...Permission) error {
	if !IsGranted(g.Principal.Role, required...) {
		return Forbidden("permission denied")
	}
	return nil
}
