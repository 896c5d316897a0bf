package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"parley.chat/internal/auth"
	"parley.chat/internal/store/memory"
)

type fixture struct {
	store *memory.Store
	codec *auth.Codec
	authz *auth.Authorizer
}

func newFixture(t *testing.T, opts ...auth.CodecOption) *fixture {
	t.Helper()
	codec, err := auth.NewCodec("fixture-secret-0123456789", opts...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	st := memory.New()
	return &fixture{store: st, codec: codec, authz: auth.NewAuthorizer(codec, st)}
}

func (f *fixture) addOrg(t *testing.T, id string, disabled bool) *auth.Organization {
	t.Helper()
	org := &auth.Organization{ID: id, Name: id, Disabled: disabled}
	if err := f.store.Organizations().Create(context.Background(), org); err != nil {
		t.Fatalf("create org %s: %v", id, err)
	}
	return org
}

func (f *fixture) addUser(t *testing.T, id, username, orgID string, role auth.Role, disabled bool) *auth.User {
	t.Helper()
	u := &auth.User{
		ID:             id,
		Username:       username,
		OrganizationID: orgID,
		Role:           role,
		Disabled:       disabled,
		HashedPassword: "not-a-real-hash",
	}
	if err := f.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func (f *fixture) tokenFor(t *testing.T, u *auth.User, ttl time.Duration) string {
	t.Helper()
	token, _, err := f.codec.Issue(u, auth.GrantAccessToken, ttl)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func wantDenial(t *testing.T, err error, status int, msg string) {
	t.Helper()
	var d *auth.Denial
	if !errors.As(err, &d) {
		t.Fatalf("err = %v, want a denial", err)
	}
	if d.Status != status {
		t.Errorf("status = %d, want %d (%q)", d.Status, status, d.Message)
	}
	if msg != "" && d.Message != msg {
		t.Errorf("message = %q, want %q", d.Message, msg)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addOrg(t, "org1", false)
	alice := f.addUser(t, "u-alice", "alice", "org1", auth.RoleOrgEditor, false)
	inactive := f.addUser(t, "u-bob", "bob", "org1", auth.RoleOrgViewer, true)

	t.Run("missing token", func(t *testing.T) {
		_, err := f.authz.Authenticate(ctx, "")
		wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := f.authz.Authenticate(ctx, "garbage.token.here")
		wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)
	})

	t.Run("expired token", func(t *testing.T) {
		_, err := f.authz.Authenticate(ctx, f.tokenFor(t, alice, -time.Minute))
		wantDenial(t, err, http.StatusUnauthorized, auth.MsgTokenExpired)
	})

	t.Run("revoked token", func(t *testing.T) {
		token := f.tokenFor(t, alice, time.Hour)
		if err := f.store.Tokens().Invalidate(ctx, auth.Token{AccessToken: token}); err != nil {
			t.Fatal(err)
		}
		_, err := f.authz.Authenticate(ctx, token)
		wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)
	})

	t.Run("disabled claim", func(t *testing.T) {
		snapshot := *alice
		snapshot.Disabled = true
		_, err := f.authz.Authenticate(ctx, f.tokenFor(t, &snapshot, time.Hour))
		wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)
	})

	t.Run("unknown subject", func(t *testing.T) {
		ghost := &auth.User{ID: "u-ghost", Username: "ghost", Role: auth.RoleOrgViewer}
		_, err := f.authz.Authenticate(ctx, f.tokenFor(t, ghost, time.Hour))
		wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)
	})

	t.Run("inactive principal", func(t *testing.T) {
		snapshot := *inactive
		snapshot.Disabled = false // token predates the disable
		_, err := f.authz.Authenticate(ctx, f.tokenFor(t, &snapshot, time.Hour))
		wantDenial(t, err, http.StatusBadRequest, auth.MsgInactiveUser)
	})

	t.Run("success", func(t *testing.T) {
		g, err := f.authz.Authenticate(ctx, f.tokenFor(t, alice, time.Hour))
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if g.Principal.ID != alice.ID {
			t.Errorf("principal = %s, want %s", g.Principal.ID, alice.ID)
		}
	})
}

func TestScopeGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addOrg(t, "org1", false)
	f.addOrg(t, "org2", false)

	orgAdmin := f.addUser(t, "u-oa", "org-admin", "org1", auth.RoleOrgAdmin, false)
	editor := f.addUser(t, "u-ed", "editor", "org1", auth.RoleOrgEditor, false)
	client := f.addUser(t, "u-cl", "client", "org1", auth.RoleOrgClient, false)
	outsider := f.addUser(t, "u-out", "outsider", "org2", auth.RoleOrgViewer, false)
	platform := f.addUser(t, "u-pa", "plat-admin", "", auth.RolePlatformAdmin, false)

	grant := func(u *auth.User) *auth.Grant {
		g, err := f.authz.Authenticate(ctx, f.tokenFor(t, u, time.Hour))
		if err != nil {
			t.Fatalf("authenticate %s: %v", u.Username, err)
		}
		return g
	}

	t.Run("platform scope", func(t *testing.T) {
		if err := f.authz.PlatformScope(grant(platform)); err != nil {
			t.Errorf("platform admin rejected: %v", err)
		}
		wantDenial(t, f.authz.PlatformScope(grant(orgAdmin)), http.StatusForbidden, "")
	})

	t.Run("organization membership", func(t *testing.T) {
		g := grant(orgAdmin)
		if err := f.authz.OrganizationScope(ctx, g, "org1"); err != nil {
			t.Errorf("member rejected: %v", err)
		}
		if g.Organization == nil || g.Organization.ID != "org1" {
			t.Errorf("grant not enriched with organization")
		}
		wantDenial(t, f.authz.OrganizationScope(ctx, grant(orgAdmin), "org2"), http.StatusForbidden, "")
		wantDenial(t, f.authz.OrganizationScope(ctx, grant(orgAdmin), "org-missing"), http.StatusNotFound, "")
	})

	t.Run("platform tier crosses organizations", func(t *testing.T) {
		g := grant(platform)
		if err := f.authz.OrganizationScope(ctx, g, "org2"); err != nil {
			t.Errorf("platform admin rejected on org2: %v", err)
		}
	})

	t.Run("authority ceiling", func(t *testing.T) {
		wantDenial(t, f.authz.UserManagingScope(ctx, grant(editor), orgAdmin.ID), http.StatusForbidden, "")
		if err := f.authz.UserManagingScope(ctx, grant(orgAdmin), editor.ID); err != nil {
			t.Errorf("org admin over editor rejected: %v", err)
		}
	})

	t.Run("self-only roles", func(t *testing.T) {
		if err := f.authz.UserManagingScope(ctx, grant(client), client.ID); err != nil {
			t.Errorf("client on self rejected: %v", err)
		}
		// editor is of higher authority, so that denial wins; a peer
		// client target exercises the self-only rule itself.
		peer := f.addUser(t, "u-cl2", "client2", "org1", auth.RoleOrgClient, false)
		wantDenial(t, f.authz.UserManagingScope(ctx, grant(client), peer.ID), http.StatusForbidden, "")
	})

	t.Run("cross-organization target", func(t *testing.T) {
		wantDenial(t, f.authz.UserManagingScope(ctx, grant(orgAdmin), outsider.ID), http.StatusForbidden, "")
		if err := f.authz.UserManagingScope(ctx, grant(platform), outsider.ID); err != nil {
			t.Errorf("platform admin over org2 viewer rejected: %v", err)
		}
	})

	t.Run("composed scope hides cross-org targets", func(t *testing.T) {
		g := grant(platform)
		wantDenial(t, f.authz.OrgUserManagingScope(ctx, g, "org1", outsider.ID), http.StatusNotFound, "")
		g = grant(platform)
		if err := f.authz.OrgUserManagingScope(ctx, g, "org2", outsider.ID); err != nil {
			t.Errorf("matching org rejected: %v", err)
		}
		if g.Target == nil || g.Target.ID != outsider.ID {
			t.Errorf("grant not enriched with target")
		}
	})

	t.Run("permissions", func(t *testing.T) {
		if err := f.authz.RequirePermissions(grant(orgAdmin), auth.PermCreateOrgUser); err != nil {
			t.Errorf("org admin denied create_org_user: %v", err)
		}
		wantDenial(t, f.authz.RequirePermissions(grant(editor), auth.PermCreateOrgUser), http.StatusForbidden, "")
	})
}
