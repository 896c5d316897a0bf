package auth_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"parley.chat/internal/auth"
	"parley.chat/internal/store/memory"
)

type serviceFixture struct {
	*fixture
	svc *auth.Service
	now time.Time
}

func newServiceFixture(t *testing.T, opts ...auth.ServiceOption) *serviceFixture {
	t.Helper()
	sf := &serviceFixture{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := auth.NewCodec("service-secret-0123456789",
		auth.WithCodecClock(func() time.Time { return sf.now }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	st := memory.New()
	sf.fixture = &fixture{store: st, codec: codec, authz: auth.NewAuthorizer(codec, st)}
	sf.svc = auth.NewService(st, codec, opts...)
	return sf
}

func TestLoginIssuesAndCaches(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	tok, user, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Role != auth.RoleSuperAdmin {
		t.Errorf("seeded admin role = %s", user.Role)
	}
	if tok.TokenType != "bearer" || tok.AccessToken == "" || tok.RefreshToken == "" {
		t.Errorf("malformed token: %+v", tok)
	}

	cached, err := f.store.Tokens().Cached(ctx, memory.SeedAdminUsername)
	if err != nil {
		t.Fatal(err)
	}
	if cached == nil || cached.AccessToken != tok.AccessToken {
		t.Errorf("login did not cache the issued token")
	}

	if _, err := f.authz.Authenticate(ctx, tok.AccessToken); err != nil {
		t.Errorf("freshly issued token rejected: %v", err)
	}
}

func TestLoginIsIdempotentWhileTokenValid(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, _, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	f.now = f.now.Add(time.Minute)
	second, _, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if second.AccessToken != first.AccessToken || second.RefreshToken != first.RefreshToken {
		t.Errorf("repeated login minted a new pair")
	}
}

func TestLoginReplacesExpiredCachedToken(t *testing.T) {
	f := newServiceFixture(t, auth.WithAccessTTL(10*time.Minute))
	ctx := context.Background()

	first, _, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	f.now = f.now.Add(11 * time.Minute)
	second, _, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if second.AccessToken == first.AccessToken {
		t.Errorf("expired cached token was returned again")
	}
	// The stale pair is revoked, not just replaced.
	for _, s := range []string{first.AccessToken, first.RefreshToken} {
		blocked, err := f.store.Tokens().IsBlocked(ctx, s)
		if err != nil {
			t.Fatal(err)
		}
		if !blocked {
			t.Errorf("stale token string not blacklisted")
		}
	}
}

func TestLoginRejections(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.Users().Create(ctx, &auth.User{
		ID: "u-dis", Username: "disabled-user", Role: auth.RoleOrgViewer,
		OrganizationID: "org1", Disabled: true, HashedPassword: hash,
	}); err != nil {
		t.Fatal(err)
	}

	_, _, err = f.svc.Login(ctx, "nobody", "whatever")
	wantDenial(t, err, http.StatusUnauthorized, auth.MsgBadLogin)

	_, _, err = f.svc.Login(ctx, memory.SeedAdminUsername, "wrong-password")
	wantDenial(t, err, http.StatusUnauthorized, auth.MsgBadLogin)

	_, _, err = f.svc.Login(ctx, "disabled-user", "hunter22")
	wantDenial(t, err, http.StatusBadRequest, auth.MsgInactiveUser)
}

func TestLogoutRevokesActivePair(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	tok, _, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	g, err := f.authz.Authenticate(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := f.svc.Logout(ctx, g); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	_, err = f.authz.Authenticate(ctx, tok.AccessToken)
	wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)

	_, _, err = f.svc.Refresh(ctx, auth.RefreshRequest{
		GrantType: auth.GrantRefreshToken, RefreshToken: tok.RefreshToken,
	})
	wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)

	// A later login starts a fresh session.
	next, _, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
	if err != nil {
		t.Fatalf("login after logout: %v", err)
	}
	if next.AccessToken == tok.AccessToken {
		t.Errorf("logout did not rotate the pair")
	}
	if _, err := f.authz.Authenticate(ctx, next.AccessToken); err != nil {
		t.Errorf("fresh token rejected: %v", err)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	tok, _, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.now = f.now.Add(time.Minute)

	next, user, err := f.svc.Refresh(ctx, auth.RefreshRequest{
		GrantType: auth.GrantRefreshToken, RefreshToken: tok.RefreshToken,
	})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if user.Username != memory.SeedAdminUsername {
		t.Errorf("refresh resolved wrong user %q", user.Username)
	}
	if next.AccessToken == tok.AccessToken || next.RefreshToken == tok.RefreshToken {
		t.Errorf("refresh did not rotate the pair")
	}

	// The old refresh token can never be replayed.
	_, _, err = f.svc.Refresh(ctx, auth.RefreshRequest{
		GrantType: auth.GrantRefreshToken, RefreshToken: tok.RefreshToken,
	})
	wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)

	// The old access token is dead too, the new one works.
	_, err = f.authz.Authenticate(ctx, tok.AccessToken)
	wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)
	if _, err := f.authz.Authenticate(ctx, next.AccessToken); err != nil {
		t.Errorf("rotated token rejected: %v", err)
	}
}

func TestRefreshBurnsPresentedTokenEvenWhenUncached(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	tok, user, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// A valid refresh token that is not part of the cached pair.
	stray, _, err := f.codec.Issue(user, auth.GrantRefreshToken, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	f.now = f.now.Add(time.Minute)

	next, _, err := f.svc.Refresh(ctx, auth.RefreshRequest{
		GrantType: auth.GrantRefreshToken, RefreshToken: stray,
	})
	if err != nil {
		t.Fatalf("Refresh with uncached token: %v", err)
	}

	// Both the cached pair and the presented string are dead.
	for _, s := range []string{tok.AccessToken, tok.RefreshToken, stray} {
		blocked, err := f.store.Tokens().IsBlocked(ctx, s)
		if err != nil {
			t.Fatal(err)
		}
		if !blocked {
			t.Errorf("token string survived rotation")
		}
	}
	_, _, err = f.svc.Refresh(ctx, auth.RefreshRequest{
		GrantType: auth.GrantRefreshToken, RefreshToken: stray,
	})
	wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)

	if _, err := f.authz.Authenticate(ctx, next.AccessToken); err != nil {
		t.Errorf("rotated token rejected: %v", err)
	}
}

func TestRefreshRejections(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	tok, _, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	t.Run("wrong grant_type", func(t *testing.T) {
		_, _, err := f.svc.Refresh(ctx, auth.RefreshRequest{
			GrantType: "password", RefreshToken: tok.RefreshToken,
		})
		wantDenial(t, err, http.StatusBadRequest, "invalid grant_type")
	})

	t.Run("access token presented as refresh", func(t *testing.T) {
		_, _, err := f.svc.Refresh(ctx, auth.RefreshRequest{
			GrantType: auth.GrantRefreshToken, RefreshToken: tok.AccessToken,
		})
		wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)
	})

	t.Run("garbage refresh token", func(t *testing.T) {
		_, _, err := f.svc.Refresh(ctx, auth.RefreshRequest{
			GrantType: auth.GrantRefreshToken, RefreshToken: "garbage",
		})
		wantDenial(t, err, http.StatusUnauthorized, auth.MsgCredentials)
	})

	t.Run("expired refresh token", func(t *testing.T) {
		f := newServiceFixture(t, auth.WithRefreshTTL(time.Hour))
		tok, _, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
		if err != nil {
			t.Fatal(err)
		}
		f.now = f.now.Add(2 * time.Hour)
		_, _, err = f.svc.Refresh(ctx, auth.RefreshRequest{
			GrantType: auth.GrantRefreshToken, RefreshToken: tok.RefreshToken,
		})
		wantDenial(t, err, http.StatusUnauthorized, auth.MsgTokenExpired)
	})
}

func TestRefreshValidatesClientCredentials(t *testing.T) {
	f := newServiceFixture(t, auth.WithClientCredentials("web-app", "s3cret"))
	ctx := context.Background()

	tok, _, err := f.svc.Login(ctx, memory.SeedAdminUsername, "pass1234")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, _, err = f.svc.Refresh(ctx, auth.RefreshRequest{
		GrantType: auth.GrantRefreshToken, RefreshToken: tok.RefreshToken,
		ClientID: "web-app", ClientSecret: "wrong",
	})
	wantDenial(t, err, http.StatusUnauthorized, "")

	_, _, err = f.svc.Refresh(ctx, auth.RefreshRequest{
		GrantType: auth.GrantRefreshToken, RefreshToken: tok.RefreshToken,
		ClientID: "web-app", ClientSecret: "s3cret",
	})
	if err != nil {
		t.Fatalf("Refresh with valid client credentials: %v", err)
	}
}

func TestRegisterCreatesOrgClient(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	tok, user, err := f.svc.Register(ctx, "org1", auth.GuestRegistration{
		Username: "new_guest", Password: "longenough", Email: "g@example.com",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Role != auth.RoleOrgClient || user.OrganizationID != "org1" {
		t.Errorf("registered user = %+v", user)
	}
	if _, err := f.authz.Authenticate(ctx, tok.AccessToken); err != nil {
		t.Errorf("registration token rejected: %v", err)
	}

	_, _, err = f.svc.Register(ctx, "org1", auth.GuestRegistration{
		Username: "new_guest", Password: "longenough",
	})
	wantDenial(t, err, http.StatusBadRequest, "username already taken")

	_, _, err = f.svc.Register(ctx, "org1", auth.GuestRegistration{
		Username: "ab", Password: "longenough",
	})
	wantDenial(t, err, http.StatusBadRequest, "")

	_, _, err = f.svc.Register(ctx, "org1", auth.GuestRegistration{
		Username: "valid_name", Password: "short",
	})
	wantDenial(t, err, http.StatusBadRequest, "")
}
