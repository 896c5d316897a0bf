package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"parley.chat/internal/auth"
	"parley.chat/internal/store"
)

func TestSeededAdmin(t *testing.T) {
	s := New()
	admin, err := s.Users().RetrieveByUsername(context.Background(), SeedAdminUsername)
	if err != nil {
		t.Fatalf("seeded admin missing: %v", err)
	}
	if admin.ID != SeedAdminID || admin.Role != auth.RoleSuperAdmin || admin.Disabled {
		t.Errorf("seeded admin = %+v", admin)
	}
	if !auth.VerifyPassword(admin.HashedPassword, "pass1234") {
		t.Errorf("seeded admin password hash does not verify")
	}
}

func TestUserCRUD(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := &auth.User{ID: "u1", Username: "alice", OrganizationID: "org1", Role: auth.RoleOrgEditor}

	if err := s.Users().Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Users().Create(ctx, &auth.User{ID: "u2", Username: "alice"}); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate username: err = %v", err)
	}

	got, err := s.Users().Retrieve(ctx, "u1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	// Mutating the returned copy must not leak into the store.
	got.Role = auth.RolePrisoner
	again, _ := s.Users().Retrieve(ctx, "u1")
	if again.Role != auth.RoleOrgEditor {
		t.Errorf("store aliased its records")
	}

	got.Role = auth.RoleOrgAdmin
	if err := s.Users().Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	again, _ = s.Users().Retrieve(ctx, "u1")
	if again.Role != auth.RoleOrgAdmin {
		t.Errorf("update lost: %+v", again)
	}

	if err := s.Users().Delete(ctx, "u1", true); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	again, err = s.Users().Retrieve(ctx, "u1")
	if err != nil || !again.Disabled {
		t.Errorf("soft delete should disable, got %+v, %v", again, err)
	}

	if err := s.Users().Delete(ctx, "u1", false); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if _, err := s.Users().Retrieve(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("hard delete: err = %v", err)
	}
	if _, err := s.Users().RetrieveByUsername(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("username index survived hard delete")
	}
}

func TestUserListPagination(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("u%02d", i)
		err := s.Users().Create(ctx, &auth.User{
			ID: id, Username: "user" + id, OrganizationID: "org1", Role: auth.RoleOrgViewer,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	page, err := s.Users().List(ctx, auth.UserFilter{OrganizationID: "org1"},
		store.ListOptions{Limit: 2}.Normalize(20, 100))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Object != "list" || len(page.Data) != 2 || !page.HasMore {
		t.Fatalf("first page = %+v", page)
	}
	if page.FirstID != "u00" || page.LastID != "u01" {
		t.Errorf("cursor ids = %s..%s", page.FirstID, page.LastID)
	}

	next, err := s.Users().List(ctx, auth.UserFilter{OrganizationID: "org1"},
		store.ListOptions{Limit: 10, Start: page.LastID}.Normalize(20, 100))
	if err != nil {
		t.Fatal(err)
	}
	// Start is inclusive; the window resumes at the previous LastID.
	if next.FirstID != "u01" || next.LastID != "u04" || next.HasMore {
		t.Errorf("second page = %+v", next)
	}

	desc, err := s.Users().List(ctx, auth.UserFilter{OrganizationID: "org1"},
		store.ListOptions{Limit: 3, Sort: store.SortDesc}.Normalize(20, 100))
	if err != nil {
		t.Fatal(err)
	}
	if desc.FirstID != "u04" || desc.LastID != "u02" || !desc.HasMore {
		t.Errorf("descending page = %+v", desc)
	}
}

func TestTokenCacheSingleActive(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := auth.Token{AccessToken: "a1", RefreshToken: "r1", TokenType: "bearer"}
	second := auth.Token{AccessToken: "a2", RefreshToken: "r2", TokenType: "bearer"}

	stored, err := s.Tokens().Cache(ctx, "alice", first)
	if err != nil || stored == nil {
		t.Fatalf("first cache: %v, %v", stored, err)
	}
	// Second cache loses while the first entry is alive.
	stored, err = s.Tokens().Cache(ctx, "alice", second)
	if err != nil {
		t.Fatal(err)
	}
	if stored != nil {
		t.Errorf("second cache should return nil, got %+v", stored)
	}
	cur, _ := s.Tokens().Cached(ctx, "alice")
	if cur == nil || cur.AccessToken != "a1" {
		t.Errorf("cached = %+v, want first pair", cur)
	}

	// Blacklisting either string hides the entry and frees the slot.
	if err := s.Tokens().Invalidate(ctx, auth.Token{RefreshToken: "r1"}); err != nil {
		t.Fatal(err)
	}
	if cur, _ := s.Tokens().Cached(ctx, "alice"); cur != nil {
		t.Errorf("blacklisted entry still visible: %+v", cur)
	}
	stored, err = s.Tokens().Cache(ctx, "alice", second)
	if err != nil || stored == nil {
		t.Fatalf("cache after revocation: %v, %v", stored, err)
	}
}

func TestInvalidateDropsMatchingEntryOnly(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := auth.Token{AccessToken: "aa", RefreshToken: "ar"}
	bob := auth.Token{AccessToken: "ba", RefreshToken: "br"}
	if _, err := s.Tokens().Cache(ctx, "alice", alice); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Tokens().Cache(ctx, "bob", bob); err != nil {
		t.Fatal(err)
	}

	if err := s.Tokens().Invalidate(ctx, alice); err != nil {
		t.Fatal(err)
	}
	for _, str := range []string{"aa", "ar"} {
		blocked, _ := s.Tokens().IsBlocked(ctx, str)
		if !blocked {
			t.Errorf("%s not blacklisted", str)
		}
	}
	if blocked, _ := s.Tokens().IsBlocked(ctx, "ba"); blocked {
		t.Errorf("unrelated token blacklisted")
	}
	if cur, _ := s.Tokens().Cached(ctx, "bob"); cur == nil {
		t.Errorf("unrelated cache entry dropped")
	}

	// Idempotent.
	if err := s.Tokens().Invalidate(ctx, alice); err != nil {
		t.Errorf("second invalidate: %v", err)
	}
}

func TestLogout(t *testing.T) {
	s := New()
	ctx := context.Background()
	tok := auth.Token{AccessToken: "a1", RefreshToken: "r1"}
	if _, err := s.Tokens().Cache(ctx, "alice", tok); err != nil {
		t.Fatal(err)
	}

	if err := s.Tokens().Logout(ctx, "alice", true); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if cur, _ := s.Tokens().Cached(ctx, "alice"); cur != nil {
		t.Errorf("entry survived logout")
	}
	blocked, _ := s.Tokens().IsBlocked(ctx, "r1")
	if !blocked {
		t.Errorf("refresh string not revoked")
	}

	// Logout without a session is a no-op.
	if err := s.Tokens().Logout(ctx, "nobody", true); err != nil {
		t.Errorf("logout of absent session: %v", err)
	}
}

// TestConcurrentCacheAndLogout races logins against revoking logouts for
// one username. Run with -race. Whatever interleaving happens, the store
// must settle on a whole pair: either an active non-blacklisted token or
// no session at all.
func TestConcurrentCacheAndLogout(t *testing.T) {
	s := New()
	ctx := context.Background()

	const attempts = 50
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		tok := auth.Token{
			AccessToken:  fmt.Sprintf("a%02d", i),
			RefreshToken: fmt.Sprintf("r%02d", i),
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.Tokens().Cache(ctx, "alice", tok); err != nil {
				t.Errorf("Cache: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := s.Tokens().Logout(ctx, "alice", true); err != nil {
				t.Errorf("Logout: %v", err)
			}
		}()
	}
	wg.Wait()

	// Inspect the raw state: a cache entry must never be half-revoked.
	s.mu.RLock()
	if entry, ok := s.tokens["alice"]; ok {
		_, accessBlocked := s.blacklist[entry.AccessToken]
		_, refreshBlocked := s.blacklist[entry.RefreshToken]
		if accessBlocked != refreshBlocked {
			t.Errorf("cached token half-blacklisted: %+v", entry)
		}
	}
	s.mu.RUnlock()

	// A final revoking logout must leave nothing behind.
	if err := s.Tokens().Logout(ctx, "alice", true); err != nil {
		t.Fatalf("final logout: %v", err)
	}
	if cur, _ := s.Tokens().Cached(ctx, "alice"); cur != nil {
		t.Errorf("session survived final logout: %+v", cur)
	}
}
