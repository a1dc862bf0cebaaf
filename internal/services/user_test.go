package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cat-map-backend/internal/cache"
	"cat-map-backend/internal/models"
)

func TestUserService_SignInAndOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.users.SignIn(ctx, "alice-code")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.User.ID != "alice" || session.User.Role != models.RoleUser || session.Token == "" {
		t.Fatalf("unexpected session: %+v", session)
	}

	claims, err := f.users.ValidateJWT(ctx, session.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "alice" || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if err := f.users.SignOut(ctx, claims); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := f.users.ValidateJWT(ctx, session.Token); err == nil {
		t.Fatalf("revoked token should be rejected")
	}

	again, err := f.users.SignIn(ctx, "alice-code")
	if err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	if _, err := f.users.ValidateJWT(ctx, again.Token); err != nil {
		t.Fatalf("new session should be valid: %v", err)
	}
}

func TestUserService_SignInErrors(t *testing.T) {
	f := newFixture(t)

	if _, err := f.users.SignIn(context.Background(), ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := f.users.SignIn(context.Background(), "bogus"); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
	if _, err := f.users.ValidateJWT(context.Background(), "not-a-token"); err == nil {
		t.Fatalf("garbage token should be rejected")
	}
}

func TestUserService_AdminBootstrap(t *testing.T) {
	f := newFixture(t)

	session, err := f.users.SignIn(context.Background(), "admin-code")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !session.User.IsAdmin() {
		t.Fatalf("configured email should be granted admin, got role %q", session.User.Role)
	}
}

func TestUserService_NicknameTakenLeavesEverythingUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	f.user(t, "bob", "Bob")
	photo := f.upload(t, alice, 37.5, 126.9)

	_, err := f.users.UpdateNickname(ctx, alice, "Bob")
	if !errors.Is(err, ErrNicknameTaken) {
		t.Fatalf("expected ErrNicknameTaken, got %v", err)
	}

	stored, _ := f.db.Users().GetByID(ctx, "alice")
	if stored.DisplayName != "Alice" {
		t.Fatalf("user should keep the old name, got %q", stored.DisplayName)
	}
	p, _ := f.db.Photos().GetByID(ctx, photo.ID)
	if p.UserName != "Alice" {
		t.Fatalf("photo author should be unchanged, got %q", p.UserName)
	}
	cached, _ := f.store.Get(ctx, photo.ID)
	if cached.UserName != "Alice" {
		t.Fatalf("cached author should be unchanged, got %q", cached.UserName)
	}
}

func TestUserService_NicknameCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	photo := f.upload(t, alice, 37.5, 126.9)
	comment, _ := f.timeline.AddComment(ctx, photo.ID, alice, "mine")

	if _, err := f.users.UpdateNickname(ctx, alice, "Alice"); !errors.Is(err, ErrValidation) {
		t.Fatalf("unchanged name should be rejected, got %v", err)
	}

	updated, err := f.users.UpdateNickname(ctx, alice, " Catlady ")
	if err != nil {
		t.Fatalf("update nickname: %v", err)
	}
	if updated.DisplayName != "Catlady" {
		t.Fatalf("unexpected name %q", updated.DisplayName)
	}

	p, _ := f.db.Photos().GetByID(ctx, photo.ID)
	c, _ := f.db.Comments().GetByID(ctx, comment.ID)
	cached, _ := f.store.Get(ctx, photo.ID)
	if p.UserName != "Catlady" || c.UserName != "Catlady" || cached.UserName != "Catlady" {
		t.Fatalf("name should be copied onto photos, comments and the cache")
	}
}

func TestUserService_UpdateAvatar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	photo := f.upload(t, alice, 37.5, 126.9)

	updated, err := f.users.UpdateAvatar(ctx, alice, []byte("face"))
	if err != nil {
		t.Fatalf("update avatar: %v", err)
	}
	if updated.AvatarURL == "" {
		t.Fatalf("avatar url should be set")
	}
	cached, _ := f.store.Get(ctx, photo.ID)
	if cached.AvatarURL != updated.AvatarURL {
		t.Fatalf("cached photo should show the new avatar")
	}
	if len(f.objects.Keys()) != 2 {
		t.Fatalf("expected photo and avatar objects, got %v", f.objects.Keys())
	}
}

func TestUserService_GetUnknownUser(t *testing.T) {
	f := newFixture(t)
	if _, err := f.users.GetUser(context.Background(), "ghost"); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
}

// staleNameCheck answers the uniqueness pre-check as if a concurrent rename
// had not landed yet
type staleNameCheck struct {
	UserRepository
}

func (staleNameCheck) DisplayNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	return false, nil
}

func TestUserService_NicknameConflictAtWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	f.user(t, "bob", "Bob")
	photo := f.upload(t, alice, 37.5, 126.9)

	users := NewUserService(
		staleNameCheck{f.db.Users()}, f.db.Cascades(), fakeIdentity{},
		cache.NewMemoryDenylist(), f.media, f.store, f.publisher, "test-secret", nil,
	)

	_, err := users.UpdateNickname(ctx, alice, "Bob")
	if !errors.Is(err, ErrNicknameTaken) {
		t.Fatalf("expected ErrNicknameTaken, got %v", err)
	}

	stored, _ := f.db.Users().GetByID(ctx, "alice")
	p, _ := f.db.Photos().GetByID(ctx, photo.ID)
	cached, _ := f.store.Get(ctx, photo.ID)
	if stored.DisplayName != "Alice" || p.UserName != "Alice" || cached.UserName != "Alice" {
		t.Fatalf("a rejected rename should write nothing: user %q photo %q cache %q",
			stored.DisplayName, p.UserName, cached.UserName)
	}
}

func TestUserService_SignInWithTakenProviderName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "alice", "Alice")

	users := NewUserService(
		f.db.Users(), f.db.Cascades(),
		fakeIdentity{"other-code": {Subject: "alice2", Email: "alice2@example.com", Name: "Alice"}},
		cache.NewMemoryDenylist(), f.media, f.store, f.publisher, "test-secret", nil,
	)

	session, err := users.SignIn(ctx, "other-code")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	name := session.User.DisplayName
	if name == "Alice" || !strings.HasPrefix(name, "Alice_") {
		t.Fatalf("expected a suffixed name, got %q", name)
	}

	again, err := users.SignIn(ctx, "other-code")
	if err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	if again.User.DisplayName != name {
		t.Fatalf("returning user should keep %q, got %q", name, again.User.DisplayName)
	}
}
