package identity

import (
	"context"
	"testing"
	"time"
)

func TestMemorySessionRepo_CreateGet(t *testing.T) {
	repo := NewMemorySessionRepo()
	ctx := context.Background()

	session, err := repo.Create(ctx, "maman", time.Hour)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected non-empty token")
	}
	if session.MemberID != "maman" {
		t.Errorf("MemberID = %q, want maman", session.MemberID)
	}

	got, err := repo.Get(ctx, session.Token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Token != session.Token {
		t.Errorf("Get returned token %q, want %q", got.Token, session.Token)
	}
}

func TestMemorySessionRepo_GetUnknown(t *testing.T) {
	repo := NewMemorySessionRepo()

	_, err := repo.Get(context.Background(), "absent")
	if err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemorySessionRepo_Expiry(t *testing.T) {
	repo := NewMemorySessionRepo()
	ctx := context.Background()

	session, err := repo.Create(ctx, "papa", -time.Minute)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := repo.Get(ctx, session.Token); err != ErrSessionExpired {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}

	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired removed %d sessions, want 1", n)
	}
}

func TestMemorySessionRepo_DeleteByMember(t *testing.T) {
	repo := NewMemorySessionRepo()
	ctx := context.Background()

	s1, _ := repo.Create(ctx, "moi", time.Hour)
	s2, _ := repo.Create(ctx, "moi", time.Hour)
	other, _ := repo.Create(ctx, "papa", time.Hour)

	if err := repo.DeleteByMember(ctx, "moi"); err != nil {
		t.Fatalf("DeleteByMember failed: %v", err)
	}

	if _, err := repo.Get(ctx, s1.Token); err != ErrSessionNotFound {
		t.Errorf("first session should be gone, got %v", err)
	}
	if _, err := repo.Get(ctx, s2.Token); err != ErrSessionNotFound {
		t.Errorf("second session should be gone, got %v", err)
	}
	if _, err := repo.Get(ctx, other.Token); err != nil {
		t.Errorf("other member's session should survive, got %v", err)
	}
}

func TestUserAuth_HashAndVerify(t *testing.T) {
	auth := NewUserAuth(4) // low cost to keep the test fast

	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if err := auth.VerifyPassword(hash, "secret"); err != nil {
		t.Errorf("VerifyPassword rejected correct password: %v", err)
	}
	if err := auth.VerifyPassword(hash, "wrong"); err != ErrInvalidPassword {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
}
