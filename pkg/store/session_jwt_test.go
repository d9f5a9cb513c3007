package store

import (
	"strings"
	"testing"
	"time"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func TestJWTSessionStoreRoundTrip(t *testing.T) {
	s, err := NewJWTSessionStore(testJWTSecret, time.Hour, NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := s.NewSession("user_255700000001")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	id, ok, err := s.GetIdentityIDByToken(token)
	if err != nil || !ok {
		t.Fatalf("get identity: %v, ok=%v", err, ok)
	}
	if id != "user_255700000001" {
		t.Fatalf("identity = %q", id)
	}
}

func TestJWTSessionStoreRejectsShortSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("short", time.Hour, nil); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestJWTSessionStoreRejectsTamperedToken(t *testing.T) {
	s, err := NewJWTSessionStore(testJWTSecret, time.Hour, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := s.NewSession("user_255700000001")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, ok, _ := s.GetIdentityIDByToken(tampered); ok {
		t.Fatal("tampered token must not validate")
	}
}

func TestJWTSessionStoreDeleteRevokesUntilExpiry(t *testing.T) {
	s, err := NewJWTSessionStore(testJWTSecret, time.Hour, NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := s.NewSession("user_255700000001")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, _ := s.GetIdentityIDByToken(token); ok {
		t.Fatal("deleted session must not validate")
	}
}

func TestJWTSessionStoreUserRevocationCutoff(t *testing.T) {
	s, err := NewJWTSessionStore(testJWTSecret, time.Hour, NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := s.NewSession("user_255700000001")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.RevokeUserSessions("user_255700000001", time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("revoke user sessions: %v", err)
	}
	if _, ok, _ := s.GetIdentityIDByToken(token); ok {
		t.Fatal("token issued before cutoff must not validate")
	}
	// Sessions for other identities are untouched.
	other, err := s.NewSession("user_255700000002")
	if err != nil {
		t.Fatalf("new session other: %v", err)
	}
	if _, ok, err := s.GetIdentityIDByToken(other); err != nil || !ok {
		t.Fatalf("unrelated session must survive: %v, ok=%v", err, ok)
	}
}
