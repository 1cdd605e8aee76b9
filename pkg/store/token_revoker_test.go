package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryTokenRevokerExpires(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("jti-1", 20*time.Millisecond); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := r.IsRevoked("jti-1"); !ok {
		t.Fatalf("expected token to be revoked")
	}
	time.Sleep(30 * time.Millisecond)
	if ok, _ := r.IsRevoked("jti-1"); ok {
		t.Fatalf("expected revocation to lapse after ttl")
	}
	if err := r.Revoke("jti-2", 0); err != nil {
		t.Fatalf("revoke with zero ttl: %v", err)
	}
	if ok, _ := r.IsRevoked("jti-2"); ok {
		t.Fatalf("expected zero ttl to be a no-op")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedisTokenRevoker(mr.Addr(), "")
	defer r.Close()

	if err := r.Revoke("jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err := r.IsRevoked("jti-1")
	if err != nil || !ok {
		t.Fatalf("expected revoked, ok=%v err=%v", ok, err)
	}
	if !mr.Exists(revocationPrefix + "jti-1") {
		t.Fatalf("expected prefixed key in redis")
	}
	mr.FastForward(2 * time.Minute)
	if ok, _ := r.IsRevoked("jti-1"); ok {
		t.Fatalf("expected redis ttl to expire revocation")
	}
}
