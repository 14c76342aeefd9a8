package session

import (
	"context"
	"testing"
	"time"
)

func TestRevokeSessionExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRevocationStore(rdb, "og", time.Hour)
	ctx := context.Background()
	sess := &Session{UserID: "u1", SessionID: "s1", IssuedAt: time.Now()}

	if err := store.Revoke(ctx, "s1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := store.IsRevoked(ctx, sess)
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v err=%v", revoked, err)
	}

	mr.FastForward(2 * time.Minute)

	revoked, err = store.IsRevoked(ctx, sess)
	if err != nil || revoked {
		t.Fatalf("expected revocation to lapse with the token, got %v err=%v", revoked, err)
	}
}

func TestRevokeAllForUserWatermark(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRevocationStore(rdb, "og", time.Hour)
	ctx := context.Background()

	signOut := time.Now().Truncate(time.Second)
	if err := store.RevokeAllForUser(ctx, "u1", signOut); err != nil {
		t.Fatalf("revoke all: %v", err)
	}

	old := &Session{UserID: "u1", SessionID: "s-old", IssuedAt: signOut.Add(-time.Minute)}
	fresh := &Session{UserID: "u1", SessionID: "s-new", IssuedAt: signOut.Add(time.Minute)}
	other := &Session{UserID: "u2", SessionID: "s-other", IssuedAt: signOut.Add(-time.Minute)}

	if revoked, _ := store.IsRevoked(ctx, old); !revoked {
		t.Fatal("token issued before sign-out should be revoked")
	}
	if revoked, _ := store.IsRevoked(ctx, fresh); revoked {
		t.Fatal("token issued after sign-out should stay valid")
	}
	if revoked, _ := store.IsRevoked(ctx, other); revoked {
		t.Fatal("other users must be unaffected")
	}
}

func TestCorruptWatermarkIsIgnored(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRevocationStore(rdb, "og", time.Hour)

	if err := mr.Set("og:ru:u1", "not-a-number"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	revoked, err := store.IsRevoked(context.Background(), &Session{UserID: "u1", IssuedAt: time.Now()})
	if err != nil || revoked {
		t.Fatalf("expected corrupt watermark to be ignored, got %v err=%v", revoked, err)
	}
}

func TestIsRevokedNilSession(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRevocationStore(rdb, "", 0)

	if revoked, err := store.IsRevoked(context.Background(), nil); revoked || err != nil {
		t.Fatalf("expected nil session to be not revoked, got %v err=%v", revoked, err)
	}
	if _, err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestRevokeWithoutExpiryUsesMaxTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRevocationStore(rdb, "og", time.Hour)

	if err := store.Revoke(context.Background(), "s1", time.Time{}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ttl := mr.TTL("og:rs:s1"); ttl != time.Hour {
		t.Fatalf("expected max TTL, got %s", ttl)
	}
}
