package regioncache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/regioncache/store"
)

// ==============================
// TTL / lease-refresh tests
// ==============================

func TestRefreshingWritesExtendLease(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, nil)
	defer c.Close(ctx)

	r, _ := c.Region(ctx, "lease", WithTimeout(150*time.Millisecond))

	if err := r.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	// second write re-arms the lease to the full duration
	if err := r.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(100 * time.Millisecond) // past the original deadline

	if v, err := r.Get(ctx, "k"); err != nil || v != "v2" {
		t.Fatalf("region expired despite refreshing writes: %v %v", v, err)
	}
}

func TestNonRefreshingRegionExpires(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestCache(t, nil)
	defer c.Close(ctx)

	r, _ := c.Region(ctx, "fixed", WithTimeout(100*time.Millisecond), WithRefreshOnWrite(false))
	if err := r.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	// this write lands on a live hash and must not re-arm the lease
	if err := r.Set(ctx, "k2", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(70 * time.Millisecond) // past the creation deadline

	if _, err := r.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("region should have expired: %v", err)
	}
	if _, err := mem.TTL(ctx, r.Name()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("TTL should report no such key after expiry")
	}
}

func TestExpiredNonRefreshingRegionRearms(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestCache(t, nil)
	defer c.Close(ctx)

	r, _ := c.Region(ctx, "rearm", WithTimeout(60*time.Millisecond), WithRefreshOnWrite(false))
	_ = r.Set(ctx, "k", "v")
	time.Sleep(90 * time.Millisecond) // hash expires away entirely

	// a write onto the empty hash re-arms the lease instead of
	// recreating the key without one
	if err := r.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ttl, err := mem.TTL(ctx, r.Name())
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl == store.NoExpiry || ttl <= 0 {
		t.Fatalf("recreated hash has no lease: %v", ttl)
	}
}

func TestResetTimeout(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, nil)
	defer c.Close(ctx)

	r, _ := c.Region(ctx, "manual", WithTimeout(120*time.Millisecond), WithRefreshOnWrite(false))
	_ = r.Set(ctx, "k", "v")

	time.Sleep(80 * time.Millisecond)
	if err := r.ResetTimeout(ctx); err != nil {
		t.Fatalf("ResetTimeout: %v", err)
	}
	time.Sleep(80 * time.Millisecond) // past the original deadline

	if _, err := r.Get(ctx, "k"); err != nil {
		t.Fatalf("lease not re-armed by ResetTimeout: %v", err)
	}
}
