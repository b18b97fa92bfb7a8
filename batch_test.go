package regioncache

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/regioncache/store"
)

// ==============================
// Transactional batch tests
// ==============================

func TestBatchCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestCache(t, nil)
	defer c.Close(ctx)
	r, _ := c.Region(ctx, "batch")

	r.Begin()
	if err := r.Set(ctx, "k1", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := r.Set(ctx, "k2", "v2"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// nothing is visible remotely until the batch commits
	if _, err := mem.HGet(ctx, r.Name(), "k1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("k1 visible before commit")
	}
	if n := r.BatchLen(); n != 2 {
		t.Fatalf("BatchLen = %d", n)
	}

	if err := r.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	for _, k := range []string{"k1", "k2"} {
		if _, err := mem.HGet(ctx, r.Name(), k); err != nil {
			t.Fatalf("%s missing after commit: %v", k, err)
		}
	}
}

func TestBatchDiscardOnError(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestCache(t, nil)
	defer c.Close(ctx)
	r, _ := c.Region(ctx, "aborted")

	boom := errors.New("boom")
	err := r.InBatch(ctx, func() error {
		_ = r.Set(ctx, "k1", "v1")
		_ = r.Set(ctx, "k2", "v2")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InBatch err = %v", err)
	}
	for _, k := range []string{"k1", "k2"} {
		if _, err := mem.HGet(ctx, r.Name(), k); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("%s applied despite discard", k)
		}
	}
	if n := r.BatchLen(); n != 0 {
		t.Fatalf("batch still open after discard, len=%d", n)
	}
}

func TestBatchDiscardOnPanic(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestCache(t, nil)
	defer c.Close(ctx)
	r, _ := c.Region(ctx, "panicked")

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("panic did not propagate")
			}
		}()
		_ = r.InBatch(ctx, func() error {
			_ = r.Set(ctx, "k", "v")
			panic("boom")
		})
	}()

	if _, err := mem.HGet(ctx, r.Name(), "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("panicked batch must leave the store untouched")
	}
	// region is usable again
	if err := r.Set(ctx, "after", "ok"); err != nil {
		t.Fatalf("Set after panic: %v", err)
	}
	if _, err := mem.HGet(ctx, r.Name(), "after"); err != nil {
		t.Fatalf("write after panic missing: %v", err)
	}
}

func TestNestedBatchCommitsOnce(t *testing.T) {
	ctx := context.Background()
	c, mem := newTestCache(t, nil)
	defer c.Close(ctx)
	r, _ := c.Region(ctx, "nested")

	err := r.InBatch(ctx, func() error {
		_ = r.Set(ctx, "outer", "1")
		return r.InBatch(ctx, func() error {
			_ = r.Set(ctx, "inner", "2")
			// the inner scope reuses the open batch; nothing commits here
			if _, err := mem.HGet(ctx, r.Name(), "outer"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("inner scope committed early")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("InBatch: %v", err)
	}
	for _, k := range []string{"outer", "inner"} {
		if _, err := mem.HGet(ctx, r.Name(), k); err != nil {
			t.Fatalf("%s missing after outer commit: %v", k, err)
		}
	}
}
