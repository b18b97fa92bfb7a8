package store

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

func TestMemoryHashOps(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if _, err := s.HGet(ctx, "h", "f"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("HGet on missing key = %v", err)
	}
	if err := s.HSet(ctx, "h", "f", []byte("v")); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	if err := s.HSet(ctx, "h", "g", []byte("w")); err != nil {
		t.Fatalf("HSet: %v", err)
	}

	v, err := s.HGet(ctx, "h", "f")
	if err != nil || string(v) != "v" {
		t.Fatalf("HGet = %q %v", v, err)
	}
	if n, _ := s.HLen(ctx, "h"); n != 2 {
		t.Fatalf("HLen = %d", n)
	}
	if ok, _ := s.HExists(ctx, "h", "g"); !ok {
		t.Fatalf("HExists(g) = false")
	}
	all, _ := s.HGetAll(ctx, "h")
	if len(all) != 2 || string(all["g"]) != "w" {
		t.Fatalf("HGetAll = %v", all)
	}

	// returned slices are copies, not views into the store
	v[0] = 'X'
	if again, _ := s.HGet(ctx, "h", "f"); string(again) != "v" {
		t.Fatalf("stored value aliased by caller mutation")
	}
}

func TestMemoryDeletingLastFieldDropsKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_ = s.HSet(ctx, "h", "f", []byte("v"))
	_ = s.Expire(ctx, "h", time.Hour)
	_ = s.HDel(ctx, "h", "f")

	if ok, _ := s.Exists(ctx, "h"); ok {
		t.Fatalf("empty hash still exists")
	}
	if _, err := s.TTL(ctx, "h"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lease survived key removal: %v", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	clk := time.Now()
	s.now = func() time.Time { return clk }

	_ = s.HSet(ctx, "h", "f", []byte("v"))

	// expire on a missing key is a no-op
	if err := s.Expire(ctx, "nope", time.Second); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if _, err := s.TTL(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no-op Expire created a lease")
	}

	if ttl, err := s.TTL(ctx, "h"); err != nil || ttl != NoExpiry {
		t.Fatalf("TTL before lease = %v %v, want NoExpiry", ttl, err)
	}
	_ = s.Expire(ctx, "h", 50*time.Millisecond)
	if ttl, _ := s.TTL(ctx, "h"); ttl != 50*time.Millisecond {
		t.Fatalf("TTL = %v", ttl)
	}

	clk = clk.Add(60 * time.Millisecond)
	if _, err := s.HGet(ctx, "h", "f"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("key survived its lease: %v", err)
	}
	if ok, _ := s.Exists(ctx, "h"); ok {
		t.Fatalf("expired key still exists")
	}
}

func TestMemorySets(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_ = s.SAdd(ctx, "set", "b")
	_ = s.SAdd(ctx, "set", "a")
	_ = s.SAdd(ctx, "set", "a") // duplicate

	members, err := s.SMembers(ctx, "set")
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	sort.Strings(members)
	if len(members) != 2 || members[0] != "a" || members[1] != "b" {
		t.Fatalf("SMembers = %v", members)
	}
	if ok, _ := s.Exists(ctx, "set"); !ok {
		t.Fatalf("set key missing")
	}
	if empty, _ := s.SMembers(ctx, "nope"); len(empty) != 0 {
		t.Fatalf("SMembers on missing key = %v", empty)
	}
}

func TestMemoryDel(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_ = s.HSet(ctx, "h1", "f", []byte("v"))
	_ = s.HSet(ctx, "h2", "f", []byte("v"))
	_ = s.SAdd(ctx, "h1::children", "x")

	if err := s.Del(ctx, "h1", "h1::children"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if ok, _ := s.Exists(ctx, "h1"); ok {
		t.Fatalf("h1 survived Del")
	}
	if ok, _ := s.Exists(ctx, "h1::children"); ok {
		t.Fatalf("set key survived Del")
	}
	if ok, _ := s.Exists(ctx, "h2"); !ok {
		t.Fatalf("Del removed an unrelated key")
	}
}

func TestMemoryBatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_ = s.HSet(ctx, "old", "f", []byte("v"))

	b := s.Batch()
	b.HSet("h", "f1", []byte("a"))
	b.HSet("h", "f2", []byte("b"))
	b.SAdd("parent::children", "h")
	b.Expire("h", time.Hour)
	b.Del("old")
	if n := b.Len(); n != 5 {
		t.Fatalf("Len = %d", n)
	}

	// nothing applied before commit
	if ok, _ := s.Exists(ctx, "h"); ok {
		t.Fatalf("batch leaked before commit")
	}
	if ok, _ := s.Exists(ctx, "old"); !ok {
		t.Fatalf("delete applied before commit")
	}

	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if n, _ := s.HLen(ctx, "h"); n != 2 {
		t.Fatalf("HLen after commit = %d", n)
	}
	if ok, _ := s.Exists(ctx, "old"); ok {
		t.Fatalf("old key survived committed delete")
	}
	if ttl, _ := s.TTL(ctx, "h"); ttl <= 0 {
		t.Fatalf("Expire not applied in batch: %v", ttl)
	}

	// a batch is single-use
	b.HSet("h", "f3", []byte("c"))
	_ = b.Commit(ctx)
	if ok, _ := s.HExists(ctx, "h", "f3"); ok {
		t.Fatalf("committed batch accepted more operations")
	}
}

func TestMemoryBatchDiscard(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	b := s.Batch()
	b.HSet("h", "f", []byte("v"))
	b.Discard()
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit after Discard: %v", err)
	}
	if ok, _ := s.Exists(ctx, "h"); ok {
		t.Fatalf("discarded batch applied")
	}
	if n := b.Len(); n != 0 {
		t.Fatalf("Len after discard = %d", n)
	}
}
