package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store honoring expiry. It backs tests and
// development setups; it never times out and never enters backoff.
type Memory struct {
	mu     sync.Mutex
	hashes map[string]map[string][]byte
	sets   map[string]map[string]struct{}
	expiry map[string]time.Time // zero/absent => no lease

	now func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		hashes: make(map[string]map[string][]byte),
		sets:   make(map[string]map[string]struct{}),
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

// reapLocked drops the key if its lease is due.
func (s *Memory) reapLocked(key string) {
	exp, ok := s.expiry[key]
	if !ok || s.now().Before(exp) {
		return
	}
	delete(s.hashes, key)
	delete(s.sets, key)
	delete(s.expiry, key)
}

func (s *Memory) HGet(_ context.Context, key, field string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	h, ok := s.hashes[key]
	if !ok {
		return nil, ErrNotFound
	}
	v, ok := h[field]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Memory) HSet(_ context.Context, key, field string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	s.hsetLocked(key, field, value)
	return nil
}

func (s *Memory) hsetLocked(key, field string, value []byte) {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		s.hashes[key] = h
	}
	v := make([]byte, len(value))
	copy(v, value)
	h[field] = v
}

func (s *Memory) HDel(_ context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	s.hdelLocked(key, field)
	return nil
}

func (s *Memory) hdelLocked(key, field string) {
	if h, ok := s.hashes[key]; ok {
		delete(h, field)
		if len(h) == 0 {
			delete(s.hashes, key)
			delete(s.expiry, key)
		}
	}
}

func (s *Memory) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	out := make(map[string][]byte, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		vv := make([]byte, len(v))
		copy(vv, v)
		out[f] = vv
	}
	return out, nil
}

func (s *Memory) HLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	return int64(len(s.hashes[key])), nil
}

func (s *Memory) HExists(_ context.Context, key, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	_, ok := s.hashes[key][field]
	return ok, nil
}

func (s *Memory) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	if _, ok := s.hashes[key]; ok {
		return true, nil
	}
	_, ok := s.sets[key]
	return ok, nil
}

func (s *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	s.expireLocked(key, ttl)
	return nil
}

func (s *Memory) expireLocked(key string, ttl time.Duration) {
	_, hasHash := s.hashes[key]
	_, hasSet := s.sets[key]
	if !hasHash && !hasSet {
		return // redis EXPIRE on a missing key is a no-op
	}
	s.expiry[key] = s.now().Add(ttl)
}

func (s *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	_, hasHash := s.hashes[key]
	_, hasSet := s.sets[key]
	if !hasHash && !hasSet {
		return 0, ErrNotFound
	}
	exp, ok := s.expiry[key]
	if !ok {
		return NoExpiry, nil
	}
	return exp.Sub(s.now()), nil
}

func (s *Memory) SAdd(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	s.saddLocked(key, member)
	return nil
}

func (s *Memory) saddLocked(key, member string) {
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
}

func (s *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (s *Memory) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.delLocked(k)
	}
	return nil
}

func (s *Memory) delLocked(key string) {
	delete(s.hashes, key)
	delete(s.sets, key)
	delete(s.expiry, key)
}

func (s *Memory) Batch() Batch {
	return &memoryBatch{s: s}
}

func (s *Memory) Close(context.Context) error { return nil }

// memoryBatch buffers mutations and applies them under one lock
// acquisition, so a reader never observes a half-applied batch.
type memoryBatch struct {
	s    *Memory
	ops  []func()
	done bool
}

var _ Batch = (*memoryBatch)(nil)

func (b *memoryBatch) queue(op func()) {
	if b.done {
		return
	}
	b.ops = append(b.ops, op)
}

func (b *memoryBatch) HSet(key, field string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	b.queue(func() { b.s.hsetLocked(key, field, v) })
}

func (b *memoryBatch) HDel(key, field string) {
	b.queue(func() { b.s.hdelLocked(key, field) })
}

func (b *memoryBatch) Del(key string) {
	b.queue(func() { b.s.delLocked(key) })
}

func (b *memoryBatch) Expire(key string, ttl time.Duration) {
	b.queue(func() { b.s.expireLocked(key, ttl) })
}

func (b *memoryBatch) SAdd(key, member string) {
	b.queue(func() { b.s.saddLocked(key, member) })
}

func (b *memoryBatch) Len() int { return len(b.ops) }

func (b *memoryBatch) Commit(context.Context) error {
	if b.done {
		return nil
	}
	b.done = true
	ops := b.ops
	b.ops = nil
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	for _, op := range ops {
		op()
	}
	return nil
}

func (b *memoryBatch) Discard() {
	b.done = true
	b.ops = nil
}
