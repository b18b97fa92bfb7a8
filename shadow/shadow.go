// Package shadow implements the per-region in-process mirror of remote
// values. A shadow is never authoritative: it memoizes the deserialized
// form of the last raw bytes seen per field so unchanged values skip the
// codec, and it answers best-effort reads while the remote store is in a
// backoff window. Its owning region clears or updates it on every write,
// delete and invalidation.
package shadow

import (
	"bytes"
	"errors"
	"sync"
)

// Shadow mirrors one region's decoded values.
type Shadow interface {
	// Get returns the memoized value for field iff raw matches the bytes
	// the value was decoded from.
	Get(field string, raw []byte) (any, bool)
	// Stale returns the last known value regardless of raw bytes. Used
	// only while the remote store is unreachable.
	Stale(field string) (any, bool)
	Put(field string, raw []byte, v any)
	Del(field string)
	Clear()
	Close()
}

// Policy selects the eviction strategy.
type Policy int

const (
	// PolicyLRU keeps a bounded number of entries (default).
	PolicyLRU Policy = iota
	// PolicyUnbounded keeps every entry until invalidation.
	PolicyUnbounded
	// PolicyNone disables the shadow entirely.
	PolicyNone
)

// DefaultMaxEntries bounds an LRU shadow when no bound is configured.
const DefaultMaxEntries = 1024

type Config struct {
	Policy     Policy
	MaxEntries int64 // PolicyLRU only; 0 => DefaultMaxEntries
}

var ErrPolicy = errors.New("shadow: unknown policy")

// New builds a shadow for one region.
func New(cfg Config) (Shadow, error) {
	switch cfg.Policy {
	case PolicyLRU:
		max := cfg.MaxEntries
		if max <= 0 {
			max = DefaultMaxEntries
		}
		return newLRU(max)
	case PolicyUnbounded:
		return &unbounded{entries: make(map[string]entry)}, nil
	case PolicyNone:
		return nopShadow{}, nil
	}
	return nil, ErrPolicy
}

// entry pairs a decoded value with the raw bytes it came from.
type entry struct {
	raw []byte
	val any
}

type nopShadow struct{}

func (nopShadow) Get(string, []byte) (any, bool) { return nil, false }
func (nopShadow) Stale(string) (any, bool)       { return nil, false }
func (nopShadow) Put(string, []byte, any)        {}
func (nopShadow) Del(string)                     {}
func (nopShadow) Clear()                         {}
func (nopShadow) Close()                         {}

// unbounded is a plain map shadow. Suits small regions where eviction
// would only cost repeat deserialization.
type unbounded struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func (u *unbounded) Get(field string, raw []byte) (any, bool) {
	u.mu.RLock()
	e, ok := u.entries[field]
	u.mu.RUnlock()
	if !ok || !bytes.Equal(e.raw, raw) {
		return nil, false
	}
	return e.val, true
}

func (u *unbounded) Stale(field string) (any, bool) {
	u.mu.RLock()
	e, ok := u.entries[field]
	u.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.val, true
}

func (u *unbounded) Put(field string, raw []byte, v any) {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	u.mu.Lock()
	u.entries[field] = entry{raw: cp, val: v}
	u.mu.Unlock()
}

func (u *unbounded) Del(field string) {
	u.mu.Lock()
	delete(u.entries, field)
	u.mu.Unlock()
}

func (u *unbounded) Clear() {
	u.mu.Lock()
	u.entries = make(map[string]entry)
	u.mu.Unlock()
}

func (u *unbounded) Close() {}
