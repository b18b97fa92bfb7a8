// Package store defines the remote-store facade used by regioncache.
//
// The facade exposes the small slice of an associative store the region
// tree needs: per-field hash operations, key expiry, set membership for
// the parent/child relation, and an atomic multi-operation batch. The
// Redis implementation adds the connection-resilience behavior (lazy
// connect, read-replica routing, backoff after timeout); Memory is an
// in-process implementation for tests and development.
package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNotFound is returned on a genuine miss: the hash field (or the key
// itself) does not exist. Expected during normal operation, never logged.
var ErrNotFound = errors.New("regioncache: not found")

// NoExpiry is returned by TTL for keys that exist but carry no expiry.
const NoExpiry = time.Duration(-1)

// TimeoutError reports a remote operation that exceeded its deadline, or
// an operation refused fast while the facade sits in a backoff window.
// Observing one means the facade has torn down its connections.
type TimeoutError struct {
	Op  string
	Err error // nil when failing fast inside the backoff window
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("regioncache: %s refused (store in backoff)", e.Op)
	}
	return fmt.Sprintf("regioncache: %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
func (e *TimeoutError) Timeout() bool { return true }

// ConnError reports a failed connection attempt. The facade enters a
// backoff window when it happens.
type ConnError struct {
	Role string // "write" or "read"
	Err  error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("regioncache: %s connect failed: %v", e.Role, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// Unavailable reports whether err means the store could not be reached
// (timeout or connection failure) as opposed to a miss or a hard error.
func Unavailable(err error) bool {
	var te *TimeoutError
	var ce *ConnError
	return errors.As(err, &te) || errors.As(err, &ce)
}

// Store is the remote associative store a region tree lives in.
// Implementations must be safe for concurrent use. Misses surface as
// ErrNotFound; unreachable-store conditions as *TimeoutError/*ConnError.
type Store interface {
	// HGet reads one field of a hash. ErrNotFound when the field (or key)
	// is absent.
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HSet(ctx context.Context, key, field string, value []byte) error
	HDel(ctx context.Context, key, field string) error
	// HGetAll enumerates every field of a hash. A missing key yields an
	// empty map, not an error.
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HLen(ctx context.Context, key string) (int64, error)
	HExists(ctx context.Context, key, field string) (bool, error)

	// Exists reports whether the key is present at all.
	Exists(ctx context.Context, key string) (bool, error)
	// Expire arms or refreshes the key's lease.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining lease, NoExpiry for keys without one, and
	// ErrNotFound for absent keys.
	TTL(ctx context.Context, key string) (time.Duration, error)

	SAdd(ctx context.Context, key, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	Del(ctx context.Context, keys ...string) error

	// Batch opens an atomic multi-operation batch. Queued operations take
	// effect all together on Commit, or not at all on Discard.
	Batch() Batch

	Close(ctx context.Context) error
}

// Batch buffers mutations for a single all-or-nothing commit. A Batch is
// single-use: after Commit or Discard it queues nothing.
type Batch interface {
	HSet(key, field string, value []byte)
	HDel(key, field string)
	Del(key string)
	Expire(key string, ttl time.Duration)
	SAdd(key, member string)

	// Len reports the number of queued operations.
	Len() int
	// Commit applies all queued operations in one atomic round trip.
	Commit(ctx context.Context) error
	// Discard drops everything queued so far.
	Discard()
}

// isTimeout detects a deadline-style failure from the underlying client.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
