package regioncache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/unkn0wn-root/regioncache/codec"
	"github.com/unkn0wn-root/regioncache/internal/names"
	"github.com/unkn0wn-root/regioncache/shadow"
	"github.com/unkn0wn-root/regioncache/store"
	"github.com/unkn0wn-root/regioncache/trigger"
)

// Region is one node of the namespace tree: a named, independently
// timed-out hash in the remote store. Do not construct Regions directly;
// resolve them through Cache.Region so ancestors are registered and the
// remote child links are in place.
//
// A Region's timeout, refresh policy and codec are fixed for its
// lifetime. Subregions created later may override them but default to
// inheriting the values the creator requested.
type Region struct {
	c        *Cache
	name     string
	childKey string
	timeout  time.Duration
	refresh  bool
	codec    codec.Codec
	shadow   shadow.Shadow

	batchMu      sync.Mutex
	batch        store.Batch
	depth        int
	batchRefresh bool
}

// Name returns the fully qualified dotted name.
func (r *Region) Name() string { return r.name }

// Timeout returns the region's lease duration; zero means no expiry.
func (r *Region) Timeout() time.Duration { return r.timeout }

func (r *Region) String() string { return "Region(" + r.name + ")" }

// Region resolves a subregion. When this region is invalidated, the
// subregion is too.
func (r *Region) Region(ctx context.Context, sub string, opts ...RegionOption) (*Region, error) {
	return r.c.Region(ctx, r.name+"."+sub, opts...)
}

// Get reads one key. ErrNotFound signals a genuine miss. While the store
// is in backoff the last-known shadow value is served if available;
// otherwise the miss/raise behavior follows Options.RaiseOnTimeout.
func (r *Region) Get(ctx context.Context, key string) (any, error) {
	raw, err := r.c.st.HGet(ctx, r.name, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		v, served, derr := r.degradeRead("get", key, err)
		if served {
			return v, nil
		}
		return nil, derr
	}
	if v, ok := r.shadow.Get(key, raw); ok {
		return v, nil
	}
	v, err := r.codec.Decode(raw)
	if err != nil {
		_ = r.c.st.HDel(ctx, r.name, key) // self-heal corrupt field
		r.c.log.Debug("dropped undecodable field", Fields{"region": r.name, "key": key, "err": err})
		return nil, ErrNotFound
	}
	r.shadow.Put(key, raw, v)
	return v, nil
}

// degradeRead applies the configured policy to an unreachable-store
// read: serve the last-known shadow value when allowed, otherwise raise
// or convert to a miss. served is true when the shadow answered.
func (r *Region) degradeRead(op, key string, err error) (v any, served bool, outErr error) {
	if !store.Unavailable(err) {
		return nil, false, err
	}
	r.c.hooks.TimeoutObserved(op)
	r.c.log.Warn("read degraded (store unavailable)", Fields{"region": r.name, "op": op, "key": key, "err": err})
	if r.c.shadowFallback && key != "" {
		if v, ok := r.shadow.Stale(key); ok {
			r.c.hooks.ShadowServed(r.name, key)
			return v, true, nil
		}
	}
	if r.c.raiseOnTimeout {
		return nil, false, err
	}
	return nil, false, ErrNotFound
}

// Set serializes value and writes it under key. With an open batch the
// write is queued instead of issued. If the region has a timeout and its
// refresh policy allows (or the hash had expired away), the lease is
// re-armed to the full duration. Writes issued while the store is
// unreachable are dropped silently.
func (r *Region) Set(ctx context.Context, key string, value any) error {
	raw, err := r.codec.Encode(value)
	if err != nil {
		return err
	}
	refresh := r.shouldRefresh(ctx)

	r.batchMu.Lock()
	if r.batch != nil {
		r.batch.HSet(r.name, key, raw)
		if refresh {
			r.batchRefresh = true
		}
		r.batchMu.Unlock()
		r.shadow.Put(key, raw, value)
		return nil
	}
	r.batchMu.Unlock()

	if refresh {
		b := r.c.st.Batch()
		b.HSet(r.name, key, raw)
		b.Expire(r.name, r.timeout)
		err = b.Commit(ctx)
	} else {
		err = r.c.st.HSet(ctx, r.name, key, raw)
	}
	if err != nil {
		return r.dropWrite("set", key, err)
	}
	r.shadow.Put(key, raw, value)
	return nil
}

// Delete removes key from the region, with the same lease-refresh
// evaluation as Set.
func (r *Region) Delete(ctx context.Context, key string) error {
	refresh := r.shouldRefresh(ctx)

	r.batchMu.Lock()
	if r.batch != nil {
		r.batch.HDel(r.name, key)
		if refresh {
			r.batchRefresh = true
		}
		r.batchMu.Unlock()
		r.shadow.Del(key)
		return nil
	}
	r.batchMu.Unlock()

	var err error
	if refresh {
		b := r.c.st.Batch()
		b.HDel(r.name, key)
		b.Expire(r.name, r.timeout)
		err = b.Commit(ctx)
	} else {
		err = r.c.st.HDel(ctx, r.name, key)
	}
	if err != nil {
		return r.dropWrite("delete", key, err)
	}
	r.shadow.Del(key)
	return nil
}

// dropWrite swallows unreachable-store write failures (best-effort
// caching must not cascade into business logic) and passes through
// everything else.
func (r *Region) dropWrite(op, key string, err error) error {
	if !store.Unavailable(err) {
		return err
	}
	r.c.hooks.TimeoutObserved(op)
	r.c.hooks.WriteDropped(r.name, op, key)
	r.c.log.Debug("write dropped (store unavailable)", Fields{"region": r.name, "op": op, "key": key, "err": err})
	return nil
}

// shouldRefresh decides whether this write re-arms the lease. A
// non-refreshing region re-arms only when its hash expired away
// entirely, so a recreated hash never ends up lease-less.
func (r *Region) shouldRefresh(ctx context.Context) bool {
	if r.timeout <= 0 {
		return false
	}
	if r.refresh {
		return true
	}
	ok, err := r.c.st.Exists(ctx, r.name)
	return err == nil && !ok
}

// Contains reports whether key is present. Degrades to false while the
// store is unreachable unless configured to raise.
func (r *Region) Contains(ctx context.Context, key string) (bool, error) {
	ok, err := r.c.st.HExists(ctx, r.name, key)
	if err != nil {
		_, served, derr := r.degradeRead("contains", key, err)
		if served {
			return true, nil
		}
		if errors.Is(derr, ErrNotFound) {
			return false, nil
		}
		return false, derr
	}
	return ok, nil
}

// Len returns the remote hash length. The count includes the region's
// housekeeping field, matching the remote HLEN.
func (r *Region) Len(ctx context.Context) (int64, error) {
	n, err := r.c.st.HLen(ctx, r.name)
	if err != nil {
		_, _, derr := r.degradeRead("len", "", err)
		if errors.Is(derr, ErrNotFound) {
			return 0, nil
		}
		return 0, derr
	}
	return n, nil
}

// Items enumerates every key/value in the region, skipping housekeeping
// fields (reserved "__" prefix). Undecodable fields are skipped.
func (r *Region) Items(ctx context.Context) (map[string]any, error) {
	fields, err := r.c.st.HGetAll(ctx, r.name)
	if err != nil {
		_, _, derr := r.degradeRead("items", "", err)
		if errors.Is(derr, ErrNotFound) {
			return map[string]any{}, nil
		}
		return nil, derr
	}
	out := make(map[string]any, len(fields))
	for field, raw := range fields {
		if names.Reserved(field) {
			continue
		}
		if v, ok := r.shadow.Get(field, raw); ok {
			out[field] = v
			continue
		}
		v, err := r.codec.Decode(raw)
		if err != nil {
			r.c.log.Debug("skipping undecodable field", Fields{"region": r.name, "key": field, "err": err})
			continue
		}
		r.shadow.Put(field, raw, v)
		out[field] = v
	}
	return out, nil
}

// GetOrCompute returns the cached value for key, or stores and returns
// the fallback. The fallback is invoked if it is a func() (any, error)
// or func() any, and used as a literal otherwise. When the store is
// unreachable the fallback's value is returned uncached, so callers
// always get a usable value during an outage.
func (r *Region) GetOrCompute(ctx context.Context, key string, fallback any) (any, error) {
	v, err := r.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	unreachable := store.Unavailable(err)
	if !errors.Is(err, ErrNotFound) && !unreachable {
		return nil, err
	}

	v, err = resolveFallback(fallback)
	if err != nil {
		return nil, err
	}
	if unreachable {
		r.c.log.Warn("serving fallback uncached (store unavailable)", Fields{"region": r.name, "key": key})
		return v, nil
	}
	if serr := r.Set(ctx, key, v); serr != nil {
		r.c.log.Warn("fallback value not cached", Fields{"region": r.name, "key": key, "err": serr})
	}
	return v, nil
}

func resolveFallback(fallback any) (any, error) {
	switch fn := fallback.(type) {
	case func() (any, error):
		return fn()
	case func() any:
		return fn(), nil
	default:
		return fallback, nil
	}
}

// Cached wraps fn so its result is memoized in this region, keyed by the
// serialized arguments. Calling the wrapper twice with equal arguments
// invokes fn once.
func (r *Region) Cached(fn func(ctx context.Context, args ...any) (any, error)) func(ctx context.Context, args ...any) (any, error) {
	return func(ctx context.Context, args ...any) (any, error) {
		rawKey, err := r.codec.Encode(args)
		if err != nil {
			// unserializable arguments cannot be memoized
			return fn(ctx, args...)
		}
		return r.GetOrCompute(ctx, string(rawKey), func() (any, error) {
			return fn(ctx, args...)
		})
	}
}

// Children returns the regions registered as direct children, discovered
// via the remote child set so regions created by sibling processes are
// included. Unknown names are materialized locally on the way.
func (r *Region) Children(ctx context.Context) ([]*Region, error) {
	members, err := r.c.st.SMembers(ctx, r.childKey)
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	out := make([]*Region, 0, len(members))
	for _, name := range members {
		child, err := r.c.Region(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

// Invalidate deletes this region's hash and, recursively, every
// descendant's, all inside one atomic batch committed here. Descendants
// are discovered through the remote child sets, so invalidation reaches
// regions created by other processes. The call returns only after the
// remote delete has been applied; shadow caches of the visited regions
// are cleared afterwards.
func (r *Region) Invalidate(ctx context.Context) error {
	b := r.c.st.Batch()
	visited := make(map[string]struct{})
	regions, err := r.invalidateInto(ctx, b, visited)
	if err != nil {
		b.Discard()
		return err
	}
	if err := b.Commit(ctx); err != nil {
		return err
	}
	for _, reg := range regions {
		reg.shadow.Clear()
	}
	r.c.hooks.Invalidated(r.name, len(regions))
	r.c.log.Debug("invalidated region tree", Fields{"region": r.name, "regions": len(regions)})
	return nil
}

// invalidateInto queues this region's delete and recurses into children,
// sharing the caller's batch so the whole cascade commits exactly once.
func (r *Region) invalidateInto(ctx context.Context, b store.Batch, visited map[string]struct{}) ([]*Region, error) {
	if _, ok := visited[r.name]; ok {
		return nil, nil
	}
	visited[r.name] = struct{}{}

	regions := []*Region{r}
	children, err := r.Children(ctx)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		sub, err := child.invalidateInto(ctx, b, visited)
		if err != nil {
			return nil, err
		}
		regions = append(regions, sub...)
	}
	b.Del(r.name)
	return regions, nil
}

// InvalidateOn binds this region to named triggers: firing any of them
// invalidates the region. A failure inside the handler is logged, never
// raised: trigger handlers have no caller to report to, and the cache
// is left needing manual invalidation. The returned subscriptions are
// owned handles; they are also retained by the Cache and closed on
// Cache.Close.
func (r *Region) InvalidateOn(bus trigger.Bus, triggers ...string) ([]trigger.Subscription, error) {
	subs := make([]trigger.Subscription, 0, len(triggers))
	for _, name := range triggers {
		name := name
		sub, err := bus.Subscribe(name, func() {
			if err := r.Invalidate(context.Background()); err != nil {
				r.c.log.Error("trigger invalidation failed", Fields{"region": r.name, "trigger": name, "err": err})
				r.c.hooks.TriggerFailed(name, r.name, err)
			}
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Close()
			}
			return nil, err
		}
		subs = append(subs, sub)
		r.c.retain(sub)
	}
	return subs, nil
}

// ResetTimeout re-arms the region's lease to the full configured
// duration. No-op for regions without a timeout.
func (r *Region) ResetTimeout(ctx context.Context) error {
	if r.timeout <= 0 {
		return nil
	}
	if err := r.c.st.Expire(ctx, r.name, r.timeout); err != nil {
		return r.dropWrite("reset_timeout", "", err)
	}
	return nil
}
