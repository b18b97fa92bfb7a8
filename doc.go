// Package regioncache implements a hierarchical cache-region manager on
// top of Redis. A region is a dot-separated namespace ("root.abc.xyz")
// whose keys and values live in one Redis hash; parent/child links are
// recorded in Redis sets so any process sharing the store sees the same
// tree. Invalidating a region deletes its hash and, recursively, every
// descendant's hash in a single atomic batch.
//
// Components:
//   - store.Store: remote-store facade (hash/set/expiry/batch) with the
//     connection-resilience state machine (lazy connect, read replica,
//     backoff after timeout) in its Redis implementation.
//   - shadow.Shadow: per-region in-process mirror of decoded values;
//     skips re-deserialization of unchanged values and serves best-effort
//     reads while the store is in backoff.
//   - codec.Codec: (de)serializes values; msgpack by default.
//   - trigger.Bus: named triggers that fire invalidation declaratively.
//
// Keys:
//
//	<region>                 - hash holding the region's fields
//	<region>::child_caches   - set of child region names
//
// Usage:
//
//	c, _ := regioncache.New(regioncache.Options{URL: "redis://localhost:6379/0"})
//	r, _ := c.Region(ctx, "abc.xyz", regioncache.WithTimeout(time.Minute))
//	_ = r.Set(ctx, "k", "v")
//	v, _ := r.Get(ctx, "k")
//	_ = r.Invalidate(ctx) // also clears every subregion of abc.xyz
//
// Every failure degrades to "act as if uncached": reads miss, writes are
// dropped, and GetOrCompute falls through to its fallback.
package regioncache
