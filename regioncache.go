package regioncache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/regioncache/codec"
	"github.com/unkn0wn-root/regioncache/internal/names"
	"github.com/unkn0wn-root/regioncache/shadow"
	"github.com/unkn0wn-root/regioncache/store"
	"github.com/unkn0wn-root/regioncache/trigger"
)

// Options tune the process-wide cache. Only the store location is
// required: either URL or an explicit Store.
type Options struct {
	// URL is the primary (write) Redis endpoint, redis:// form.
	// Ignored when Store is set.
	URL string
	// ReadURL optionally routes reads through a replica.
	ReadURL string

	// RootName anchors the region tree; every dotted name is resolved
	// under it. Default "root".
	RootName string
	// Codec is the default serializer, inherited by regions that set
	// none. Default codec.Msgpack.
	Codec codec.Codec

	// OpTimeout bounds every remote round trip. Zero keeps client defaults.
	OpTimeout time.Duration
	// ReconnectBackoff is how long the store facade refuses to reconnect
	// after a detected timeout. Zero means the next operation may retry
	// immediately.
	ReconnectBackoff time.Duration
	// RaiseOnTimeout propagates timeout/connect errors to callers instead
	// of degrading reads to misses and dropping writes.
	RaiseOnTimeout bool

	// ShadowPolicy selects the per-region shadow-cache eviction strategy.
	// Default bounded LRU.
	ShadowPolicy shadow.Policy
	// ShadowMaxEntries bounds an LRU shadow. 0 => shadow.DefaultMaxEntries.
	ShadowMaxEntries int64
	// DisableShadowFallback stops Get from serving last-known shadow
	// values while the store is in backoff.
	DisableShadowFallback bool

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// Store overrides the Redis facade, e.g. store.NewMemory() in tests.
	Store store.Store
}

// Cache is the region registry: one per process, constructed at startup,
// alive for the process's lifetime. It resolves dotted names to Region
// instances, lazily materializing every ancestor in the path, and
// anchors all regions under the configured root.
type Cache struct {
	st             store.Store
	defaultCodec   codec.Codec
	log            Logger
	hooks          Hooks
	rootName       string
	raiseOnTimeout bool
	shadowFallback bool
	shadowCfg      shadow.Config

	mu      sync.Mutex
	regions map[string]*Region
	subs    []trigger.Subscription
}

// New builds the registry. It does not connect: the store is dialed on
// the first remote operation.
func New(opts Options) (*Cache, error) {
	st := opts.Store
	if st == nil {
		if opts.URL == "" {
			return nil, fmt.Errorf("regioncache: store URL is required")
		}
		var err error
		st, err = store.NewRedis(store.RedisConfig{
			URL:              opts.URL,
			ReadURL:          opts.ReadURL,
			OpTimeout:        opts.OpTimeout,
			ReconnectBackoff: opts.ReconnectBackoff,
		})
		if err != nil {
			return nil, err
		}
	}

	c := &Cache{
		st:             st,
		rootName:       coalesce(opts.RootName, "root"),
		raiseOnTimeout: opts.RaiseOnTimeout,
		shadowFallback: !opts.DisableShadowFallback,
		shadowCfg: shadow.Config{
			Policy:     opts.ShadowPolicy,
			MaxEntries: opts.ShadowMaxEntries,
		},
		regions: make(map[string]*Region),
	}
	c.defaultCodec = opts.Codec
	if c.defaultCodec == nil {
		c.defaultCodec = codec.Msgpack{}
	}
	c.log = opts.Logger
	if c.log == nil {
		c.log = NopLogger{}
	}
	c.hooks = opts.Hooks
	if c.hooks == nil {
		c.hooks = NopHooks{}
	}
	return c, nil
}

// RegionOption overrides an inherited setting for regions created by the
// call carrying it. Settings are fixed for a region's lifetime; options
// passed for an already-registered name are ignored.
type RegionOption func(*regionConfig)

type regionConfig struct {
	timeout    time.Duration
	hasTimeout bool
	refresh    bool
	hasRefresh bool
	codec      codec.Codec
}

// WithTimeout gives newly created regions a lease of d. Zero disables
// expiry.
func WithTimeout(d time.Duration) RegionOption {
	return func(c *regionConfig) { c.timeout = d; c.hasTimeout = true }
}

// WithRefreshOnWrite sets whether writes re-arm the region's lease to
// the full timeout. Inherited default true.
func WithRefreshOnWrite(refresh bool) RegionOption {
	return func(c *regionConfig) { c.refresh = refresh; c.hasRefresh = true }
}

// WithCodec sets the serializer for newly created regions.
func WithCodec(cd codec.Codec) RegionOption {
	return func(c *regionConfig) { c.codec = cd }
}

// Region resolves a dotted name to its Region, creating and registering
// every missing ancestor on the way down. The empty name resolves to the
// root. Repeated calls with the same name return the identical instance;
// unset options inherit from the nearest existing ancestor.
func (c *Cache) Region(ctx context.Context, name string, opts ...RegionOption) (*Region, error) {
	var cfg regionConfig
	for _, o := range opts {
		o(&cfg)
	}
	qualified := names.Qualify(c.rootName, name)

	c.mu.Lock()
	var leaf *Region
	var created []*Region
	for _, prefix := range names.Prefixes(qualified) {
		r, ok := c.regions[prefix]
		if !ok {
			parent := c.regions[names.Parent(prefix)] // nil for the root
			var err error
			r, err = c.newRegion(prefix, parent, cfg)
			if err != nil {
				c.mu.Unlock()
				return nil, err
			}
			c.regions[prefix] = r
			created = append(created, r)
		}
		leaf = r
	}
	c.mu.Unlock()

	for _, r := range created {
		if err := c.materialize(ctx, r); err != nil {
			return nil, err
		}
	}
	return leaf, nil
}

func (c *Cache) newRegion(name string, parent *Region, cfg regionConfig) (*Region, error) {
	timeout := cfg.timeout
	refresh := true
	cd := cfg.codec
	if parent != nil {
		if !cfg.hasTimeout {
			timeout = parent.timeout
		}
		refresh = parent.refresh
		if cd == nil {
			cd = parent.codec
		}
	}
	if cfg.hasRefresh {
		refresh = cfg.refresh
	}
	if cd == nil {
		cd = c.defaultCodec
	}

	sh, err := shadow.New(c.shadowCfg)
	if err != nil {
		return nil, err
	}
	return &Region{
		c:        c,
		name:     name,
		childKey: names.ChildSetKey(name),
		timeout:  timeout,
		refresh:  refresh,
		codec:    cd,
		shadow:   sh,
	}, nil
}

// materialize records the region remotely: creation-timestamp marker,
// initial lease, and membership in the parent's child set, all in one
// batch. Best-effort when the store is unreachable (unless configured to
// raise): the region still works, it is just invisible to cascading
// invalidation from other processes until a later write lands.
func (c *Cache) materialize(ctx context.Context, r *Region) error {
	b := c.st.Batch()
	b.HSet(r.name, names.CreatedAtField, []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	if r.timeout > 0 {
		b.Expire(r.name, r.timeout)
	}
	if parent := names.Parent(r.name); parent != "" {
		b.SAdd(names.ChildSetKey(parent), r.name)
	}
	err := b.Commit(ctx)
	if err == nil {
		return nil
	}
	if store.Unavailable(err) {
		c.hooks.TimeoutObserved("materialize")
		c.log.Warn("region not materialized (store unavailable)", Fields{"region": r.name, "err": err})
		if c.raiseOnTimeout {
			return err
		}
		return nil
	}
	return err
}

// Root returns the root region.
func (c *Cache) Root(ctx context.Context) (*Region, error) {
	return c.Region(ctx, "")
}

// Clear invalidates the whole tree by invalidating the root.
func (c *Cache) Clear(ctx context.Context) error {
	root, err := c.Root(ctx)
	if err != nil {
		return err
	}
	return root.Invalidate(ctx)
}

// Close releases trigger subscriptions, shadow caches and the store
// connections. The Cache is unusable afterwards.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	regions := make([]*Region, 0, len(c.regions))
	for _, r := range c.regions {
		regions = append(regions, r)
	}
	c.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	for _, r := range regions {
		r.shadow.Close()
	}
	return c.st.Close(ctx)
}

func (c *Cache) retain(sub trigger.Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}
