package regioncache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// The store facade was unreachable during op (timeout or connect
	// failure); it has entered its backoff window.
	TimeoutObserved(op string)

	// A read was answered from the shadow cache while the store was in
	// backoff. The value may be stale.
	ShadowServed(region, key string)

	// A write or delete issued while the store was unreachable was
	// silently dropped.
	WriteDropped(region, op, key string)

	// A region tree was invalidated; regions is the cascade size
	// (the region itself plus all descendants).
	Invalidated(region string, regions int)

	// A trigger-driven invalidation failed. The cache is left needing
	// manual invalidation.
	TriggerFailed(trigger, region string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) TimeoutObserved(string)              {}
func (NopHooks) ShadowServed(string, string)         {}
func (NopHooks) WriteDropped(string, string, string) {}
func (NopHooks) Invalidated(string, int)             {}
func (NopHooks) TriggerFailed(string, string, error) {}
