package store

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var ErrNoURL = errors.New("regioncache: redis store needs a primary URL")

const (
	roleWrite = "write"
	roleRead  = "read"
)

// RedisConfig configures the Redis-backed store facade.
type RedisConfig struct {
	// URL is the primary (write) endpoint, redis:// or rediss:// form.
	URL string
	// ReadURL optionally points reads at a replica. When empty, reads use
	// the primary connection.
	ReadURL string

	// OpTimeout bounds every remote round trip (dial, read, write).
	// Zero keeps the client defaults.
	OpTimeout time.Duration
	// ReconnectBackoff is how long to refuse reconnecting after a detected
	// timeout. Zero means the very next operation may reconnect.
	ReconnectBackoff time.Duration
}

// Redis is the lazy-connecting facade over go-redis. It holds a write
// connection and an optional read-replica connection, and runs the
// backoff state machine: a detected timeout tears both down and arms a
// reconnect-after deadline; until that deadline passes every operation
// fails fast with *TimeoutError instead of dialing.
type Redis struct {
	cfg   RedisConfig
	wopts *goredis.Options
	ropts *goredis.Options // nil => reads share the write connection

	mu             sync.Mutex
	write          *goredis.Client
	read           *goredis.Client
	reconnectAfter time.Time
	now            func() time.Time
}

var _ Store = (*Redis)(nil)

// NewRedis parses the configured URLs but does not connect; the first
// operation dials. A failed dial enters the backoff window like a timeout.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	wopts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	applyTimeout(wopts, cfg.OpTimeout)

	var ropts *goredis.Options
	if cfg.ReadURL != "" {
		ropts, err = goredis.ParseURL(cfg.ReadURL)
		if err != nil {
			return nil, err
		}
		applyTimeout(ropts, cfg.OpTimeout)
	}
	return &Redis{cfg: cfg, wopts: wopts, ropts: ropts, now: time.Now}, nil
}

func applyTimeout(o *goredis.Options, d time.Duration) {
	if d <= 0 {
		return
	}
	o.DialTimeout = d
	o.ReadTimeout = d
	o.WriteTimeout = d
	// the facade owns retry policy; the client must not mask timeouts
	o.MaxRetries = -1
}

// conn returns the connection for a role, dialing lazily. While the
// backoff window is active it refuses with *TimeoutError without dialing.
func (s *Redis) conn(ctx context.Context, role string) (*goredis.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.reconnectAfter.IsZero() {
		if s.now().Before(s.reconnectAfter) {
			return nil, &TimeoutError{Op: "connect " + role}
		}
		// deadline passed; clear it and fall through to a fresh attempt
		s.reconnectAfter = time.Time{}
	}

	target := &s.write
	opts := s.wopts
	if role == roleRead && s.ropts != nil {
		target = &s.read
		opts = s.ropts
	}
	if *target == nil {
		c := goredis.NewClient(opts)
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			s.tripLocked()
			return nil, &ConnError{Role: role, Err: err}
		}
		*target = c
	}
	return *target, nil
}

// fault maps a command error. A timeout invalidates both connections
// uniformly (replica failures are not distinguished from primary ones)
// and arms the backoff window.
func (s *Redis) fault(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, goredis.Nil) {
		return ErrNotFound
	}
	if isTimeout(err) {
		s.mu.Lock()
		s.teardownLocked()
		s.tripLocked()
		s.mu.Unlock()
		return &TimeoutError{Op: op, Err: err}
	}
	return err
}

func (s *Redis) teardownLocked() {
	if s.write != nil {
		_ = s.write.Close()
		s.write = nil
	}
	if s.read != nil {
		_ = s.read.Close()
		s.read = nil
	}
}

func (s *Redis) tripLocked() {
	s.reconnectAfter = s.now().Add(s.cfg.ReconnectBackoff)
}

// InBackoff reports whether the facade is inside an active backoff window.
func (s *Redis) InBackoff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.reconnectAfter.IsZero() && s.now().Before(s.reconnectAfter)
}

func (s *Redis) HGet(ctx context.Context, key, field string) ([]byte, error) {
	c, err := s.conn(ctx, roleRead)
	if err != nil {
		return nil, err
	}
	b, err := c.HGet(ctx, key, field).Bytes()
	if err != nil {
		return nil, s.fault("hget", err)
	}
	return b, nil
}

func (s *Redis) HSet(ctx context.Context, key, field string, value []byte) error {
	c, err := s.conn(ctx, roleWrite)
	if err != nil {
		return err
	}
	return s.fault("hset", c.HSet(ctx, key, field, value).Err())
}

func (s *Redis) HDel(ctx context.Context, key, field string) error {
	c, err := s.conn(ctx, roleWrite)
	if err != nil {
		return err
	}
	return s.fault("hdel", c.HDel(ctx, key, field).Err())
}

func (s *Redis) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	c, err := s.conn(ctx, roleRead)
	if err != nil {
		return nil, err
	}
	m, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, s.fault("hgetall", err)
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = []byte(v)
	}
	return out, nil
}

func (s *Redis) HLen(ctx context.Context, key string) (int64, error) {
	c, err := s.conn(ctx, roleRead)
	if err != nil {
		return 0, err
	}
	n, err := c.HLen(ctx, key).Result()
	if err != nil {
		return 0, s.fault("hlen", err)
	}
	return n, nil
}

func (s *Redis) HExists(ctx context.Context, key, field string) (bool, error) {
	c, err := s.conn(ctx, roleRead)
	if err != nil {
		return false, err
	}
	ok, err := c.HExists(ctx, key, field).Result()
	if err != nil {
		return false, s.fault("hexists", err)
	}
	return ok, nil
}

func (s *Redis) Exists(ctx context.Context, key string) (bool, error) {
	c, err := s.conn(ctx, roleRead)
	if err != nil {
		return false, err
	}
	n, err := c.Exists(ctx, key).Result()
	if err != nil {
		return false, s.fault("exists", err)
	}
	return n > 0, nil
}

func (s *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c, err := s.conn(ctx, roleWrite)
	if err != nil {
		return err
	}
	return s.fault("expire", c.Expire(ctx, key, ttl).Err())
}

func (s *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	c, err := s.conn(ctx, roleRead)
	if err != nil {
		return 0, err
	}
	d, err := c.TTL(ctx, key).Result()
	if err != nil {
		return 0, s.fault("ttl", err)
	}
	// go-redis passes the -2 (no key) / -1 (no expiry) sentinels through
	switch d {
	case -2:
		return 0, ErrNotFound
	case -1:
		return NoExpiry, nil
	}
	return d, nil
}

func (s *Redis) SAdd(ctx context.Context, key, member string) error {
	c, err := s.conn(ctx, roleWrite)
	if err != nil {
		return err
	}
	return s.fault("sadd", c.SAdd(ctx, key, member).Err())
}

func (s *Redis) SMembers(ctx context.Context, key string) ([]string, error) {
	c, err := s.conn(ctx, roleRead)
	if err != nil {
		return nil, err
	}
	members, err := c.SMembers(ctx, key).Result()
	if err != nil {
		return nil, s.fault("smembers", err)
	}
	return members, nil
}

func (s *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	c, err := s.conn(ctx, roleWrite)
	if err != nil {
		return err
	}
	return s.fault("del", c.Del(ctx, keys...).Err())
}

func (s *Redis) Batch() Batch {
	return &redisBatch{s: s}
}

func (s *Redis) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	return nil
}

// redisBatch queues operations and replays them into one TxPipeline at
// Commit. The connection is resolved at commit time so an intervening
// backoff transition is honored.
type redisBatch struct {
	s    *Redis
	ops  []func(ctx context.Context, p goredis.Pipeliner)
	done bool
}

var _ Batch = (*redisBatch)(nil)

func (b *redisBatch) queue(op func(ctx context.Context, p goredis.Pipeliner)) {
	if b.done {
		return
	}
	b.ops = append(b.ops, op)
}

func (b *redisBatch) HSet(key, field string, value []byte) {
	b.queue(func(ctx context.Context, p goredis.Pipeliner) { p.HSet(ctx, key, field, value) })
}

func (b *redisBatch) HDel(key, field string) {
	b.queue(func(ctx context.Context, p goredis.Pipeliner) { p.HDel(ctx, key, field) })
}

func (b *redisBatch) Del(key string) {
	b.queue(func(ctx context.Context, p goredis.Pipeliner) { p.Del(ctx, key) })
}

func (b *redisBatch) Expire(key string, ttl time.Duration) {
	b.queue(func(ctx context.Context, p goredis.Pipeliner) { p.Expire(ctx, key, ttl) })
}

func (b *redisBatch) SAdd(key, member string) {
	b.queue(func(ctx context.Context, p goredis.Pipeliner) { p.SAdd(ctx, key, member) })
}

func (b *redisBatch) Len() int { return len(b.ops) }

func (b *redisBatch) Commit(ctx context.Context) error {
	if b.done {
		return nil
	}
	b.done = true
	ops := b.ops
	b.ops = nil
	if len(ops) == 0 {
		return nil
	}
	c, err := b.s.conn(ctx, roleWrite)
	if err != nil {
		return err
	}
	pipe := c.TxPipeline()
	for _, op := range ops {
		op(ctx, pipe)
	}
	_, err = pipe.Exec(ctx)
	return b.s.fault("batch", err)
}

func (b *redisBatch) Discard() {
	b.done = true
	b.ops = nil
}
