package store

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T, cfg RedisConfig) (*Redis, *time.Time) {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = "redis://localhost:6379/0"
	}
	s, err := NewRedis(cfg)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	clk := time.Now()
	s.now = func() time.Time { return clk }
	return s, &clk
}

func TestNewRedisValidation(t *testing.T) {
	if _, err := NewRedis(RedisConfig{}); !errors.Is(err, ErrNoURL) {
		t.Fatalf("missing URL = %v", err)
	}
	if _, err := NewRedis(RedisConfig{URL: "http://not-redis"}); err == nil {
		t.Fatalf("bogus scheme accepted")
	}
	if _, err := NewRedis(RedisConfig{URL: "redis://localhost:6379", ReadURL: "::bogus"}); err == nil {
		t.Fatalf("bogus read URL accepted")
	}
}

func TestNewRedisAppliesOpTimeout(t *testing.T) {
	s, _ := newTestRedis(t, RedisConfig{
		URL:       "redis://primary:6379/1",
		ReadURL:   "redis://replica:6379/1",
		OpTimeout: 250 * time.Millisecond,
	})
	for _, o := range []*goredis.Options{s.wopts, s.ropts} {
		if o.DialTimeout != 250*time.Millisecond || o.ReadTimeout != 250*time.Millisecond {
			t.Fatalf("timeouts not applied: %+v", o)
		}
		if o.MaxRetries != -1 {
			t.Fatalf("client retries not disabled: %d", o.MaxRetries)
		}
	}
	if s.ropts == nil {
		t.Fatalf("replica options not parsed")
	}
}

func TestFaultMapsMisses(t *testing.T) {
	s, _ := newTestRedis(t, RedisConfig{ReconnectBackoff: time.Minute})

	if err := s.fault("hget", goredis.Nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("redis.Nil = %v, want ErrNotFound", err)
	}
	if s.InBackoff() {
		t.Fatalf("a miss must not trip the backoff window")
	}
	if err := s.fault("hget", nil); err != nil {
		t.Fatalf("nil error mapped to %v", err)
	}
}

func TestFaultPassesThroughHardErrors(t *testing.T) {
	s, _ := newTestRedis(t, RedisConfig{ReconnectBackoff: time.Minute})

	hard := errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	if err := s.fault("hget", hard); !errors.Is(err, hard) {
		t.Fatalf("hard error rewritten: %v", err)
	}
	if s.InBackoff() {
		t.Fatalf("hard error must not trip the backoff window")
	}
}

func TestTimeoutTripsBackoffWindow(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestRedis(t, RedisConfig{ReconnectBackoff: time.Minute})

	err := s.fault("hget", context.DeadlineExceeded)
	var te *TimeoutError
	if !errors.As(err, &te) || !te.Timeout() {
		t.Fatalf("deadline error = %v, want *TimeoutError", err)
	}
	if !Unavailable(err) {
		t.Fatalf("Unavailable(%v) = false", err)
	}
	if !s.InBackoff() {
		t.Fatalf("timeout did not arm the backoff window")
	}

	// inside the window every operation refuses fast, no dial attempted
	if _, err := s.conn(ctx, roleWrite); !errors.As(err, &te) {
		t.Fatalf("conn inside backoff = %v, want *TimeoutError", err)
	}
	if _, err := s.HGet(ctx, "h", "f"); !Unavailable(err) {
		t.Fatalf("HGet inside backoff = %v", err)
	}
	if err := s.Batch().Commit(ctx); err != nil {
		// an empty batch commits without touching the connection
		t.Fatalf("empty batch commit inside backoff = %v", err)
	}

	*clk = clk.Add(61 * time.Second)
	if s.InBackoff() {
		t.Fatalf("backoff window did not lapse")
	}
}

func TestZeroBackoffAllowsImmediateRetry(t *testing.T) {
	s, _ := newTestRedis(t, RedisConfig{})

	_ = s.fault("hget", context.DeadlineExceeded)
	// reconnectAfter == now, so the very next operation may redial
	if s.InBackoff() {
		t.Fatalf("zero backoff still refusing")
	}
}

func TestBatchQueuesUntilCommit(t *testing.T) {
	s, _ := newTestRedis(t, RedisConfig{})

	b := s.Batch()
	b.HSet("h", "f", []byte("v"))
	b.Expire("h", time.Minute)
	b.Del("old")
	if n := b.Len(); n != 3 {
		t.Fatalf("Len = %d", n)
	}
	b.Discard()
	if n := b.Len(); n != 0 {
		t.Fatalf("Len after discard = %d", n)
	}
	b.SAdd("set", "m") // discarded batch queues nothing
	if n := b.Len(); n != 0 {
		t.Fatalf("discarded batch accepted an operation")
	}
}

// fake net.Error for the timeout classifier
type fakeNetErr struct{ timeout bool }

func (e fakeNetErr) Error() string   { return "fake net error" }
func (e fakeNetErr) Timeout() bool   { return e.timeout }
func (e fakeNetErr) Temporary() bool { return false }

func TestIsTimeoutClassifier(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{context.DeadlineExceeded, true},
		{fakeNetErr{timeout: true}, true},
		{fakeNetErr{timeout: false}, false},
		{errors.New("plain"), false},
		{context.Canceled, false},
	}
	for _, tc := range cases {
		if got := isTimeout(tc.err); got != tc.want {
			t.Fatalf("isTimeout(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
