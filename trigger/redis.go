package trigger

import (
	"context"
	"errors"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

var ErrNilClient = errors.New("trigger: nil redis client")

// Redis is a cross-process bus over Redis pub/sub. A trigger fired in
// one process reaches every subscriber in every process. Handlers run on
// a dispatch goroutine per subscription, one message at a time.
type Redis struct {
	rdb    goredis.UniversalClient
	prefix string
}

var _ Bus = (*Redis)(nil)

// NewRedis wraps an existing client. The prefix namespaces the pub/sub
// channels so trigger names cannot collide with other users of the
// connection; empty means no prefix.
func NewRedis(client goredis.UniversalClient, prefix string) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: client, prefix: prefix}, nil
}

func (r *Redis) channel(name string) string { return r.prefix + name }

func (r *Redis) Subscribe(name string, fn Handler) (Subscription, error) {
	ps := r.rdb.Subscribe(context.Background(), r.channel(name))
	// force the subscription onto the wire before returning
	if _, err := ps.Receive(context.Background()); err != nil {
		_ = ps.Close()
		return nil, err
	}
	sub := &redisSub{ps: ps}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		for range ps.Channel() {
			fn()
		}
	}()
	return sub, nil
}

// Fire publishes the trigger to every subscribed process.
func (r *Redis) Fire(ctx context.Context, name string) error {
	return r.rdb.Publish(ctx, r.channel(name), "1").Err()
}

type redisSub struct {
	ps   *goredis.PubSub
	once sync.Once
	wg   sync.WaitGroup
	err  error
}

func (s *redisSub) Close() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		s.wg.Wait()
	})
	return s.err
}
