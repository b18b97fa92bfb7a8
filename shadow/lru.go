package shadow

import (
	"bytes"

	rc "github.com/dgraph-io/ristretto"
)

// lru is the bounded shadow, backed by ristretto with one unit of cost
// per entry. Admission is probabilistic, which is fine here: a rejected
// Put only costs a future re-deserialization.
type lru struct {
	c *rc.Cache
}

func newLRU(maxEntries int64) (*lru, error) {
	c, err := rc.NewCache(&rc.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &lru{c: c}, nil
}

func (l *lru) Get(field string, raw []byte) (any, bool) {
	v, ok := l.c.Get(field)
	if !ok {
		return nil, false
	}
	e, ok := v.(entry)
	if !ok {
		// unexpected entry shape; drop it
		l.c.Del(field)
		return nil, false
	}
	if !bytes.Equal(e.raw, raw) {
		return nil, false
	}
	return e.val, true
}

func (l *lru) Stale(field string) (any, bool) {
	v, ok := l.c.Get(field)
	if !ok {
		return nil, false
	}
	e, ok := v.(entry)
	if !ok {
		l.c.Del(field)
		return nil, false
	}
	return e.val, true
}

func (l *lru) Put(field string, raw []byte, v any) {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	l.c.Set(field, entry{raw: cp, val: v}, 1)
}

func (l *lru) Del(field string) { l.c.Del(field) }

func (l *lru) Clear() { l.c.Clear() }

func (l *lru) Close() { l.c.Close() }

// wait flushes ristretto's set buffers. Tests only.
func (l *lru) wait() { l.c.Wait() }
