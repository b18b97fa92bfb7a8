package trigger

import "sync"

// Local is an in-process bus. Fire runs every handler attached to the
// name synchronously on the calling goroutine.
type Local struct {
	mu       sync.Mutex
	seq      int
	handlers map[string]map[int]Handler
}

var _ Bus = (*Local)(nil)

func NewLocal() *Local {
	return &Local{handlers: make(map[string]map[int]Handler)}
}

func (l *Local) Subscribe(name string, fn Handler) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hs, ok := l.handlers[name]
	if !ok {
		hs = make(map[int]Handler)
		l.handlers[name] = hs
	}
	l.seq++
	id := l.seq
	hs[id] = fn
	return &localSub{bus: l, name: name, id: id}, nil
}

// Fire invokes all handlers attached to name, synchronously.
func (l *Local) Fire(name string) {
	l.mu.Lock()
	hs := make([]Handler, 0, len(l.handlers[name]))
	for _, fn := range l.handlers[name] {
		hs = append(hs, fn)
	}
	l.mu.Unlock()
	for _, fn := range hs {
		fn()
	}
}

type localSub struct {
	bus  *Local
	name string
	id   int
}

func (s *localSub) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if hs, ok := s.bus.handlers[s.name]; ok {
		delete(hs, s.id)
		if len(hs) == 0 {
			delete(s.bus.handlers, s.name)
		}
	}
	return nil
}
