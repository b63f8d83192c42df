package docstore

import (
	"context"
	"sync"
)

// notifySub re-reads a collection each time it is signalled and hands the
// snapshot to fn. Signals that arrive while a read is in progress coalesce
// into a single follow-up read.
type notifySub struct {
	collection string
	load       func(ctx context.Context) ([]Document, error)
	fn         SnapshotFunc
	notify     chan struct{}
	cancel     context.CancelFunc
	stopOnce   sync.Once
	onStop     func(*notifySub)

	mu  sync.Mutex
	err error
}

func startNotifySub(
	parent context.Context,
	collection string,
	load func(ctx context.Context) ([]Document, error),
	fn SnapshotFunc,
	reg *subRegistry,
) *notifySub {
	ctx, cancel := context.WithCancel(parent)
	s := &notifySub{
		collection: collection,
		load:       load,
		fn:         fn,
		notify:     make(chan struct{}, 1),
		cancel:     cancel,
	}
	if reg != nil {
		s.onStop = reg.remove
		reg.add(s)
	}
	go s.run(ctx)
	return s
}

func (s *notifySub) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// fail makes the subscription report err and end.
func (s *notifySub) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.signal()
}

func (s *notifySub) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop ends the subscription. A callback already in progress may complete.
func (s *notifySub) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.onStop != nil {
			s.onStop(s)
		}
	})
}

func (s *notifySub) run(ctx context.Context) {
	defer s.Stop()

	if !s.deliver(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
			if err := s.failure(); err != nil {
				if ctx.Err() == nil {
					s.fn(nil, err)
				}
				return
			}
			if !s.deliver(ctx) {
				return
			}
		}
	}
}

func (s *notifySub) deliver(ctx context.Context) bool {
	docs, err := s.load(ctx)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		s.fn(nil, err)
		return false
	}
	s.fn(docs, nil)
	return true
}

// subRegistry tracks notify subscriptions by collection.
type subRegistry struct {
	mu   sync.Mutex
	subs map[string]map[*notifySub]struct{}
}

func newSubRegistry() *subRegistry {
	return &subRegistry{subs: make(map[string]map[*notifySub]struct{})}
}

func (r *subRegistry) add(s *notifySub) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[s.collection]
	if !ok {
		set = make(map[*notifySub]struct{})
		r.subs[s.collection] = set
	}
	set[s] = struct{}{}
}

func (r *subRegistry) remove(s *notifySub) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.subs[s.collection]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.subs, s.collection)
		}
	}
}

func (r *subRegistry) signal(collection string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.subs[collection] {
		s.signal()
	}
}

// failAll ends every subscription with err.
func (r *subRegistry) failAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, set := range r.subs {
		for s := range set {
			s.fail(err)
		}
	}
}

func (r *subRegistry) collections() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subs))
	for c := range r.subs {
		out = append(out, c)
	}
	return out
}

func (r *subRegistry) stopAll() {
	r.mu.Lock()
	all := make([]*notifySub, 0)
	for _, set := range r.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Stop()
	}
}

func (r *subRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, set := range r.subs {
		n += len(set)
	}
	return n
}
