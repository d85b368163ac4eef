package store

import (
	"context"
	"sync"
)

// subscriber decouples writers from a slow onChange callback. push never
// blocks; if several versions arrive before the callback runs, only the
// latest is delivered.
type subscriber struct {
	onChange ChangeFunc

	mu         sync.Mutex
	pending    []byte
	hasPending bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscriber(onChange ChangeFunc) *subscriber {
	return &subscriber{
		onChange: onChange,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (s *subscriber) push(doc []byte) {
	s.mu.Lock()
	s.pending = doc
	s.hasPending = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.wake:
		}
		s.mu.Lock()
		doc, ok := s.pending, s.hasPending
		s.pending, s.hasPending = nil, false
		s.mu.Unlock()
		if ok {
			s.onChange(doc)
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}
