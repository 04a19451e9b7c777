package chat

import (
	"context"
	"sync"
)

// sequencer hands out per-key slots in FIFO order. sync.Mutex makes no
// ordering promise, so waiters queue on their own channels instead.
type sequencer struct {
	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{waiters: make(map[string][]chan struct{})}
}

func (s *sequencer) acquire(ctx context.Context, key string) (func(), error) {
	ch := make(chan struct{})

	s.mu.Lock()
	queue := s.waiters[key]
	s.waiters[key] = append(queue, ch)
	if len(queue) == 0 {
		close(ch)
	}
	s.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() { s.release(key, ch) })
	}

	select {
	case <-ch:
		return release, nil
	case <-ctx.Done():
		// the slot may have been granted while ctx fired; release either way
		release()
		return nil, ctx.Err()
	}
}

// release removes ch from the queue and wakes the next waiter if ch was at the head.
func (s *sequencer) release(key string, ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.waiters[key]
	for i, c := range queue {
		if c != ch {
			continue
		}
		queue = append(queue[:i:i], queue[i+1:]...)
		if i == 0 && len(queue) > 0 {
			close(queue[0])
		}
		break
	}

	if len(queue) == 0 {
		delete(s.waiters, key)
		return
	}
	s.waiters[key] = queue
}

func (s *sequencer) pending(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters[key])
}
