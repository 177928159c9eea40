package stream

import (
	"sync"

	"github.com/fivetwenty-io/masto/pkg/masto"
)

type subscription struct {
	id      string
	channel masto.Channel
	handler masto.EventHandler
	owner   *Subscriber

	done chan struct{}
	once sync.Once
	err  error

	mu       sync.Mutex
	stopCtx  func() bool
	finished bool
}

var _ masto.Subscription = (*subscription)(nil)

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Channel() masto.Channel {
	return s.channel
}

// Unsubscribe is safe to call more than once.
func (s *subscription) Unsubscribe() error {
	s.owner.remove(s)

	return nil
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

// Err is nil until Done is closed, and nil after a plain Unsubscribe.
func (s *subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// active reports whether the subscription still receives events.
func (s *subscription) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.finished
}

// setStop records the context watcher, releasing it at once when the
// subscription already finished.
func (s *subscription) setStop(stop func() bool) {
	s.mu.Lock()

	if s.finished {
		s.mu.Unlock()
		stop()

		return
	}

	s.stopCtx = stop
	s.mu.Unlock()
}

func (s *subscription) finish(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)

		s.mu.Lock()
		s.finished = true
		stop := s.stopCtx
		s.mu.Unlock()

		if stop != nil {
			stop()
		}
	})
}
