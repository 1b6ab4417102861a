package fetch

import "sync"

// Signal is a cooperative cancellation flag shared between the controller's
// poll goroutine and the transfer loop. Fire may be called from any goroutine
// and any number of times; Fired and Done observe the same single transition.
type Signal struct {
	once sync.Once
	done chan struct{}
}

func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Fire sets the signal. Subsequent calls are no-ops.
func (s *Signal) Fire() {
	s.once.Do(func() { close(s.done) })
}

// Fired reports whether the signal has been set.
func (s *Signal) Fired() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the signal fires.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
