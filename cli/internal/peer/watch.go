package peer

// stateWatcher delivers transport state changes one at a time from a
// single goroutine. Each wake-up reads the current state and reports it
// only if it differs from the last one delivered, so a late wake-up can
// never replace a newer state with an older one.
type stateWatcher struct {
	current func() TransportState
	deliver func(TransportState)
	wake    chan struct{}
}

func newStateWatcher(current func() TransportState, deliver func(TransportState)) *stateWatcher {
	return &stateWatcher{
		current: current,
		deliver: deliver,
		wake:    make(chan struct{}, 1),
	}
}

// kick never blocks. Pending wake-ups collapse into one.
func (w *stateWatcher) kick() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *stateWatcher) run(done <-chan struct{}) {
	last := TransportNew
	for {
		select {
		case <-done:
			return
		case <-w.wake:
		}
		s := w.current()
		if s == last {
			continue
		}
		last = s
		if w.deliver != nil {
			w.deliver(s)
		}
	}
}
