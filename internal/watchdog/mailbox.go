package watchdog

import "sync"

// Mailbox is a single-slot restart request queue.
//
// Producers call Offer, which never blocks: a request arriving while one is
// already pending is coalesced into it. The control loop is the only
// consumer. Close wakes the consumer for good.
type Mailbox struct {
	slot   chan struct{}
	closed chan struct{}

	once  sync.Once
	mu    sync.Mutex
	cause error
}

// NewMailbox returns an empty, open mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		slot:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Offer posts a restart request. Returns false if a request was already
// pending or the mailbox is closed.
func (m *Mailbox) Offer() bool {
	select {
	case <-m.closed:
		return false
	default:
	}

	select {
	case m.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// Pop blocks until a request is available (true) or the mailbox is closed
// (false). Once closed, Pop always returns false, even if a request was
// still pending.
func (m *Mailbox) Pop() bool {
	select {
	case <-m.closed:
		return false
	default:
	}

	select {
	case <-m.slot:
		return true
	case <-m.closed:
		return false
	}
}

// Pending reports whether a request is waiting.
func (m *Mailbox) Pending() bool {
	return len(m.slot) > 0
}

// Close closes the mailbox. The first call's cause is kept and reported by
// Err; later calls are no-ops.
func (m *Mailbox) Close(cause error) {
	m.once.Do(func() {
		m.mu.Lock()
		m.cause = cause
		m.mu.Unlock()
		close(m.closed)
	})
}

// Err returns the cause passed to Close (nil for a clean shutdown or while
// still open).
func (m *Mailbox) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cause
}
