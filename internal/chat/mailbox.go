package chat

import "sync"

// mailboxCap bounds each session's outbound queue at 256 frames per spec.
const mailboxCap = 256

// Mailbox is a bounded, drop-oldest outbound queue for one session. A
// broadcast enqueues without blocking; a dedicated writer goroutine drains
// it. Overflow drops the oldest queued frame and increments Dropped rather
// than blocking the sender or closing the session.
type Mailbox struct {
	mu      sync.Mutex
	queue   [][]byte
	notify  chan struct{}
	closed  bool
	dropped uint64
}

// NewMailbox constructs an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{notify: make(chan struct{}, 1)}
}

// Enqueue appends frame, dropping the oldest queued frame first if the
// mailbox is already at capacity. Never blocks.
func (m *Mailbox) Enqueue(frame []byte) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if len(m.queue) >= mailboxCap {
		m.queue = m.queue[1:]
		m.dropped++
	}
	m.queue = append(m.queue, frame)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns every currently queued frame, in FIFO order.
func (m *Mailbox) Drain() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

// Notify is signaled (non-blocking, coalesced) whenever Enqueue adds a
// frame to a previously-empty drain cycle; the writer goroutine selects on
// it to know when to wake up and Drain.
func (m *Mailbox) Notify() <-chan struct{} {
	return m.notify
}

// Close marks the mailbox closed; further Enqueue calls are no-ops.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// Dropped returns the slow-consumer counter: how many frames have been
// evicted due to overflow over this mailbox's lifetime.
func (m *Mailbox) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
