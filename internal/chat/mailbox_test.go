package chat

import "testing"

func TestMailboxFIFO(t *testing.T) {
	m := NewMailbox()
	m.Enqueue([]byte("1"))
	m.Enqueue([]byte("2"))
	m.Enqueue([]byte("3"))

	got := m.Drain()
	if len(got) != 3 {
		t.Fatalf("len(drain) = %d, want 3", len(got))
	}
	for i, want := range []string{"1", "2", "3"} {
		if string(got[i]) != want {
			t.Fatalf("frame %d = %q, want %q", i, got[i], want)
		}
	}
}

func TestMailboxDropsOldestOnOverflow(t *testing.T) {
	m := NewMailbox()
	for i := 0; i < mailboxCap+10; i++ {
		m.Enqueue([]byte{byte(i)})
	}
	got := m.Drain()
	if len(got) != mailboxCap {
		t.Fatalf("len(drain) = %d, want %d", len(got), mailboxCap)
	}
	if got[0][0] != byte(10) {
		t.Fatalf("oldest surviving frame = %d, want 10", got[0][0])
	}
	if m.Dropped() != 10 {
		t.Fatalf("Dropped() = %d, want 10", m.Dropped())
	}
}

func TestMailboxNeverBlocksOnFullQueue(t *testing.T) {
	m := NewMailbox()
	done := make(chan struct{})
	go func() {
		for i := 0; i < mailboxCap*3; i++ {
			m.Enqueue([]byte{byte(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	<-done // would hang forever if Enqueue ever blocked on a full queue
}

func TestMailboxCloseStopsEnqueue(t *testing.T) {
	m := NewMailbox()
	m.Close()
	m.Enqueue([]byte("x"))
	if got := m.Drain(); len(got) != 0 {
		t.Fatalf("drain after close = %v, want empty", got)
	}
}
