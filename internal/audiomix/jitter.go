package audiomix

import "sync"

// ringSize is the number of frame slots retained per participant; a power
// of two so the playout cursor can be masked into an index cheaply.
const ringSize = 8
const ringMask = ringSize - 1

// minDepth and maxDepth bound the priming depth: 2-4 frames (80-160ms at
// 40ms/frame), per spec.
const minDepth = 2
const maxDepth = 4

// silenceTicks is how many consecutive empty pops mark a participant
// silent (400ms at 40ms/tick).
const silenceTicks = 10

// JitterSlot is a per-participant bounded reorder buffer for decoded PCM
// audio frames, keyed by a monotonic sequence number. Frames arriving out
// of order are inserted in-place; frames past the playout cursor are
// dropped.
type JitterSlot struct {
	mu      sync.Mutex
	ring    [ringSize][]int16
	present [ringSize]bool
	depth   int
	cursor  uint32
	primed  bool
	primeN  int

	missingStreak int
}

// NewJitterSlot constructs a slot targeting the given priming depth,
// clamped to [minDepth, maxDepth].
func NewJitterSlot(depth int) *JitterSlot {
	if depth < minDepth {
		depth = minDepth
	}
	if depth > maxDepth {
		depth = maxDepth
	}
	return &JitterSlot{depth: depth}
}

// Push inserts a decoded PCM frame at its sequence position. While the
// slot is priming, the cursor starts at the lowest sequence seen. Once
// primed, frames behind the playout cursor are dropped, and a frame more
// than a full ring ahead of the cursor is treated as a resync point, so a
// sender that jumps forward recovers instead of wedging.
func (s *JitterSlot) Push(seq uint32, pcm []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		if s.primeN == 0 || int32(seq-s.cursor) < 0 {
			s.cursor = seq
		}
		s.insert(seq, pcm)
		s.primeN++
		if s.primeN >= s.depth {
			s.primed = true
		}
		return
	}

	dist := int32(seq - s.cursor)
	switch {
	case dist < 0:
		// Late: arrived after its playout slot already passed. Drop.
		return
	case dist < ringSize:
		s.insert(seq, pcm)
	default:
		// Far ahead of the ring: sender likely restarted. Resync.
		s.clearLocked()
		s.cursor = seq
		s.insert(seq, pcm)
		s.primeN = 1
		if s.primeN >= s.depth {
			s.primed = true
		} else {
			s.primed = false
		}
	}
}

func (s *JitterSlot) insert(seq uint32, pcm []int16) {
	idx := seq & ringMask
	s.ring[idx] = pcm
	s.present[idx] = true
}

func (s *JitterSlot) clearLocked() {
	for i := range s.ring {
		s.ring[i] = nil
		s.present[i] = false
	}
}

// Pop returns the frame at the current playout cursor, or nil if absent
// (silence), and advances the cursor by one. It also updates the
// consecutive-silence streak used by Silent.
func (s *JitterSlot) Pop() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		s.missingStreak++
		return nil
	}

	idx := s.cursor & ringMask
	var frame []int16
	if s.present[idx] {
		frame = s.ring[idx]
		s.ring[idx] = nil
		s.present[idx] = false
	}
	s.cursor++

	if frame == nil {
		s.missingStreak++
	} else {
		s.missingStreak = 0
	}
	return frame
}

// Silent reports whether this slot has produced no frame for
// silenceTicks consecutive pops (400ms). The ring is cleared in this
// state but the participant itself is never unregistered.
func (s *JitterSlot) Silent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missingStreak >= silenceTicks {
		s.clearLocked()
		return true
	}
	return false
}
