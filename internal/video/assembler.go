// Package video implements the Video/Screen Fan-out: per-sender chunked
// JPEG frame reassembly and rebroadcast to all other participants.
package video

import (
	"sync"
	"time"

	"lanhub/internal/protocol"
)

// partialTimeout discards an incomplete frame older than this.
const partialTimeout = 500 * time.Millisecond

// retentionWindow bounds how far behind the latest frame_id an assembler
// still tracks, to cap memory.
const retentionWindow = 8

type partialFrame struct {
	chunkTotal uint16
	chunks     map[uint16][]byte
	firstSeen  time.Time
}

// Assembler reassembles chunked frames for one (sender_uid, stream_kind)
// pair.
type Assembler struct {
	mu      sync.Mutex
	frames  map[uint32]*partialFrame
	latest  uint32
	haveAny bool
}

// NewAssembler constructs an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{frames: make(map[uint32]*partialFrame)}
}

// Insert records one chunk. It returns the complete frame bytes and true
// if this chunk completed its frame.
func (a *Assembler) Insert(h protocol.VideoHeader, payload []byte) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.evictOld(h.FrameID)

	f, ok := a.frames[h.FrameID]
	if !ok {
		f = &partialFrame{
			chunkTotal: h.ChunkTotal,
			chunks:     make(map[uint16][]byte, h.ChunkTotal),
			firstSeen:  time.Now(),
		}
		a.frames[h.FrameID] = f
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	f.chunks[h.ChunkIndex] = buf

	if !a.haveAny || h.FrameID > a.latest {
		a.latest = h.FrameID
		a.haveAny = true
	}

	if len(f.chunks) < int(f.chunkTotal) {
		return nil, false
	}

	total := 0
	for i := uint16(0); i < f.chunkTotal; i++ {
		total += len(f.chunks[i])
	}
	complete := make([]byte, 0, total)
	for i := uint16(0); i < f.chunkTotal; i++ {
		complete = append(complete, f.chunks[i]...)
	}
	delete(a.frames, h.FrameID)
	return complete, true
}

// evictOld discards partial frames older than partialTimeout and frames
// whose id is more than retentionWindow behind the latest seen frame_id.
// Caller must hold a.mu.
func (a *Assembler) evictOld(incomingID uint32) {
	now := time.Now()
	highWater := incomingID
	if a.haveAny && a.latest > highWater {
		highWater = a.latest
	}
	for id, f := range a.frames {
		if now.Sub(f.firstSeen) > partialTimeout {
			delete(a.frames, id)
			continue
		}
		if highWater >= retentionWindow && id < highWater-retentionWindow {
			delete(a.frames, id)
		}
	}
}
