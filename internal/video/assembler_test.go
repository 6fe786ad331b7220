package video

import (
	"bytes"
	"testing"
	"time"

	"lanhub/internal/protocol"
)

func TestAssemblerCompletesFrame(t *testing.T) {
	a := NewAssembler()
	chunks := [][]byte{[]byte("hello "), []byte("world")}

	for i, c := range chunks {
		h := protocol.VideoHeader{
			SenderUID:  1,
			StreamKind: protocol.StreamWebcam,
			FrameID:    42,
			ChunkIndex: uint16(i),
			ChunkTotal: uint16(len(chunks)),
		}
		frame, done := a.Insert(h, c)
		if i < len(chunks)-1 {
			if done {
				t.Fatalf("frame reported complete after chunk %d", i)
			}
			continue
		}
		if !done {
			t.Fatal("frame not reported complete after final chunk")
		}
		if !bytes.Equal(frame, []byte("hello world")) {
			t.Fatalf("reassembled frame = %q, want %q", frame, "hello world")
		}
	}
}

func TestAssemblerOutOfOrderChunks(t *testing.T) {
	a := NewAssembler()
	h := func(idx uint16) protocol.VideoHeader {
		return protocol.VideoHeader{FrameID: 1, ChunkIndex: idx, ChunkTotal: 3}
	}
	a.Insert(h(2), []byte("C"))
	a.Insert(h(0), []byte("A"))
	frame, done := a.Insert(h(1), []byte("B"))
	if !done {
		t.Fatal("frame should be complete after all 3 chunks, any order")
	}
	if string(frame) != "ABC" {
		t.Fatalf("frame = %q, want ABC", frame)
	}
}

func TestAssemblerDiscardsStalePartial(t *testing.T) {
	a := NewAssembler()
	h := protocol.VideoHeader{FrameID: 1, ChunkIndex: 0, ChunkTotal: 2}
	a.Insert(h, []byte("partial"))
	a.frames[1].firstSeen = time.Now().Add(-partialTimeout - time.Second)

	// Inserting a new frame triggers eviction of the stale partial.
	a.Insert(protocol.VideoHeader{FrameID: 2, ChunkIndex: 0, ChunkTotal: 1}, []byte("x"))

	if _, ok := a.frames[1]; ok {
		t.Fatal("stale partial frame was not evicted")
	}
}

func TestAssemblerRetentionWindow(t *testing.T) {
	a := NewAssembler()
	a.Insert(protocol.VideoHeader{FrameID: 1, ChunkIndex: 0, ChunkTotal: 2}, []byte("old"))
	a.Insert(protocol.VideoHeader{FrameID: 1 + retentionWindow + 1, ChunkIndex: 0, ChunkTotal: 2}, []byte("new"))

	if _, ok := a.frames[1]; ok {
		t.Fatal("frame older than retention window was not evicted")
	}
}
