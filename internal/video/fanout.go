package video

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"lanhub/internal/protocol"
	"lanhub/internal/registry"
)

// maxChunkPayload keeps outgoing chunks MTU-safe.
const maxChunkPayload = 1400

type assemblerKey struct {
	uid  uint64
	kind protocol.StreamKind
}

// Fanout owns the video UDP socket, per-(uid,stream_kind) frame
// assemblers, and rebroadcast of complete frames to every other
// participant's learned endpoint.
type Fanout struct {
	conn *net.UDPConn
	reg  *registry.Registry
	log  *slog.Logger

	mu         sync.Mutex
	assemblers map[assemblerKey]*Assembler
	endpoints  map[uint64]*net.UDPAddr
}

// New binds the video UDP socket on addr and constructs a Fanout.
func New(addr string, reg *registry.Registry, log *slog.Logger) (*Fanout, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Fanout{
		conn:       conn,
		reg:        reg,
		log:        log,
		assemblers: make(map[assemblerKey]*Assembler),
		endpoints:  make(map[uint64]*net.UDPAddr),
	}, nil
}

// Close releases the UDP socket.
func (f *Fanout) Close() error { return f.conn.Close() }

// Remove drops a participant's endpoint and per-stream assemblers,
// called when its control session logs out.
func (f *Fanout) Remove(uid uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.endpoints, uid)
	delete(f.assemblers, assemblerKey{uid, protocol.StreamWebcam})
	delete(f.assemblers, assemblerKey{uid, protocol.StreamScreen})
}

// Run drives ingress until ctx is canceled.
func (f *Fanout) Run(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			return
		}
		f.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			continue
		}
		hdr, payload, err := protocol.DecodeVideoHeader(buf[:n])
		if err != nil {
			continue
		}
		if _, ok := f.reg.Lookup(uint64(hdr.SenderUID)); !ok {
			continue
		}
		f.handleChunk(hdr, payload, addr)
	}
}

func (f *Fanout) handleChunk(hdr protocol.VideoHeader, payload []byte, addr *net.UDPAddr) {
	uid := uint64(hdr.SenderUID)

	f.mu.Lock()
	f.endpoints[uid] = addr
	key := assemblerKey{uid, hdr.StreamKind}
	asm, ok := f.assemblers[key]
	if !ok {
		asm = NewAssembler()
		f.assemblers[key] = asm
	}
	f.mu.Unlock()

	complete, done := asm.Insert(hdr, payload)
	if !done {
		return
	}
	f.rebroadcast(uid, hdr.StreamKind, hdr.FrameID, complete)
}

// rebroadcast re-chunks a complete frame and sends it to every other
// participant's learned video endpoint.
func (f *Fanout) rebroadcast(senderUID uint64, kind protocol.StreamKind, frameID uint32, frame []byte) {
	chunkTotal := (len(frame) + maxChunkPayload - 1) / maxChunkPayload
	if chunkTotal == 0 {
		chunkTotal = 1
	}

	f.mu.Lock()
	targets := make([]*net.UDPAddr, 0, len(f.endpoints))
	for uid, ep := range f.endpoints {
		if uid == senderUID {
			continue
		}
		targets = append(targets, ep)
	}
	f.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	for i := 0; i < chunkTotal; i++ {
		start := i * maxChunkPayload
		end := start + maxChunkPayload
		if end > len(frame) {
			end = len(frame)
		}
		dgram := protocol.EncodeVideoDatagram(protocol.VideoHeader{
			SenderUID:  uint32(senderUID),
			StreamKind: kind,
			FrameID:    frameID,
			ChunkIndex: uint16(i),
			ChunkTotal: uint16(chunkTotal),
		}, frame[start:end])

		for _, ep := range targets {
			if _, err := f.conn.WriteToUDP(dgram, ep); err != nil {
				f.log.Warn("video send failed", slog.Uint64("sender_uid", senderUID), slog.Any("err", err))
			}
		}
	}
}
