// Package audiomix implements the Audio Mix Engine: per-participant
// jitter buffering of incoming Opus audio, a single serialized mix tick
// that sums and personalizes a mix for every listener, and UDP fan-out of
// the re-encoded result.
package audiomix

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/hraban/opus.v2"

	"lanhub/internal/protocol"
	"lanhub/internal/registry"
)

const (
	SampleRate    = 48000
	Channels      = 1
	FrameDuration = 40 * time.Millisecond
	FrameSamples  = SampleRate * int(FrameDuration/time.Millisecond) / 1000 // 1920
)

type participantAudio struct {
	uid     uint64
	slot    *JitterSlot
	decoder *opus.Decoder
	encoder *opus.Encoder

	endpoint atomic.Pointer[net.UDPAddr]

	muteMu sync.Mutex
	muted  map[uint64]struct{}
}

// Mixer owns the audio UDP socket, per-participant jitter slots and
// codecs, and the periodic mix tick.
type Mixer struct {
	conn *net.UDPConn
	reg  *registry.Registry
	log  *slog.Logger

	mu           sync.RWMutex
	participants map[uint64]*participantAudio

	tickSeq uint32
}

// New binds the audio UDP socket on addr (host:port) and constructs a
// Mixer. The socket is not yet reading or ticking until Run is called.
func New(addr string, reg *registry.Registry, log *slog.Logger) (*Mixer, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Mixer{
		conn:         conn,
		reg:          reg,
		log:          log,
		participants: make(map[uint64]*participantAudio),
	}, nil
}

// Close releases the UDP socket.
func (m *Mixer) Close() error { return m.conn.Close() }

// Run drives ingress and the mix tick until ctx is canceled.
func (m *Mixer) Run(ctx context.Context) {
	go m.ingressLoop(ctx)
	m.tickLoop(ctx)
}

func (m *Mixer) getOrCreate(uid uint64) *participantAudio {
	m.mu.RLock()
	p, ok := m.participants[uid]
	m.mu.RUnlock()
	if ok {
		return p
	}

	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		m.log.Error("create opus decoder failed", slog.Uint64("uid", uid), slog.Any("err", err))
		return nil
	}
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppVoIP)
	if err != nil {
		m.log.Error("create opus encoder failed", slog.Uint64("uid", uid), slog.Any("err", err))
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.participants[uid]; ok {
		return p
	}
	p = &participantAudio{
		uid:     uid,
		slot:    NewJitterSlot(3),
		decoder: dec,
		encoder: enc,
		muted:   make(map[uint64]struct{}),
	}
	m.participants[uid] = p
	return p
}

// Remove drops a participant's audio state, called when its control
// session logs out or its connection closes.
func (m *Mixer) Remove(uid uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.participants, uid)
}

// SetMute updates uid's local mute set so that the mixer's personalized
// mix for uid excludes audio from peerUID.
func (m *Mixer) SetMute(uid, peerUID uint64, muted bool) {
	m.mu.RLock()
	p, ok := m.participants[uid]
	m.mu.RUnlock()
	if !ok {
		return
	}
	p.muteMu.Lock()
	defer p.muteMu.Unlock()
	if muted {
		p.muted[peerUID] = struct{}{}
	} else {
		delete(p.muted, peerUID)
	}
}

func (m *Mixer) ingressLoop(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			return
		}
		m.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			continue
		}
		hdr, payload, err := protocol.DecodeAudioHeader(buf[:n])
		if err != nil || hdr.Flags&protocol.AudioServerOrigin != 0 {
			continue
		}
		if _, ok := m.reg.Lookup(uint64(hdr.UID)); !ok {
			continue
		}
		p := m.getOrCreate(uint64(hdr.UID))
		if p == nil {
			continue
		}
		p.endpoint.Store(addr)

		pcm := make([]int16, FrameSamples)
		samples, err := p.decoder.Decode(payload, pcm)
		if err != nil {
			continue
		}
		p.slot.Push(hdr.Seq, pcm[:samples])
	}
}

func (m *Mixer) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Mixer) tick() {
	m.mu.RLock()
	ps := make([]*participantAudio, 0, len(m.participants))
	for _, p := range m.participants {
		ps = append(ps, p)
	}
	m.mu.RUnlock()

	sort.Slice(ps, func(i, j int) bool { return ps[i].uid < ps[j].uid })

	frames := make(map[uint64][]int16, len(ps))
	global := make([]int32, FrameSamples)
	for _, p := range ps {
		f := p.slot.Pop()
		p.slot.Silent()
		frames[p.uid] = f
		if f == nil {
			continue
		}
		for i, s := range f {
			global[i] += int32(s)
		}
	}

	m.tickSeq++
	seq := m.tickSeq

	for _, p := range ps {
		endpoint := p.endpoint.Load()
		if endpoint == nil {
			continue
		}
		personal := make([]int32, FrameSamples)
		copy(personal, global)
		subtract(personal, frames[p.uid])

		p.muteMu.Lock()
		for peer := range p.muted {
			subtract(personal, frames[peer])
		}
		p.muteMu.Unlock()

		pcmOut := make([]int16, FrameSamples)
		for i, v := range personal {
			pcmOut[i] = clampInt16(v)
		}

		outBuf := make([]byte, 4000)
		n, err := p.encoder.Encode(pcmOut, outBuf)
		if err != nil {
			m.log.Warn("opus encode failed", slog.Uint64("uid", p.uid), slog.Any("err", err))
			continue
		}
		dgram := protocol.EncodeAudioDatagram(protocol.AudioHeader{
			UID:   0,
			Seq:   seq,
			Flags: protocol.AudioServerOrigin,
		}, outBuf[:n])
		if _, err := m.conn.WriteToUDP(dgram, endpoint); err != nil {
			m.log.Warn("audio send failed", slog.Uint64("uid", p.uid), slog.Any("err", err))
		}
	}
}

func subtract(dst []int32, frame []int16) {
	if frame == nil {
		return
	}
	for i, s := range frame {
		if i >= len(dst) {
			break
		}
		dst[i] -= int32(s)
	}
}

func clampInt16(v int32) int16 {
	const max = 1<<15 - 1
	const min = -(1 << 15)
	if v > max {
		return max
	}
	if v < min {
		return min
	}
	return int16(v)
}
