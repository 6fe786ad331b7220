package protocol

import (
	"encoding/binary"
	"errors"
)

// AudioHeaderLen is the fixed size, in bytes, of the audio datagram header.
const AudioHeaderLen = 16

// AudioServerOrigin is bit 0 of an AudioHeader's Flags field, set on mixed
// output produced by the server.
const AudioServerOrigin uint32 = 1 << 0

// AudioHeader is the fixed header prefixing every audio UDP datagram:
// {uid:u32, seq:u32, flags:u32, length:u32} followed by length bytes of
// Opus payload.
type AudioHeader struct {
	UID    uint32
	Seq    uint32
	Flags  uint32
	Length uint32
}

// ErrShortDatagram is returned when a datagram is too small to hold its
// declared fixed header.
var ErrShortDatagram = errors.New("datagram shorter than header")

// DecodeAudioHeader reads the fixed header from the front of buf and
// returns it along with the remaining payload slice (aliasing buf).
func DecodeAudioHeader(buf []byte) (AudioHeader, []byte, error) {
	if len(buf) < AudioHeaderLen {
		return AudioHeader{}, nil, ErrShortDatagram
	}
	h := AudioHeader{
		UID:    binary.BigEndian.Uint32(buf[0:4]),
		Seq:    binary.BigEndian.Uint32(buf[4:8]),
		Flags:  binary.BigEndian.Uint32(buf[8:12]),
		Length: binary.BigEndian.Uint32(buf[12:16]),
	}
	payload := buf[AudioHeaderLen:]
	if uint32(len(payload)) < h.Length {
		return AudioHeader{}, nil, ErrShortDatagram
	}
	return h, payload[:h.Length], nil
}

// EncodeAudioDatagram packs a header and Opus payload into one datagram.
func EncodeAudioDatagram(h AudioHeader, payload []byte) []byte {
	h.Length = uint32(len(payload))
	out := make([]byte, AudioHeaderLen+len(payload))
	binary.BigEndian.PutUint32(out[0:4], h.UID)
	binary.BigEndian.PutUint32(out[4:8], h.Seq)
	binary.BigEndian.PutUint32(out[8:12], h.Flags)
	binary.BigEndian.PutUint32(out[12:16], h.Length)
	copy(out[AudioHeaderLen:], payload)
	return out
}

// VideoHeaderLen is the fixed size, in bytes, of the video datagram header.
const VideoHeaderLen = 24

// StreamKind identifies which logical stream a video datagram belongs to.
type StreamKind uint8

const (
	StreamWebcam StreamKind = 0
	StreamScreen StreamKind = 1
)

// VideoHeader is the fixed header prefixing every video UDP datagram:
// {sender_uid:u32, stream_kind:u8, frame_id:u32, chunk_index:u16,
// chunk_total:u16, payload_len:u16, reserved:u8} followed by payload_len
// bytes of a JPEG slice.
type VideoHeader struct {
	SenderUID   uint32
	StreamKind  StreamKind
	FrameID     uint32
	ChunkIndex  uint16
	ChunkTotal  uint16
	PayloadLen  uint16
	Reserved    uint8
}

// DecodeVideoHeader reads the fixed header from the front of buf and
// returns it along with the remaining payload slice (aliasing buf).
func DecodeVideoHeader(buf []byte) (VideoHeader, []byte, error) {
	if len(buf) < VideoHeaderLen {
		return VideoHeader{}, nil, ErrShortDatagram
	}
	h := VideoHeader{
		SenderUID:  binary.BigEndian.Uint32(buf[0:4]),
		StreamKind: StreamKind(buf[4]),
		FrameID:    binary.BigEndian.Uint32(buf[5:9]),
		ChunkIndex: binary.BigEndian.Uint16(buf[9:11]),
		ChunkTotal: binary.BigEndian.Uint16(buf[11:13]),
		PayloadLen: binary.BigEndian.Uint16(buf[13:15]),
		Reserved:   buf[15],
	}
	// The fields above occupy 16 bytes but the wire size is 24 bytes;
	// bytes 16-23 are reserved padding for future use.
	payload := buf[VideoHeaderLen:]
	if uint16(len(payload)) < h.PayloadLen {
		return VideoHeader{}, nil, ErrShortDatagram
	}
	return h, payload[:h.PayloadLen], nil
}

// EncodeVideoDatagram packs a header and JPEG chunk payload into one datagram.
func EncodeVideoDatagram(h VideoHeader, payload []byte) []byte {
	h.PayloadLen = uint16(len(payload))
	out := make([]byte, VideoHeaderLen+len(payload))
	binary.BigEndian.PutUint32(out[0:4], h.SenderUID)
	out[4] = byte(h.StreamKind)
	binary.BigEndian.PutUint32(out[5:9], h.FrameID)
	binary.BigEndian.PutUint16(out[9:11], h.ChunkIndex)
	binary.BigEndian.PutUint16(out[11:13], h.ChunkTotal)
	binary.BigEndian.PutUint16(out[13:15], h.PayloadLen)
	out[15] = h.Reserved
	copy(out[VideoHeaderLen:], payload)
	return out
}
