// Command loadbot is a synthetic client that logs into a running hub and
// streams a repeating 1 kHz tone over the audio socket, useful for
// exercising the Mix Engine's self-exclusion behavior without a real
// microphone. It synthesizes and Opus-encodes the tone at runtime rather
// than shipping a pre-encoded asset.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/hraban/opus.v2"

	"lanhub/internal/protocol"
)

func main() {
	controlAddr := flag.String("control-addr", "127.0.0.1:9000", "hub control channel address")
	audioAddr := flag.String("audio-addr", "127.0.0.1:11000", "hub audio UDP address")
	name := flag.String("name", "loadbot", "display name to log in with")
	freq := flag.Float64("freq", 1000, "tone frequency in Hz")
	duration := flag.Duration("duration", 0, "how long to stream (0 = until interrupted)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		var dcancel context.CancelFunc
		ctx, dcancel = context.WithTimeout(ctx, *duration)
		defer dcancel()
	}

	if err := runBot(ctx, log, *controlAddr, *audioAddr, *name, *freq); err != nil {
		log.Error("loadbot failed", slog.Any("err", err))
		os.Exit(1)
	}
}

const (
	sampleRate   = 48000
	channels     = 1
	frameSamples = 1920 // 40ms at 48kHz
	frameDur     = 40 * time.Millisecond
)

func runBot(ctx context.Context, log *slog.Logger, controlAddr, audioAddr, name string, freq float64) error {
	conn, err := net.Dial("tcp", controlAddr)
	if err != nil {
		return fmt.Errorf("dial control: %w", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	loginLine, err := protocol.Encode(protocol.Envelope{Type: protocol.TypeLogin, Username: name})
	if err != nil {
		return err
	}
	if _, err := conn.Write(loginLine); err != nil {
		return fmt.Errorf("send login: %w", err)
	}

	line, err := reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read login_success: %w", err)
	}
	resp, err := protocol.Decode(line)
	if err != nil || resp.Type != protocol.TypeLoginSuccess {
		return fmt.Errorf("login failed: %s", line)
	}
	uid := resp.UID
	log.Info("logged in", slog.Uint64("uid", uid))

	// drain participant_list/history, ignore contents
	conn.SetReadDeadline(time.Now().Add(time.Second))
	reader.ReadBytes('\n')
	reader.ReadBytes('\n')
	conn.SetReadDeadline(time.Time{})

	udpAddr, err := net.ResolveUDPAddr("udp", audioAddr)
	if err != nil {
		return fmt.Errorf("resolve audio addr: %w", err)
	}
	audioConn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return fmt.Errorf("dial audio: %w", err)
	}
	defer audioConn.Close()

	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}

	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()

	var seq uint32
	var phase float64
	phaseStep := 2 * math.Pi * freq / sampleRate

	for {
		select {
		case <-ctx.Done():
			logout, _ := protocol.Encode(protocol.Envelope{Type: protocol.TypeLogout})
			conn.Write(logout)
			return nil
		case <-ticker.C:
			pcm := make([]int16, frameSamples)
			for i := range pcm {
				pcm[i] = int16(0.25 * math.MaxInt16 * math.Sin(phase))
				phase += phaseStep
				if phase > 2*math.Pi {
					phase -= 2 * math.Pi
				}
			}
			out := make([]byte, 4000)
			n, err := enc.Encode(pcm, out)
			if err != nil {
				log.Warn("opus encode failed", slog.Any("err", err))
				continue
			}
			dgram := protocol.EncodeAudioDatagram(protocol.AudioHeader{UID: uint32(uid), Seq: seq}, out[:n])
			if _, err := audioConn.Write(dgram); err != nil {
				log.Warn("audio send failed", slog.Any("err", err))
			}
			seq++
		}
	}
}
