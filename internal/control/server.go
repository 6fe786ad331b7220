// Package control implements the Control Channel Server: a TCP listener
// accepting line-delimited JSON control connections, each driven through
// the awaiting-login -> active -> closing state machine and dispatched by
// message type to the Session Registry, Chat & Presence Engine, and File
// Transfer Broker.
package control

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"lanhub/internal/chat"
	"lanhub/internal/protocol"
	"lanhub/internal/protocolerr"
	"lanhub/internal/registry"
	"lanhub/internal/transfer"
)

// maxLineLen is the 64 KiB frame cap from spec.md §4.B.
const maxLineLen = 64 * 1024

// rateLimitPerSec and rateLimitBurst bound inbound control messages per
// session so a flooding client can't starve the dispatch loop.
const rateLimitPerSec = 50
const rateLimitBurst = 100

// MediaRemover is implemented by the Audio Mix Engine and Video/Screen
// Fan-out so the control server can drop a participant's media state when
// its control session closes, without importing either package directly.
type MediaRemover interface {
	Remove(uid uint64)
}

// Server accepts control connections on a TCP port and drives each
// through the session lifecycle.
type Server struct {
	addr    string
	reg     *registry.Registry
	history *chat.History
	broker  *transfer.Broker
	log     *slog.Logger

	mediaMu sync.RWMutex
	media   []MediaRemover

	mu       sync.RWMutex
	sessions map[uint64]*session
}

// New constructs a Server. Listen must be called to start accepting.
func New(addr string, reg *registry.Registry, history *chat.History, broker *transfer.Broker, log *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		reg:      reg,
		history:  history,
		broker:   broker,
		log:      log,
		sessions: make(map[uint64]*session),
	}
}

// RegisterMedia attaches a media subsystem (audio mixer, video fan-out)
// whose Remove(uid) will be called whenever a control session closes.
func (s *Server) RegisterMedia(m MediaRemover) {
	s.mediaMu.Lock()
	defer s.mediaMu.Unlock()
	s.media = append(s.media, m)
}

// Listen binds the control TCP listener. Split from Serve so callers
// (tests in particular) can observe the bound address, e.g. when addr
// was given as ":0".
func (s *Server) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.addr)
}

// Run binds the listener and accepts connections until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on an already-bound listener until ctx is
// canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// session holds the per-connection state a control connection needs
// across the reader loop, independent of the Participant record the
// registry owns.
type session struct {
	uid     uint64
	name    string
	conn    net.Conn
	mailbox *chat.Mailbox
	limiter *rate.Limiter

	mu           sync.Mutex
	presenting   bool
	offeredFIDs  []string
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sess := &session{
		conn:    conn,
		mailbox: chat.NewMailbox(),
		limiter: rate.NewLimiter(rateLimitPerSec, rateLimitBurst),
	}
	closeCh := make(chan struct{})
	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		s.writeLoop(sess, closeCh)
	}()

	loggedIn := false
	defer func() {
		close(closeCh)
		writerWG.Wait()
		if loggedIn {
			s.onClose(sess)
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineLen)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if !sess.limiter.Allow() {
			continue
		}
		line := scanner.Bytes()
		env, err := protocol.Decode(line)
		if err != nil {
			s.sendError(sess, protocolerr.Reason(protocolerr.ErrMalformed))
			continue
		}

		if !loggedIn {
			ok := s.handleLogin(sess, env)
			if !ok {
				return
			}
			loggedIn = true
			continue
		}

		if !s.dispatchActive(ctx, sess, env) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			s.sendError(sess, protocolerr.Reason(protocolerr.ErrFrameTooLarge))
		}
	}
}

func (s *Server) writeLoop(sess *session, closeCh <-chan struct{}) {
	for {
		select {
		case <-sess.mailbox.Notify():
			s.flush(sess)
		case <-closeCh:
			s.flush(sess)
			return
		}
	}
}

func (s *Server) flush(sess *session) {
	for _, frame := range sess.mailbox.Drain() {
		if _, err := sess.conn.Write(frame); err != nil {
			return
		}
	}
}

func (s *Server) sendError(sess *session, reason string) {
	b, err := protocol.Encode(protocol.Envelope{Type: protocol.TypeError, Reason: reason})
	if err != nil {
		return
	}
	sess.mailbox.Enqueue(b)
}

func (s *Server) send(sess *session, env protocol.Envelope) {
	b, err := protocol.Encode(env)
	if err != nil {
		s.log.Error("encode outbound message failed", slog.String("type", env.Type), slog.Any("err", err))
		return
	}
	sess.mailbox.Enqueue(b)
}
