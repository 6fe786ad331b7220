// Package transfer implements the File Transfer Broker: ephemeral
// reliable listeners for upload/download of offered files, tracked by a
// server-generated fid.
package transfer

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lanhub/internal/protocolerr"
)

// MaxFileSize is the declared-size cap for a file_offer, 100 MiB.
const MaxFileSize = 100 * 1024 * 1024

// TransferDeadline is how long an ephemeral listener waits for its one
// connection before the transfer is abandoned.
const TransferDeadline = 5 * time.Minute

// State is a FileOffer's lifecycle state.
type State string

const (
	StatePendingUpload State = "pending-upload"
	StateAvailable     State = "available"
	StateExpired       State = "expired"
	StateFailed        State = "failed"
)

// Offer is one file_offer's tracked metadata.
type Offer struct {
	FID       string
	Filename  string
	Size      int64
	Offerer   uint64
	Created   time.Time
	Path      string
	State     State
}

// Broker owns the fid->Offer map and the set of live ephemeral
// TransferSessions, and stands up listeners on demand.
type Broker struct {
	uploadDir string
	log       *slog.Logger

	mu     sync.Mutex
	offers map[string]*Offer

	sessMu   sync.Mutex
	sessions map[int]*session // keyed by port
}

type session struct {
	fid      string
	port     int
	deadline time.Time
}

// New constructs a Broker rooted at uploadDir, which must already exist.
func New(uploadDir string, log *slog.Logger) *Broker {
	return &Broker{
		uploadDir: uploadDir,
		log:       log,
		offers:    make(map[string]*Offer),
		sessions:  make(map[int]*session),
	}
}

// sanitizeFilename strips any directory components, rejecting a result
// that sanitizes to empty.
func sanitizeFilename(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == "/" || base == ".." {
		return "", protocolerr.ErrBadFilename
	}
	return base, nil
}

// NewOffer validates and records a file_offer, returning the generated fid.
func (b *Broker) NewOffer(filename string, size int64, offerer uint64) (*Offer, error) {
	if size > MaxFileSize {
		return nil, protocolerr.ErrSizeLimit
	}
	clean, err := sanitizeFilename(filename)
	if err != nil {
		return nil, err
	}
	fid := uuid.New().String()
	off := &Offer{
		FID:      fid,
		Filename: clean,
		Size:     size,
		Offerer:  offerer,
		Created:  time.Now(),
		State:    StatePendingUpload,
	}
	b.mu.Lock()
	b.offers[fid] = off
	b.mu.Unlock()
	return off, nil
}

// Lookup resolves a fid to its Offer.
func (b *Broker) Lookup(fid string) (*Offer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.offers[fid]
	return o, ok
}

// FailOffer marks an offer failed or expired, e.g. on deadline expiry or
// I/O error, or because the owning control session closed mid-upload.
func (b *Broker) FailOffer(fid string, st State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.offers[fid]; ok {
		o.State = st
	}
}

func (b *Broker) markAvailable(fid, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.offers[fid]; ok {
		o.State = StateAvailable
		o.Path = path
	}
}

func (b *Broker) registerSession(port int, fid string) {
	b.sessMu.Lock()
	b.sessions[port] = &session{fid: fid, port: port, deadline: time.Now().Add(TransferDeadline)}
	b.sessMu.Unlock()
}

func (b *Broker) releaseSession(port int) {
	b.sessMu.Lock()
	delete(b.sessions, port)
	b.sessMu.Unlock()
}

// ActivePorts returns the ports currently bound by live TransferSessions.
func (b *Broker) ActivePorts() []int {
	b.sessMu.Lock()
	defer b.sessMu.Unlock()
	out := make([]int, 0, len(b.sessions))
	for p := range b.sessions {
		out = append(out, p)
	}
	return out
}
