package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// OpenUpload binds a fresh ephemeral TCP listener, accepts exactly one
// connection within TransferDeadline, streams size bytes to a temp file
// under the upload directory, and atomically renames it into place on
// success. onAvailable is invoked (off the accept goroutine) once the
// offer transitions to available, so the caller can broadcast
// file_available.
func (b *Broker) OpenUpload(ctx context.Context, off *Offer, onAvailable func(*Offer)) (port int, err error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, fmt.Errorf("bind upload listener: %w", err)
	}
	port = ln.Addr().(*net.TCPAddr).Port
	b.registerSession(port, off.FID)

	go func() {
		defer b.releaseSession(port)
		defer ln.Close()

		deadline := time.Now().Add(TransferDeadline)
		type acceptResult struct {
			conn net.Conn
			err  error
		}
		acceptCh := make(chan acceptResult, 1)
		go func() {
			c, e := ln.Accept()
			acceptCh <- acceptResult{c, e}
		}()

		var conn net.Conn
		select {
		case r := <-acceptCh:
			if r.err != nil {
				b.log.Warn("upload accept failed", slog.String("fid", off.FID), slog.Any("err", r.err))
				b.FailOffer(off.FID, StateFailed)
				return
			}
			conn = r.conn
		case <-time.After(time.Until(deadline)):
			b.log.Info("upload deadline expired before connect", slog.String("fid", off.FID))
			b.FailOffer(off.FID, StateExpired)
			return
		case <-ctx.Done():
			b.FailOffer(off.FID, StateFailed)
			return
		}
		defer conn.Close()
		conn.SetDeadline(deadline)

		if err := b.receiveUpload(off, conn); err != nil {
			b.log.Warn("upload failed", slog.String("fid", off.FID), slog.Any("err", err))
			b.FailOffer(off.FID, StateFailed)
			return
		}
		if onAvailable != nil {
			onAvailable(off)
		}
	}()

	return port, nil
}

// receiveUpload reads exactly off.Size bytes from conn to a temp file
// under the upload directory and atomically renames it to its final,
// collision-resolved name, mirroring the temp-then-rename pattern used for
// disk-backed blob writes.
func (b *Broker) receiveUpload(off *Offer, conn net.Conn) error {
	tmp, err := os.CreateTemp(b.uploadDir, "upload-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	n, copyErr := io.CopyN(tmp, conn, off.Size)
	closeErr := tmp.Close()
	if copyErr != nil || n != off.Size {
		os.Remove(tmpPath)
		if copyErr != nil {
			return fmt.Errorf("short upload (%d/%d bytes): %w", n, off.Size, copyErr)
		}
		return fmt.Errorf("short upload (%d/%d bytes)", n, off.Size)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	finalPath := b.resolveFinalPath(off)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}

	b.log.Info("upload complete", slog.String("fid", off.FID), slog.String("size", humanize.Bytes(uint64(off.Size))))
	b.markAvailable(off.FID, finalPath)
	return nil
}

// resolveFinalPath picks the destination path for a completed upload,
// appending a fid prefix on collision with an existing file.
func (b *Broker) resolveFinalPath(off *Offer) string {
	candidate := filepath.Join(b.uploadDir, off.Filename)
	if _, err := os.Stat(candidate); err != nil {
		return candidate
	}
	ext := filepath.Ext(off.Filename)
	base := strings.TrimSuffix(off.Filename, ext)
	prefix := off.FID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return filepath.Join(b.uploadDir, base+"-"+prefix+ext)
}
