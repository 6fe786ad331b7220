package transfer

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"lanhub/internal/protocolerr"
)

// OpenDownload binds a fresh ephemeral TCP listener for an available
// Offer, accepts exactly one connection within TransferDeadline, and
// streams the file to it. Concurrent downloads of the same fid each get
// their own listener and session.
func (b *Broker) OpenDownload(off *Offer) (port int, err error) {
	if off.State != StateAvailable {
		return 0, protocolerr.ErrNotAvailable
	}

	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, fmt.Errorf("bind download listener: %w", err)
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
				b.log.Warn("download accept failed", slog.String("fid", off.FID), slog.Any("err", r.err))
				return
			}
			conn = r.conn
		case <-time.After(time.Until(deadline)):
			b.log.Info("download deadline expired before connect", slog.String("fid", off.FID))
			return
		}
		defer conn.Close()
		conn.SetDeadline(deadline)

		f, err := os.Open(off.Path)
		if err != nil {
			b.log.Warn("open file for download failed", slog.String("fid", off.FID), slog.Any("err", err))
			return
		}
		defer f.Close()

		n, err := io.Copy(conn, f)
		if err != nil || n != off.Size {
			b.log.Warn("download short write", slog.String("fid", off.FID), slog.Int64("sent", n), slog.Any("err", err))
			return
		}
		b.log.Info("download complete", slog.String("fid", off.FID), slog.String("size", humanize.Bytes(uint64(n))))
	}()

	return port, nil
}
