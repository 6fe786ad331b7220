package control

import (
	"context"
	"log/slog"

	"lanhub/internal/protocol"
	"lanhub/internal/protocolerr"
	"lanhub/internal/transfer"
)

func (s *Server) handleFileOffer(ctx context.Context, sess *session, env protocol.Envelope) {
	off, err := s.broker.NewOffer(env.Filename, env.Size, sess.uid)
	if err != nil {
		s.sendError(sess, protocolerr.Reason(err))
		return
	}

	sess.mu.Lock()
	sess.offeredFIDs = append(sess.offeredFIDs, off.FID)
	sess.mu.Unlock()

	port, err := s.broker.OpenUpload(ctx, off, func(o *transfer.Offer) {
		s.broadcastAll(protocol.Envelope{
			Type:     protocol.TypeFileAvailable,
			FID:      o.FID,
			Filename: o.Filename,
			Size:     o.Size,
			Offerer:  o.Offerer,
			OfferName: s.participantName(o.Offerer),
		})
	})
	if err != nil {
		s.log.Error("open upload listener failed", slog.String("fid", off.FID), slog.Any("err", err))
		s.sendError(sess, protocolerr.Reason(protocolerr.ErrNoPort))
		return
	}

	s.send(sess, protocol.Envelope{Type: protocol.TypeFileUploadPort, Port: port, FID: off.FID})
}

func (s *Server) handleFileRequest(sess *session, env protocol.Envelope) {
	off, ok := s.broker.Lookup(env.FID)
	if !ok {
		s.sendError(sess, protocolerr.Reason(protocolerr.ErrUnknownFID))
		return
	}
	port, err := s.broker.OpenDownload(off)
	if err != nil {
		s.sendError(sess, protocolerr.Reason(err))
		return
	}
	s.send(sess, protocol.Envelope{
		Type:     protocol.TypeFileDownloadPort,
		Port:     port,
		FID:      off.FID,
		Filename: off.Filename,
		Size:     off.Size,
	})
}

func (s *Server) participantName(uid uint64) string {
	p, ok := s.reg.Lookup(uid)
	if !ok {
		return ""
	}
	return p.Name
}
