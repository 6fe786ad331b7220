package control

import (
	"log/slog"

	"lanhub/internal/protocol"
	"lanhub/internal/transfer"
)

// onClose unregisters a session on transport close, logout, or a fatal
// protocol error: removes it from the registry and session table, fails
// any transfers it opened that are still pending-upload, drops its media
// state, and broadcasts exactly one user_left.
func (s *Server) onClose(sess *session) {
	s.reg.Unregister(sess.uid)

	s.mu.Lock()
	delete(s.sessions, sess.uid)
	s.mu.Unlock()

	sess.mu.Lock()
	fids := sess.offeredFIDs
	sess.mu.Unlock()
	for _, fid := range fids {
		if off, ok := s.broker.Lookup(fid); ok && off.State == transfer.StatePendingUpload {
			s.broker.FailOffer(fid, transfer.StateFailed)
		}
	}

	s.mediaMu.RLock()
	for _, m := range s.media {
		m.Remove(sess.uid)
	}
	s.mediaMu.RUnlock()

	s.broadcastAll(protocol.Envelope{Type: protocol.TypeUserLeft, UID: sess.uid, Username: sess.name})
	s.log.Info("participant logged out", slog.Uint64("uid", sess.uid), slog.String("name", sess.name))
}
