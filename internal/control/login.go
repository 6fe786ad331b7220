package control

import (
	"log/slog"

	"lanhub/internal/protocol"
	"lanhub/internal/protocolerr"
)

// handleLogin processes the single message allowed in awaiting-login.
// Returns false if the connection should be closed.
func (s *Server) handleLogin(sess *session, env protocol.Envelope) bool {
	if env.Type != protocol.TypeLogin {
		s.sendError(sess, "login required")
		return false
	}

	uid, err := s.reg.Register(env.Username)
	if err != nil {
		s.sendError(sess, protocolerr.Reason(err))
		return false
	}

	sess.uid = uid
	sess.name = env.Username

	s.mu.Lock()
	s.sessions[uid] = sess
	s.mu.Unlock()

	s.send(sess, protocol.Envelope{Type: protocol.TypeLoginSuccess, UID: uid})
	s.send(sess, protocol.Envelope{Type: protocol.TypeParticipantList, Participants: s.participantList()})
	s.send(sess, protocol.Envelope{Type: protocol.TypeHistory, Messages: s.historyMessages()})

	s.broadcastExcept(uid, protocol.Envelope{Type: protocol.TypeUserJoined, UID: uid, Username: env.Username})

	s.log.Info("participant logged in", slog.Uint64("uid", uid), slog.String("name", env.Username))
	return true
}

func (s *Server) participantList() []protocol.ParticipantInfo {
	snap := s.reg.Snapshot()
	out := make([]protocol.ParticipantInfo, len(snap))
	for i, p := range snap {
		out[i] = protocol.ParticipantInfo{UID: p.UID, Username: p.Name}
	}
	return out
}

func (s *Server) historyMessages() []protocol.ChatMessage {
	entries := s.history.Snapshot()
	out := make([]protocol.ChatMessage, len(entries))
	for i, e := range entries {
		out[i] = protocol.ChatMessage{
			TS:        e.TS.Format(tsFormat),
			UID:       e.UID,
			Username:  e.Username,
			Text:      e.Text,
			Kind:      string(e.Kind),
			TargetUID: e.TargetUID,
		}
	}
	return out
}
