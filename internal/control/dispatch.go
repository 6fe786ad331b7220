package control

import (
	"context"
	"time"

	"lanhub/internal/chat"
	"lanhub/internal/protocol"
	"lanhub/internal/protocolerr"
)

// tsFormat is the ISO-8601 timestamp format used on the wire.
const tsFormat = time.RFC3339Nano

// dispatchActive handles one message in the active phase. Returns false
// on logout, when the connection should be closed.
func (s *Server) dispatchActive(ctx context.Context, sess *session, env protocol.Envelope) bool {
	switch env.Type {
	case protocol.TypeHeartbeat:
		s.send(sess, protocol.Envelope{Type: protocol.TypeHeartbeatAck})

	case protocol.TypeChat:
		s.handleChatLike(sess, env.Text, chat.KindChat, protocol.TypeChat)

	case protocol.TypeBroadcast:
		s.handleChatLike(sess, env.Text, chat.KindBroadcast, protocol.TypeBroadcast)

	case protocol.TypeUnicast:
		s.handleUnicast(sess, env)

	case protocol.TypeGetHistory:
		s.send(sess, protocol.Envelope{Type: protocol.TypeHistory, Messages: s.historyMessages()})

	case protocol.TypeFileOffer:
		s.handleFileOffer(ctx, sess, env)

	case protocol.TypeFileRequest:
		s.handleFileRequest(sess, env)

	case protocol.TypePresentStart:
		s.handlePresentStart(sess, env)

	case protocol.TypePresentStop:
		s.handlePresentStop(sess)

	case protocol.TypeLogout:
		return false

	default:
		s.sendError(sess, protocolerr.Reason(protocolerr.ErrUnknownType))
	}
	return true
}

func (s *Server) handleChatLike(sess *session, text string, kind chat.Kind, wireType string) {
	entry := chat.Entry{
		TS:       time.Now(),
		UID:      sess.uid,
		Username: sess.name,
		Kind:     kind,
		Text:     text,
	}
	s.history.Append(entry)
	s.broadcastAll(protocol.Envelope{
		Type:     wireType,
		UID:      sess.uid,
		Username: sess.name,
		Text:     text,
		TS:       entry.TS.Format(tsFormat),
	})
}

func (s *Server) handleUnicast(sess *session, env protocol.Envelope) {
	s.mu.RLock()
	target, ok := s.sessions[env.TargetUID]
	s.mu.RUnlock()
	if !ok {
		s.sendError(sess, protocolerr.Reason(protocolerr.ErrUnknownTarget))
		return
	}

	entry := chat.Entry{
		TS:        time.Now(),
		UID:       sess.uid,
		Username:  sess.name,
		Kind:      chat.KindUnicast,
		TargetUID: env.TargetUID,
		Text:      env.Text,
	}
	s.history.Append(entry)

	s.send(target, protocol.Envelope{
		Type:     protocol.TypeUnicast,
		FromUID:  sess.uid,
		FromName: sess.name,
		ToUID:    env.TargetUID,
		ToName:   target.name,
		Text:     env.Text,
		TS:       entry.TS.Format(tsFormat),
	})
	s.send(sess, protocol.Envelope{Type: protocol.TypeUnicastSent, TargetUID: env.TargetUID})
}

func (s *Server) handlePresentStart(sess *session, env protocol.Envelope) {
	sess.mu.Lock()
	sess.presenting = true
	sess.mu.Unlock()
	s.broadcastAll(protocol.Envelope{
		Type:     protocol.TypePresentStartBroadcast,
		UID:      sess.uid,
		Username: sess.name,
		Topic:    env.Topic,
	})
}

func (s *Server) handlePresentStop(sess *session) {
	sess.mu.Lock()
	sess.presenting = false
	sess.mu.Unlock()
	s.broadcastAll(protocol.Envelope{Type: protocol.TypePresentStopBroadcast, UID: sess.uid})
}

// broadcastAll enqueues env to every currently logged-in session.
func (s *Server) broadcastAll(env protocol.Envelope) {
	b, err := protocol.Encode(env)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		sess.mailbox.Enqueue(b)
	}
}

// broadcastExcept enqueues env to every logged-in session except exceptUID.
func (s *Server) broadcastExcept(exceptUID uint64, env protocol.Envelope) {
	b, err := protocol.Encode(env)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for uid, sess := range s.sessions {
		if uid == exceptUID {
			continue
		}
		sess.mailbox.Enqueue(b)
	}
}
