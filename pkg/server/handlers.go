package server

import (
	"errors"
	"net/netip"

	"github.com/aeolun/udpchat/pkg/protocol"
)

// Drop reasons reported to metrics
const (
	dropChecksum = "checksum"
	dropFraming  = "framing"
)

// HandleDatagram decodes, dispatches and answers one datagram
// from the endpoint from. Packets that fail checksum validation or framing are
// dropped without a reply.
func (s *Server) HandleDatagram(from netip.AddrPort, data []byte) {
	s.metrics.RecordPacketReceived()

	raw := string(data)
	if !protocol.ValidateChecksum(raw) {
		s.metrics.RecordPacketDropped(dropChecksum)
		s.log.Debug().Str("from", from.String()).Int("len", len(data)).Msg("dropped packet with bad checksum")
		return
	}

	pkt, err := protocol.ParsePacket(raw)
	if err != nil {
		s.metrics.RecordPacketDropped(dropFraming)
		s.log.Debug().Err(err).Str("from", from.String()).Msg("dropped malformed packet")
		return
	}

	msg := protocol.DecodeMessage(pkt.Body)
	s.metrics.RecordMessageReceived(msg.Verb)
	s.log.Debug().
		Str("from", from.String()).
		Str("verb", string(msg.Verb)).
		Int("seqno", pkt.SeqNo).
		Msg("recv")

	s.handleMessage(from, msg)
}

// handleMessage dispatches a decoded message on its verb
func (s *Server) handleMessage(from netip.AddrPort, msg protocol.Message) {
	switch msg.Verb {
	case protocol.VerbJoin:
		s.handleJoin(from, msg)
	case protocol.VerbRequestUsersList:
		s.handleRequestUsersList(from)
	case protocol.VerbSendMessage:
		s.handleSendMessage(from, msg)
	case protocol.VerbDisconnect:
		s.handleDisconnect(from)
	default:
		s.handleUnknown(from, msg)
	}
}

// handleJoin handles join
func (s *Server) handleJoin(from netip.AddrPort, msg protocol.Message) {
	name := msg.Arg
	if name == "" {
		s.handleUnknown(from, msg)
		return
	}

	err := s.registry.Join(from, name)
	switch {
	case errors.Is(err, ErrServerFull):
		s.metrics.RecordJoinRejected("server_full")
		s.log.Info().Str("user", name).Str("from", from.String()).Msg("join rejected: server full")
		s.reply(from, protocol.VerbErrServerFull, protocol.ErrorMessage(protocol.VerbErrServerFull))
	case errors.Is(err, ErrUsernameUnavailable):
		s.metrics.RecordJoinRejected("username_unavailable")
		s.log.Info().Str("user", name).Str("from", from.String()).Msg("join rejected: username unavailable")
		s.reply(from, protocol.VerbErrUsernameUnavailable, protocol.ErrorMessage(protocol.VerbErrUsernameUnavailable))
	default:
		s.metrics.RecordSessionCreated()
		s.log.Info().Str("user", name).Str("from", from.String()).Msg("join")
	}
}

// handleRequestUsersList handles request_users_list
func (s *Server) handleRequestUsersList(from netip.AddrPort) {
	s.log.Info().Str("user", s.senderName(from)).Msg("request_users_list")
	s.reply(from, protocol.VerbResponseUsersList, protocol.ResponseUsersListMessage(s.registry.Names()))
}

// handleSendMessage handles send_message
func (s *Server) handleSendMessage(from netip.AddrPort, msg protocol.Message) {
	s.log.Info().Str("user", s.senderName(from)).Msg("msg")

	result := s.router.Route(from, msg.Names(), msg.Text)
	s.log.Debug().
		Strs("delivered", result.Delivered).
		Strs("unresolved", result.Unresolved).
		Strs("failed", result.Failed).
		Msg("routed")
}

// handleDisconnect handles disconnect. The session is found by endpoint; the
// username in the payload is not trusted.
func (s *Server) handleDisconnect(from netip.AddrPort) {
	name, err := s.registry.Leave(from)
	if err != nil {
		s.log.Warn().Str("from", from.String()).Msg("disconnect from unregistered endpoint")
		return
	}
	s.metrics.RecordSessionDisconnected()
	s.log.Info().Str("user", name).Msg("disconnected")
}

// handleUnknown answers anything the server does not accept with err_unknown_message
func (s *Server) handleUnknown(from netip.AddrPort, msg protocol.Message) {
	s.log.Info().
		Str("user", s.senderName(from)).
		Str("verb", string(msg.Verb)).
		Msg("unknown command")
	s.reply(from, protocol.VerbErrUnknownMessage, protocol.ErrorMessage(protocol.VerbErrUnknownMessage))
}

// senderName returns the username joined from ep, or AnonymousSender
func (s *Server) senderName(ep netip.AddrPort) string {
	if name, ok := s.registry.NameOf(ep); ok {
		return name
	}
	return AnonymousSender
}

// reply sends a message back to an endpoint; write failures are logged, not returned
func (s *Server) reply(to netip.AddrPort, verb protocol.Verb, message string) {
	if err := s.outbox.Deliver(to, message); err != nil {
		s.log.Error().Err(err).Str("to", to.String()).Str("verb", string(verb)).Msg("send failed")
		return
	}
	s.metrics.RecordMessageSent(verb)
}
