package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aeolun/udpchat/pkg/protocol"
)

// ErrDisconnected is returned by Run when the server ended the session with an error reply
var ErrDisconnected = errors.New("disconnected by server")

// Config holds client configuration
type Config struct {
	Username   string
	Address    string
	Port       int
	WindowSize int // Accepted for compatibility; has no effect
}

// ServerAddr returns the host:port of the chat server
func (c Config) ServerAddr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Client is one chat participant talking to a server over UDP
type Client struct {
	config Config
	log    zerolog.Logger
}

// New creates a client
func New(config Config, logger zerolog.Logger) *Client {
	return &Client{config: config, log: logger}
}

// event is produced by the receive and input goroutines and consumed by Run.
// A final event ends the session after its notice is printed.
type event struct {
	notice *notice
	final  bool
	err    error
}

// Run joins the server and relays between the operator and the server until the
// operator quits, input ends, the server sends an error reply, or ctx is cancelled.
// All console output is written by the calling goroutine.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if c.config.Username == "" {
		return errors.New("username is required")
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", c.config.ServerAddr())
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.config.ServerAddr(), err)
	}
	defer conn.Close()

	c.log.Debug().
		Str("server", c.config.ServerAddr()).
		Str("local", conn.LocalAddr().String()).
		Int("window_size", c.config.WindowSize).
		Msg("connected")

	if err := c.send(conn, protocol.JoinMessage(c.config.Username)); err != nil {
		return fmt.Errorf("failed to send join: %w", err)
	}

	console := NewConsole(out)
	events := make(chan event, 16)
	done := make(chan struct{})
	defer close(done)

	emit := func(ev event) bool {
		select {
		case events <- ev:
			return true
		case <-done:
			return false
		}
	}

	go c.receiveLoop(conn, emit)
	go c.inputLoop(conn, in, emit)

	for {
		select {
		case <-ctx.Done():
			if err := c.send(conn, protocol.DisconnectMessage(c.config.Username)); err != nil {
				c.log.Warn().Err(err).Msg("failed to send disconnect")
			}
			return nil
		case ev := <-events:
			if ev.notice != nil {
				if err := console.print(*ev.notice); err != nil {
					return fmt.Errorf("failed to write to console: %w", err)
				}
			}
			if ev.final {
				return ev.err
			}
		}
	}
}

// receiveLoop decodes server datagrams into console events. It stops after an
// error reply or when the connection is closed.
func (c *Client) receiveLoop(conn net.Conn, emit func(event) bool) {
	buf := make([]byte, protocol.MaxPacketSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// ICMP port unreachable surfaces here when no server is listening
			c.log.Debug().Err(err).Msg("read error")
			continue
		}

		pkt, err := protocol.DecodeDatagram(buf[:n])
		if err != nil {
			c.log.Debug().Err(err).Msg("dropped malformed packet")
			continue
		}

		ev, ok := c.serverEvent(protocol.DecodeMessage(pkt.Body))
		if !ok {
			continue
		}
		if !emit(ev) || ev.final {
			return
		}
	}
}

// serverEvent turns a server message into what the operator sees
func (c *Client) serverEvent(msg protocol.Message) (event, bool) {
	var n notice
	switch msg.Verb {
	case protocol.VerbResponseUsersList:
		n = listNotice(msg.Names())
	case protocol.VerbForwardMessage:
		sender := ""
		if names := msg.Names(); len(names) > 0 {
			sender = names[0]
		}
		n = chatNotice(sender, msg.Text)
	case protocol.VerbErrServerFull:
		n = disconnectNotice("server full")
	case protocol.VerbErrUsernameUnavailable:
		n = disconnectNotice("username not available")
	case protocol.VerbErrUnknownMessage:
		n = disconnectNotice("server received an unknown command")
	default:
		c.log.Debug().Str("verb", string(msg.Verb)).Msg("ignoring unexpected message")
		return event{}, false
	}

	ev := event{notice: &n}
	if msg.Verb.IsError() {
		ev.final = true
		ev.err = fmt.Errorf("%w: %s", ErrDisconnected, msg.Verb)
	}
	return ev, true
}

// inputLoop reads operator commands one line at a time. End of input leaves
// the server the same way quit does, without the notice.
func (c *Client) inputLoop(conn net.Conn, in io.Reader, emit func(event) bool) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		ev, ok := c.handleLine(conn, scanner.Text())
		if ok && !emit(ev) {
			return
		}
		if ev.final {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.log.Warn().Err(err).Msg("input error")
	}
	if err := c.send(conn, protocol.DisconnectMessage(c.config.Username)); err != nil {
		c.log.Warn().Err(err).Msg("failed to send disconnect")
	}
	emit(event{final: true})
}

// handleLine executes one command line and reports what to print
func (c *Client) handleLine(conn net.Conn, line string) (event, bool) {
	cmd, err := ParseCommand(line)
	if err != nil || cmd.Kind == CommandUnrecognized {
		n := warningNotice("incorrect userinput format")
		return event{notice: &n}, true
	}

	if cmd.Kind == CommandHelp {
		n := infoNotice(HelpText)
		return event{notice: &n}, true
	}

	request, _ := cmd.Request(c.config.Username)
	if err := c.send(conn, request); err != nil {
		if errors.Is(err, protocol.ErrPacketTooLarge) {
			n := warningNotice("message too long (max %d bytes per packet)", protocol.MaxPacketSize)
			return event{notice: &n}, true
		}
		c.log.Error().Err(err).Str("command", cmd.Kind.String()).Msg("send failed")
		if cmd.Kind != CommandQuit {
			return event{}, false
		}
	}

	if cmd.Kind == CommandQuit {
		n := infoNotice("quitting")
		return event{notice: &n, final: true}, true
	}
	return event{}, false
}

// send frames message as a data packet and writes it to the server
func (c *Client) send(conn net.Conn, message string) error {
	raw := protocol.MakeDataPacket(message)
	if len(raw) > protocol.MaxPacketSize {
		return protocol.ErrPacketTooLarge
	}
	_, err := conn.Write([]byte(raw))
	return err
}
