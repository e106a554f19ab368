package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aeolun/udpchat/pkg/database"
	"github.com/aeolun/udpchat/pkg/protocol"
)

// Server is the chat server: a session registry and router behind one datagram socket
type Server struct {
	config    ServerConfig
	registry  *Registry
	router    *Router
	outbox    Outbox
	metrics   *Metrics
	journal   *database.Journal
	log       zerolog.Logger
	startTime time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Address     string
	Port        int
	WindowSize  int // Accepted for compatibility; has no effect
	MaxClients  int
	MetricsAddr string // Empty disables the metrics listener
	JournalPath string // Empty disables the delivery journal
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		Address:    "localhost",
		Port:       15000,
		WindowSize: 3,
		MaxClients: MaxClients,
	}
}

// ListenAddr returns the host:port the server binds to
func (c ServerConfig) ListenAddr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// NewServer creates a server that replies through outbox
func NewServer(config ServerConfig, outbox Outbox, logger zerolog.Logger) (*Server, error) {
	metrics := NewMetrics()

	registry := NewRegistry(config.MaxClients)
	registry.SetMetrics(metrics)

	router := NewRouter(registry, outbox, logger)
	router.SetMetrics(metrics)

	s := &Server{
		config:    config,
		registry:  registry,
		router:    router,
		outbox:    outbox,
		metrics:   metrics,
		log:       logger,
		startTime: time.Now(),
	}

	if config.JournalPath != "" {
		journal, err := database.OpenJournal(config.JournalPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open delivery journal: %w", err)
		}
		s.journal = journal
		router.SetJournal(journal)
	}

	return s, nil
}

// Registry returns the server's session registry
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the server's metrics
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Close releases the delivery journal, if any
func (s *Server) Close() error {
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}

// Listen opens the UDP socket described by config
func Listen(ctx context.Context, config ServerConfig) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = setSocketOptions(fd)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(ctx, "udp", config.ListenAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.ListenAddr(), err)
	}
	return conn, nil
}

// Serve reads datagrams from conn and handles them one at a time until ctx is
// cancelled. Each request completes, replies included, before the next read.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	s.log.Info().
		Str("addr", conn.LocalAddr().String()).
		Int("max_clients", s.registry.Capacity()).
		Int("window_size", s.config.WindowSize).
		Msg("server listening")

	buf := make([]byte, protocol.MaxPacketSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error().Err(err).Msg("read error")
			continue
		}

		from, ok := endpointFromAddr(addr)
		if !ok {
			s.log.Warn().Str("addr", addr.String()).Msg("ignoring datagram from non-UDP address")
			continue
		}
		s.HandleDatagram(from, buf[:n])
	}
}

// Run listens on the configured address, starts the metrics listener when one is
// configured, and serves until ctx is cancelled
func Run(ctx context.Context, config ServerConfig, logger zerolog.Logger) error {
	conn, err := Listen(ctx, config)
	if err != nil {
		return err
	}

	srv, err := NewServer(config, NewPacketOutbox(conn), logger)
	if err != nil {
		conn.Close()
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close delivery journal")
		}
	}()

	if config.MetricsAddr != "" {
		httpSrv := srv.newHTTPServer(config.MetricsAddr)
		go func() {
			logger.Info().Str("addr", config.MetricsAddr).Msg("metrics listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go srv.monitorReceiveErrors(monitorCtx, 10*time.Second)

	return srv.Serve(ctx, conn)
}

// packetOutbox frames messages as data packets and writes them to a socket
type packetOutbox struct {
	conn net.PacketConn
}

// NewPacketOutbox returns an Outbox writing data packets to conn
func NewPacketOutbox(conn net.PacketConn) Outbox {
	return &packetOutbox{conn: conn}
}

func (o *packetOutbox) Deliver(to netip.AddrPort, message string) error {
	raw := protocol.MakeDataPacket(message)
	if len(raw) > protocol.MaxPacketSize {
		return protocol.ErrPacketTooLarge
	}
	_, err := o.conn.WriteTo([]byte(raw), net.UDPAddrFromAddrPort(to))
	return err
}

func endpointFromAddr(addr net.Addr) (netip.AddrPort, bool) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}, false
	}
	ap := udpAddr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), true
}
