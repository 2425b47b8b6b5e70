// Package peerserver accepts inbound peer connections and dials
// outbound ones, handing each established socket to the connection
// manager and keeping the configured downloading peers connected.
package peerserver

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/connmgr"
	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/peer"
)

// ConfiguredPeer is a remote node this server should try to keep a
// connection to.
type ConfiguredPeer struct {
	Host        string
	Port        int
	Downloading bool
	Uploading   bool
}

// Config controls the listener, connection targets, and dial cadence.
type Config struct {
	ListenPort      int
	MinPeers        int
	MaxPeers        int
	DialInterval    time.Duration
	ConfiguredPeers []ConfiguredPeer
	UserAgent       string
	PeerConfig      peer.Config
}

func (c Config) withDefaults() Config {
	if c.MinPeers <= 0 {
		c.MinPeers = 1
	}
	if c.MaxPeers <= 0 {
		c.MaxPeers = 8
	}
	if c.DialInterval <= 0 {
		c.DialInterval = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "squeaknode"
	}
	return c
}

// Server listens for inbound peer connections and dials configured
// peers, registering every established connection with a Manager.
type Server struct {
	cfg     Config
	manager *connmgr.Manager
	handler peer.Handler
	log     *logger.Logger

	listener net.Listener
}

// New constructs a Server. Call Run to start accepting and dialing.
func New(cfg Config, manager *connmgr.Manager, handler peer.Handler, log *logger.Logger) *Server {
	return &Server{
		cfg:     cfg.withDefaults(),
		manager: manager,
		handler: handler,
		log:     log.Named("peerserver"),
	}
}

// Run listens on cfg.ListenPort, accepting inbound connections, and
// concurrently dials configured downloading peers not yet connected,
// until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.ListenPort))
	if err != nil {
		return apperrors.Wrap(apperrors.PeerUnreachable, "listen for peers", err)
	}
	s.listener = ln

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.acceptLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.dialLoop(ctx)
	}()

	<-ctx.Done()
	ln.Close()
	wg.Wait()
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		go s.handleInbound(ctx, conn)
	}
}

func (s *Server) handleInbound(ctx context.Context, conn net.Conn) {
	c := peer.NewConnection(conn, s.cfg.PeerConfig, s.handler, s.cfg.ListenPort, s.log)
	host, port := splitHostPort(conn.RemoteAddr())

	if s.manager.Has(host, port) {
		s.log.Warn("rejecting duplicate inbound connection", "host", host, "port", port)
		c.Close()
		return
	}

	s.manager.Add(host, port, c)
	defer s.manager.Remove(host, port)

	if err := c.Run(ctx, s.cfg.ListenPort, s.cfg.UserAgent); err != nil {
		s.log.Warn("inbound connection ended", "host", host, "port", port, "error", err)
	}
}

// Dial connects to host:port, deduplicating against the manager, and
// runs the resulting connection until it closes or ctx is canceled.
// It returns as soon as the TCP dial succeeds, before the handshake;
// the handshake and the connection's read/write/ping loops run in a
// background goroutine.
func (s *Server) Dial(ctx context.Context, host string, port int) error {
	if s.manager.Has(host, port) {
		return nil
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 10*time.Second)
	if err != nil {
		return apperrors.Wrap(apperrors.PeerUnreachable, "dial peer", err)
	}

	c := peer.NewConnection(conn, s.cfg.PeerConfig, s.handler, s.cfg.ListenPort, s.log)
	s.manager.Add(host, port, c)

	go func() {
		defer s.manager.Remove(host, port)
		if err := c.Run(ctx, s.cfg.ListenPort, s.cfg.UserAgent); err != nil {
			s.log.Warn("outbound connection ended", "host", host, "port", port, "error", err)
		}
	}()

	return nil
}

func (s *Server) dialLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DialInterval)
	defer ticker.Stop()

	s.dialMissingPeers(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dialMissingPeers(ctx)
		}
	}
}

func (s *Server) dialMissingPeers(ctx context.Context) {
	if s.manager.Count() >= s.cfg.MaxPeers {
		return
	}
	for _, cp := range s.cfg.ConfiguredPeers {
		if !cp.Downloading {
			continue
		}
		if s.manager.Count() >= s.cfg.MaxPeers {
			return
		}
		if s.manager.Has(cp.Host, cp.Port) {
			continue
		}
		if err := s.Dial(ctx, cp.Host, cp.Port); err != nil {
			s.log.Warn("failed to dial configured peer", "host", cp.Host, "port", cp.Port, "error", err)
		}
	}
}

func splitHostPort(addr net.Addr) (string, int) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}
