// Package peer implements a single peer-to-peer connection's lifecycle:
// handshake, message dispatch, keepalive, and a bounded outbound queue.
package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/squeaknode/node/internal/apperrors"
	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/wire"
)

// State is a connection's position in its lifecycle.
type State int32

const (
	StateHandshaking State = iota
	StateEstablished
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "HANDSHAKING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Handler reacts to messages received from a peer once the handshake
// completes. Implementations must not block the calling goroutine for
// long — the connection's single reader goroutine calls Handle
// synchronously for every inbound message.
type Handler interface {
	Handle(ctx context.Context, conn *Connection, command wire.Command, payload json.RawMessage) error
}

// Config controls a Connection's timeouts and queue sizing.
type Config struct {
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	PingTimeout       time.Duration
	OutboundQueueSize int
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 2 * time.Minute
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 30 * time.Second
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = 256
	}
	return c
}

// Connection wraps one TCP connection to a peer with the wire framing,
// handshake, and keepalive machinery layered on top.
type Connection struct {
	conn     net.Conn
	cfg      Config
	handler  Handler
	log      *logger.Logger
	outbound int // listen port the peer should use to reach us back

	mu               sync.Mutex
	state            State
	remoteVersion    int32
	remoteListenPort int
	remoteUserAgent  string

	outboundQueue chan outboundMessage
	closeOnce     sync.Once
	closed        chan struct{}

	pendingPing   uint64
	pingMu        sync.Mutex
	lastPongAt    time.Time
}

type outboundMessage struct {
	command wire.Command
	payload interface{}
}

// NewConnection wraps conn, not yet started — call Run to drive the
// handshake and message loops.
func NewConnection(conn net.Conn, cfg Config, handler Handler, listenPort int, log *logger.Logger) *Connection {
	cfg = cfg.withDefaults()
	return &Connection{
		conn:          conn,
		cfg:           cfg,
		handler:       handler,
		log:           log.Named("peer").With("remote_addr", conn.RemoteAddr().String()),
		outbound:      listenPort,
		state:         StateHandshaking,
		outboundQueue: make(chan outboundMessage, cfg.OutboundQueueSize),
		closed:        make(chan struct{}),
	}
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// RemoteAddr returns the underlying connection's remote address.
func (c *Connection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// RemoteHost returns the host portion of the underlying connection's
// remote address, without its ephemeral source port.
func (c *Connection) RemoteHost() string {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return c.conn.RemoteAddr().String()
	}
	return host
}

// RemoteListenPort returns the port the peer advertised in its version
// message as the one it listens on — the port to dial back, as opposed
// to this connection's ephemeral source port. Valid only after the
// handshake completes.
func (c *Connection) RemoteListenPort() int { return c.remoteListenPort }

// RemoteUserAgent returns the peer's advertised user agent string.
func (c *Connection) RemoteUserAgent() string { return c.remoteUserAgent }

// Send enqueues a message for the write goroutine. If the outbound
// queue is full — a slow or stuck peer — the connection is closed
// rather than let the queue grow unbounded; a single misbehaving peer
// must not exhaust this node's memory.
func (c *Connection) Send(command wire.Command, payload interface{}) error {
	select {
	case <-c.closed:
		return apperrors.New(apperrors.PeerUnreachable, "connection is closed")
	default:
	}
	select {
	case c.outboundQueue <- outboundMessage{command: command, payload: payload}:
		return nil
	case <-c.closed:
		return apperrors.New(apperrors.PeerUnreachable, "connection is closed")
	default:
		c.log.Warn("outbound queue full, closing connection")
		c.Close()
		return apperrors.New(apperrors.PeerUnreachable, "outbound queue full")
	}
}

// Run drives the connection's handshake and then its read/write/ping
// loops until ctx is canceled, the peer disconnects, or a protocol
// violation occurs. It always returns after the connection is fully
// closed.
func (c *Connection) Run(ctx context.Context, selfListenPort int, userAgent string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.Close()

	if err := c.handshake(ctx, selfListenPort, userAgent); err != nil {
		return err
	}
	c.setState(StateEstablished)
	c.lastPongAt = time.Now()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(3)
	go func() { defer wg.Done(); errCh <- c.readLoop(ctx) }()
	go func() { defer wg.Done(); errCh <- c.writeLoop(ctx) }()
	go func() { defer wg.Done(); errCh <- c.pingLoop(ctx) }()

	var firstErr error
	select {
	case firstErr = <-errCh:
	case <-ctx.Done():
	}
	cancel()
	c.setState(StateClosing)
	// The read loop blocks in a socket read that ctx cannot interrupt;
	// closing the socket is what unblocks it.
	c.Close()
	wg.Wait()
	return firstErr
}

func (c *Connection) handshake(ctx context.Context, selfListenPort int, userAgent string) error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	sendErr := wire.WriteMessage(c.conn, wire.CmdVersion, wire.VersionMessage{
		Version:    wire.ProtocolVersion,
		Timestamp:  time.Now(),
		ListenPort: selfListenPort,
		UserAgent:  userAgent,
	})
	if sendErr != nil {
		return fmt.Errorf("send version: %w", sendErr)
	}

	cmd, payload, err := wire.ReadMessage(c.conn)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if cmd != wire.CmdVersion {
		return apperrors.New(apperrors.PeerProtocolViolation, "expected version message first")
	}
	var version wire.VersionMessage
	if err := wire.DecodePayload(payload, &version); err != nil {
		return err
	}
	if version.Version != wire.ProtocolVersion {
		return apperrors.New(apperrors.PeerProtocolViolation, fmt.Sprintf("unsupported protocol version %d", version.Version))
	}
	c.remoteVersion = version.Version
	c.remoteListenPort = version.ListenPort
	c.remoteUserAgent = version.UserAgent

	if err := wire.WriteMessage(c.conn, wire.CmdVerack, wire.VerackMessage{}); err != nil {
		return fmt.Errorf("send verack: %w", err)
	}

	cmd, _, err = wire.ReadMessage(c.conn)
	if err != nil {
		return fmt.Errorf("read verack: %w", err)
	}
	if cmd != wire.CmdVerack {
		return apperrors.New(apperrors.PeerProtocolViolation, "expected verack message")
	}

	return nil
}

func (c *Connection) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		cmd, payload, err := wire.ReadMessage(c.conn)
		if err != nil {
			return err
		}

		if cmd == wire.CmdPong {
			var pong wire.PongMessage
			if err := wire.DecodePayload(payload, &pong); err == nil {
				c.handlePong(pong.Nonce)
			}
			continue
		}
		if cmd == wire.CmdPing {
			var ping wire.PingMessage
			if err := wire.DecodePayload(payload, &ping); err == nil {
				_ = c.Send(wire.CmdPong, wire.PongMessage{Nonce: ping.Nonce})
			}
			continue
		}

		if err := c.handler.Handle(ctx, c, cmd, payload); err != nil {
			return err
		}
	}
}

func (c *Connection) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.outboundQueue:
			if err := wire.WriteMessage(c.conn, msg.command, msg.payload); err != nil {
				return err
			}
		}
	}
}

func (c *Connection) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			nonce := rand.Uint64()
			c.pingMu.Lock()
			c.pendingPing = nonce
			sentAt := time.Now()
			c.pingMu.Unlock()

			if err := c.Send(wire.CmdPing, wire.PingMessage{Nonce: nonce}); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.PingTimeout):
				c.pingMu.Lock()
				stale := c.pendingPing == nonce && c.lastPongAt.Before(sentAt)
				c.pingMu.Unlock()
				if stale {
					return apperrors.New(apperrors.Timeout, "peer did not respond to ping")
				}
			}
		}
	}
}

func (c *Connection) handlePong(nonce uint64) {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	if nonce == c.pendingPing {
		c.lastPongAt = time.Now()
	}
}

// Close shuts down the connection, idempotently.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
