package peer

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/wire"
)

type recordingHandler struct {
	mu       sync.Mutex
	received []wire.Command
}

func (h *recordingHandler) Handle(ctx context.Context, conn *Connection, command wire.Command, payload json.RawMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, command)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}

func TestConnection_HandshakeEstablishesBothSides(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	clientHandler := &recordingHandler{}
	serverHandler := &recordingHandler{}

	cfg := Config{HandshakeTimeout: 2 * time.Second, PingInterval: time.Hour}
	client := NewConnection(clientConn, cfg, clientHandler, 9000, logger.NewNop())
	server := NewConnection(serverConn, cfg, serverHandler, 9001, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); client.Run(ctx, 9000, "test-client") }()
	go func() { defer wg.Done(); server.Run(ctx, 9001, "test-server") }()

	require.Eventually(t, func() bool {
		return client.State() == StateEstablished && server.State() == StateEstablished
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, client.Send(wire.CmdGetSqueaks, wire.GetSqueaksMessage{}))
	require.Eventually(t, func() bool { return serverHandler.count() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()

	assert.Equal(t, StateClosed, client.State())
	assert.Equal(t, StateClosed, server.State())
}

func TestConnection_SendAfterCloseFails(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	conn := NewConnection(clientConn, Config{}, &recordingHandler{}, 9000, logger.NewNop())
	require.NoError(t, conn.Close())

	err := conn.Send(wire.CmdPing, wire.PingMessage{})
	assert.Error(t, err)
}
