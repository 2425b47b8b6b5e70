package connmgr

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/peer"
	"github.com/squeaknode/node/internal/wire"
)

type nopHandler struct{}

func (nopHandler) Handle(ctx context.Context, conn *peer.Connection, command wire.Command, payload json.RawMessage) error {
	return nil
}

func newEstablishedPair(t *testing.T) (*peer.Connection, *peer.Connection, func()) {
	t.Helper()
	a, b := net.Pipe()
	cfg := peer.Config{HandshakeTimeout: 2 * time.Second, PingInterval: time.Hour}
	client := peer.NewConnection(a, cfg, nopHandler{}, 9000, logger.NewNop())
	server := peer.NewConnection(b, cfg, nopHandler{}, 9001, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go client.Run(ctx, 9000, "test")
	go server.Run(ctx, 9001, "test")

	require.Eventually(t, func() bool {
		return client.State() == peer.StateEstablished && server.State() == peer.StateEstablished
	}, time.Second, 10*time.Millisecond)

	return client, server, cancel
}

func TestManager_AddGetRemove(t *testing.T) {
	m := New(logger.NewNop())
	client, _, cancel := newEstablishedPair(t)
	defer cancel()

	assert.False(t, m.Has("peer.example", 8555))
	m.Add("peer.example", 8555, client)
	assert.True(t, m.Has("peer.example", 8555))
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get("peer.example", 8555)
	assert.True(t, ok)
	assert.Same(t, client, got)

	m.Remove("peer.example", 8555)
	assert.False(t, m.Has("peer.example", 8555))
	assert.Equal(t, 0, m.Count())
}

func TestManager_BroadcastIsolatesFailures(t *testing.T) {
	m := New(logger.NewNop())

	good, _, cancelGood := newEstablishedPair(t)
	defer cancelGood()
	bad, _, cancelBad := newEstablishedPair(t)
	cancelBad()
	require.NoError(t, bad.Close())

	m.Add("good.example", 1, good)
	m.Add("bad.example", 2, bad)

	sent := m.Broadcast(wire.CmdPing, wire.PingMessage{Nonce: 1})
	assert.Equal(t, 1, sent)
}
