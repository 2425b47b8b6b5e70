package peerserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squeaknode/node/internal/connmgr"
	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/peer"
	"github.com/squeaknode/node/internal/wire"
)

type countingHandler struct{ count int }

func (h *countingHandler) Handle(ctx context.Context, conn *peer.Connection, command wire.Command, payload json.RawMessage) error {
	h.count++
	return nil
}

func freePort(t *testing.T) int {
	t.Helper()
	return 20000 + int(time.Now().UnixNano()%5000)
}

func TestServer_AcceptsInboundAndDialsOutbound(t *testing.T) {
	log := logger.NewNop()

	serverManager := connmgr.New(log)
	serverPort := freePort(t)
	server := New(Config{
		ListenPort:   serverPort,
		PeerConfig:   peer.Config{HandshakeTimeout: 2 * time.Second, PingInterval: time.Hour},
		DialInterval: time.Hour,
	}, serverManager, &countingHandler{}, log)

	clientManager := connmgr.New(log)
	client := New(Config{
		ListenPort:   freePort(t) + 1,
		PeerConfig:   peer.Config{HandshakeTimeout: 2 * time.Second, PingInterval: time.Hour},
		DialInterval: time.Hour,
	}, clientManager, &countingHandler{}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Run(ctx)
	require.Eventually(t, func() bool {
		return client.Dial(ctx, "127.0.0.1", serverPort) == nil
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return serverManager.Count() == 1 && clientManager.Count() == 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.False(t, client.manager.Has("127.0.0.1", 1))
}
