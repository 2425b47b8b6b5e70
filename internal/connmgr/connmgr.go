// Package connmgr tracks the set of currently connected peers and
// fans a message out to all of them, isolating one peer's failure
// from the rest of the broadcast.
package connmgr

import (
	"fmt"
	"sync"

	"github.com/squeaknode/node/internal/logger"
	"github.com/squeaknode/node/internal/metrics"
	"github.com/squeaknode/node/internal/peer"
	"github.com/squeaknode/node/internal/wire"
)

// key identifies a peer by its dial address, regardless of which side
// initiated the connection.
type key struct {
	host string
	port int
}

func keyOf(host string, port int) key { return key{host: host, port: port} }

// Manager is a concurrency-safe registry of live peer connections.
type Manager struct {
	mu    sync.RWMutex
	peers map[key]*peer.Connection
	log   *logger.Logger
}

// New constructs an empty Manager.
func New(log *logger.Logger) *Manager {
	return &Manager{
		peers: make(map[key]*peer.Connection),
		log:   log.Named("connmgr"),
	}
}

// Has reports whether a connection to host:port is already tracked.
func (m *Manager) Has(host string, port int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.peers[keyOf(host, port)]
	return ok
}

// Get returns the tracked connection for host:port, if any.
func (m *Manager) Get(host string, port int) (*peer.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.peers[keyOf(host, port)]
	return c, ok
}

// Add registers conn under host:port, replacing and closing whatever
// connection (if any) was previously registered under the same key —
// a redial racing an inbound connection from the same peer must not
// leak the loser.
func (m *Manager) Add(host string, port int, conn *peer.Connection) {
	m.mu.Lock()
	k := keyOf(host, port)
	old, existed := m.peers[k]
	m.peers[k] = conn
	metrics.ActivePeers.Set(float64(len(m.peers)))
	m.mu.Unlock()

	if existed && old != conn {
		m.log.Warn("replacing existing connection for peer", "host", host, "port", port)
		old.Close()
	}
}

// Remove unregisters host:port. It does not close the connection —
// callers remove a connection after observing it close on its own.
func (m *Manager) Remove(host string, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, keyOf(host, port))
	metrics.ActivePeers.Set(float64(len(m.peers)))
}

// Count returns the number of tracked connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// Snapshot returns a stable copy of the currently tracked connections,
// safe to range over after the call returns even if the set changes
// concurrently.
func (m *Manager) Snapshot() []*peer.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*peer.Connection, 0, len(m.peers))
	for _, c := range m.peers {
		out = append(out, c)
	}
	return out
}

// Broadcast sends command/payload to every tracked connection. A send
// failure on one peer is logged and does not stop the broadcast to
// the rest; the returned count is how many sends succeeded.
func (m *Manager) Broadcast(command wire.Command, payload interface{}) int {
	sent := 0
	for _, c := range m.Snapshot() {
		if err := c.Send(command, payload); err != nil {
			m.log.Warn("broadcast send failed", "remote_addr", fmt.Sprint(c.RemoteAddr()), "error", err)
			continue
		}
		sent++
	}
	return sent
}
