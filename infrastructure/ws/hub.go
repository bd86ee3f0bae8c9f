package ws

import (
	"sync"

	"ccfolio/internal/metrics"

	"go.uber.org/zap"
)

// BroadcastHub is the registry of live push peers on this node. The lock only
// guards bookkeeping; sends always happen on a snapshot taken under the lock.
type BroadcastHub struct {
	mu      sync.RWMutex
	peers   map[string]Peer
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewHub(log *zap.Logger, m *metrics.Metrics) *BroadcastHub {
	return &BroadcastHub{
		peers:   make(map[string]Peer),
		log:     log,
		metrics: m,
	}
}

func (h *BroadcastHub) Join(peer Peer) {
	h.mu.Lock()
	h.peers[peer.ID()] = peer
	h.mu.Unlock()

	h.log.Debug("peer joined", zap.String("peer", peer.ID()))
}

// Leave is idempotent. A peer is only removed when the registered handle is
// the same one leaving, so a stale Leave cannot evict a newer registration.
func (h *BroadcastHub) Leave(peer Peer) {
	h.mu.Lock()
	current, ok := h.peers[peer.ID()]
	if ok && current == peer {
		delete(h.peers, peer.ID())
	}
	h.mu.Unlock()

	if ok && current == peer {
		h.log.Debug("peer left", zap.String("peer", peer.ID()))
	}
}

// Broadcast queues message to every peer registered at the moment of the
// snapshot and returns how many accepted it.
func (h *BroadcastHub) Broadcast(message []byte) int {
	delivered := 0
	for _, peer := range h.snapshot() {
		if peer.Send(message) {
			delivered++
		}
	}

	h.metrics.Broadcast(delivered)
	return delivered
}

func (h *BroadcastHub) SendTo(peerID string, message []byte) bool {
	h.mu.RLock()
	peer, ok := h.peers[peerID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	return peer.Send(message)
}

func (h *BroadcastHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *BroadcastHub) snapshot() []Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()

	peers := make([]Peer, 0, len(h.peers))
	for _, peer := range h.peers {
		peers = append(peers, peer)
	}
	return peers
}
