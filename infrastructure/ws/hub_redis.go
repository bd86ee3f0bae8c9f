package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ccfolio/internal/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix    = "ccfolio:"
	broadcastChannel = channelPrefix + "broadcast"
	peerChannel      = channelPrefix + "peer:"
	redisOpTimeout   = 2 * time.Second

	// PresenceTTL bounds how long a crashed node's peers stay addressable.
	PresenceTTL = 90 * time.Second
)

// RedisHub keeps local peers in a BroadcastHub and relays broadcasts and
// targeted sends to the other nodes through Redis pub/sub.
type RedisHub struct {
	local       *BroadcastHub
	redisClient *redis.Client
	pubsub      *redis.PubSub
	serverID    string
	log         *zap.Logger
	presenceTTL time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

type RedisMessage struct {
	FromServerID string `json:"fromServerId"`
	ToPeerID     string `json:"toPeerId,omitempty"`
	Payload      []byte `json:"payload"`
}

func NewRedisHub(client *redis.Client, serverID string, log *zap.Logger, m *metrics.Metrics) *RedisHub {
	return &RedisHub{
		local:       NewHub(log, m),
		redisClient: client,
		serverID:    serverID,
		log:         log.With(zap.String("server", serverID)),
		presenceTTL: PresenceTTL,
		done:        make(chan struct{}),
	}
}

// Start subscribes and returns once Redis has confirmed the subscription, so
// nothing published after Start returns is missed.
func (h *RedisHub) Start(ctx context.Context) error {
	h.pubsub = h.redisClient.PSubscribe(ctx, channelPrefix+"*")
	if _, err := h.pubsub.Receive(ctx); err != nil {
		_ = h.pubsub.Close()
		return err
	}

	go h.subscribeRedis()
	go h.heartbeat()
	h.log.Info("redis subscriber started")
	return nil
}

func (h *RedisHub) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		if h.pubsub != nil {
			err = h.pubsub.Close()
		}
	})
	return err
}

func (h *RedisHub) Join(peer Peer) {
	h.local.Join(peer)

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := h.redisClient.Set(ctx, presenceKey(peer.ID()), h.serverID, h.presenceTTL).Err(); err != nil {
		h.log.Warn("announce peer", zap.String("peer", peer.ID()), zap.Error(err))
	}
}

func (h *RedisHub) Leave(peer Peer) {
	h.local.Leave(peer)

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := h.redisClient.Del(ctx, presenceKey(peer.ID())).Err(); err != nil {
		h.log.Warn("withdraw peer", zap.String("peer", peer.ID()), zap.Error(err))
	}
}

// Broadcast delivers locally and publishes for the other nodes. The returned
// count covers local peers only.
func (h *RedisHub) Broadcast(message []byte) int {
	delivered := h.local.Broadcast(message)
	h.publish(broadcastChannel, RedisMessage{FromServerID: h.serverID, Payload: message})
	return delivered
}

func (h *RedisHub) SendTo(peerID string, message []byte) bool {
	if h.local.SendTo(peerID, message) {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	owner, err := h.redisClient.Get(ctx, presenceKey(peerID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			h.log.Warn("lookup peer", zap.String("peer", peerID), zap.Error(err))
		}
		return false
	}
	if owner == h.serverID {
		return false
	}

	return h.publish(peerChannel+peerID, RedisMessage{
		FromServerID: h.serverID,
		ToPeerID:     peerID,
		Payload:      message,
	})
}

// heartbeat keeps presence keys of local peers alive. Keys of a node that
// stops refreshing expire after presenceTTL and SendTo stops routing to it.
func (h *RedisHub) heartbeat() {
	ticker := time.NewTicker(h.presenceTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.refreshPresence()
		}
	}
}

func (h *RedisHub) refreshPresence() {
	peers := h.local.snapshot()
	if len(peers) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	pipe := h.redisClient.Pipeline()
	for _, p := range peers {
		pipe.Set(ctx, presenceKey(p.ID()), h.serverID, h.presenceTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn("refresh presence", zap.Int("peers", len(peers)), zap.Error(err))
	}
}

// Count reports peers connected to this node.
func (h *RedisHub) Count() int {
	return h.local.Count()
}

func (h *RedisHub) publish(channel string, msg RedisMessage) bool {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal redis message", zap.Error(err))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := h.redisClient.Publish(ctx, channel, msgBytes).Err(); err != nil {
		h.log.Warn("publish to redis", zap.String("channel", channel), zap.Error(err))
		return false
	}
	return true
}

func (h *RedisHub) subscribeRedis() {
	ch := h.pubsub.Channel()

	for {
		select {
		case <-h.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleRedisMessage(msg)
		}
	}
}

func (h *RedisHub) handleRedisMessage(msg *redis.Message) {
	var redisMsg RedisMessage
	if err := json.Unmarshal([]byte(msg.Payload), &redisMsg); err != nil {
		h.log.Warn("unmarshal redis message", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}

	if redisMsg.FromServerID == h.serverID {
		return
	}

	if redisMsg.ToPeerID == "" {
		h.local.Broadcast(redisMsg.Payload)
		return
	}
	h.local.SendTo(redisMsg.ToPeerID, redisMsg.Payload)
}

func presenceKey(peerID string) string {
	return "peer:" + peerID + ":server"
}
