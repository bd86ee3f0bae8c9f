package ws

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func newTestRedisHub(t *testing.T, mr *miniredis.Miniredis, serverID string) *RedisHub {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hub := NewRedisHub(client, serverID, zaptest.NewLogger(t), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start(%s) error: %v", serverID, err)
	}
	t.Cleanup(func() { hub.Close() })
	return hub
}

func waitForMessages(t *testing.T, p *recordingPeer, want int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := p.received(); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s received %v, want %d messages", p.id, p.received(), want)
	return nil
}

func TestRedisHubBroadcastAcrossNodes(t *testing.T) {
	mr := miniredis.RunT(t)
	nodeA := newTestRedisHub(t, mr, "node-a")
	nodeB := newTestRedisHub(t, mr, "node-b")

	local, remote := newRecordingPeer("local"), newRecordingPeer("remote")
	nodeA.Join(local)
	nodeB.Join(remote)

	if n := nodeA.Broadcast([]byte("hello")); n != 1 {
		t.Errorf("local deliveries = %d, want 1", n)
	}

	if got := waitForMessages(t, remote, 1); got[0] != "hello" {
		t.Errorf("remote received %v", got)
	}

	// The publishing node must not deliver its own relay a second time.
	time.Sleep(50 * time.Millisecond)
	if got := local.received(); len(got) != 1 {
		t.Errorf("local received %v, want exactly one message", got)
	}
}

func TestRedisHubSendToRemotePeer(t *testing.T) {
	mr := miniredis.RunT(t)
	nodeA := newTestRedisHub(t, mr, "node-a")
	nodeB := newTestRedisHub(t, mr, "node-b")

	remote := newRecordingPeer("remote")
	nodeB.Join(remote)

	if owner, _ := mr.Get(presenceKey("remote")); owner != "node-b" {
		t.Fatalf("presence owner = %q, want node-b", owner)
	}

	if !nodeA.SendTo("remote", []byte("direct")) {
		t.Fatal("SendTo(remote) = false")
	}
	if got := waitForMessages(t, remote, 1); got[0] != "direct" {
		t.Errorf("remote received %v", got)
	}

	nodeB.Leave(remote)
	if mr.Exists(presenceKey("remote")) {
		t.Error("presence key should be removed on leave")
	}
	if nodeA.SendTo("remote", []byte("gone")) {
		t.Error("SendTo after leave should fail")
	}
}

func TestRedisHubPresenceExpiresWithoutHeartbeat(t *testing.T) {
	mr := miniredis.RunT(t)
	nodeA := newTestRedisHub(t, mr, "node-a")
	nodeB := newTestRedisHub(t, mr, "node-b")

	nodeB.Join(newRecordingPeer("remote"))
	if ttl := mr.TTL(presenceKey("remote")); ttl != PresenceTTL {
		t.Fatalf("presence TTL = %v, want %v", ttl, PresenceTTL)
	}

	// a refresh restores the full TTL
	mr.FastForward(PresenceTTL / 2)
	nodeB.refreshPresence()
	if ttl := mr.TTL(presenceKey("remote")); ttl != PresenceTTL {
		t.Errorf("TTL after refresh = %v, want %v", ttl, PresenceTTL)
	}

	// node-b stops refreshing, as if it had crashed
	nodeB.Close()
	mr.FastForward(PresenceTTL + time.Second)
	if mr.Exists(presenceKey("remote")) {
		t.Fatal("presence key outlived its TTL")
	}
	if nodeA.SendTo("remote", []byte("lost")) {
		t.Error("SendTo routed to a peer whose node stopped heartbeating")
	}
}
