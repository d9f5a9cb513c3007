package relay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestPresence(t *testing.T) (*Presence, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewPresence(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestPresenceHeartbeatAndExpiry(t *testing.T) {
	ctx := context.Background()
	p, mr := newTestPresence(t)

	if err := p.Heartbeat(ctx, "user_255700000001"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	online, err := p.Online(ctx, "user_255700000001")
	if err != nil || !online {
		t.Fatalf("online: %v, %v", online, err)
	}

	mr.FastForward(2 * presenceTTL)
	online, err = p.Online(ctx, "user_255700000001")
	if err != nil {
		t.Fatalf("online after expiry: %v", err)
	}
	if online {
		t.Fatal("presence must age out")
	}
}

func TestPresenceOfflineImmediate(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPresence(t)

	if err := p.Heartbeat(ctx, "user_255700000001"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := p.Offline(ctx, "user_255700000001"); err != nil {
		t.Fatalf("offline: %v", err)
	}
	online, err := p.Online(ctx, "user_255700000001")
	if err != nil || online {
		t.Fatalf("expected offline, got %v, %v", online, err)
	}
}

func TestTypingWindow(t *testing.T) {
	ctx := context.Background()
	p, mr := newTestPresence(t)

	if err := p.SetTyping(ctx, "user_255700000001"); err != nil {
		t.Fatalf("set typing: %v", err)
	}
	typing, err := p.Typing(ctx, "user_255700000001")
	if err != nil || !typing {
		t.Fatalf("typing: %v, %v", typing, err)
	}

	mr.FastForward(typingTTL + time.Second)
	typing, err = p.Typing(ctx, "user_255700000001")
	if err != nil {
		t.Fatalf("typing after expiry: %v", err)
	}
	if typing {
		t.Fatal("typing flag must age out")
	}
}
