package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceTTL = 60 * time.Second
	typingTTL   = 5 * time.Second
)

// Presence tracks who is online and who is typing through short-lived Redis
// keys. State expires on its own, so a crashed client simply ages out.
type Presence struct {
	rdb *redis.Client
}

// NewPresence wires presence tracking over an existing client.
func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{rdb: rdb}
}

// Heartbeat marks an identity online for the presence TTL. Clients call it
// on connect and on a sub-TTL interval afterwards.
func (p *Presence) Heartbeat(ctx context.Context, identityID string) error {
	return p.rdb.Set(ctx, presenceKey(identityID), "1", presenceTTL).Err()
}

// Offline clears the online flag immediately.
func (p *Presence) Offline(ctx context.Context, identityID string) error {
	return p.rdb.Del(ctx, presenceKey(identityID)).Err()
}

// Online reports whether an identity currently holds a presence key.
func (p *Presence) Online(ctx context.Context, identityID string) (bool, error) {
	n, err := p.rdb.Exists(ctx, presenceKey(identityID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetTyping marks an identity as typing in its conversation for a few
// seconds. Repeated keystrokes extend the window.
func (p *Presence) SetTyping(ctx context.Context, identityID string) error {
	return p.rdb.Set(ctx, typingKey(identityID), "1", typingTTL).Err()
}

// Typing reports whether an identity typed recently.
func (p *Presence) Typing(ctx context.Context, identityID string) (bool, error) {
	n, err := p.rdb.Exists(ctx, typingKey(identityID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func presenceKey(identityID string) string {
	return fmt.Sprintf("tgtz:presence:%s", identityID)
}

func typingKey(identityID string) string {
	return fmt.Sprintf("tgtz:typing:%s", identityID)
}
