package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"tonygamingtz/pkg/domain"
)

// redisChannel carries relayed messages between portal instances.
const redisChannel = "tgtz:relay:messages"

type subscriber struct {
	viewer domain.Identity
	ch     chan domain.Message
}

// Hub delivers stored messages to live subscribers. The visibility policy
// runs once per subscriber per record, so a delivery never leaks a record
// the viewer could not have read from history. With a Redis client attached
// the hub also bridges deliveries across portal instances.
type Hub struct {
	mu         sync.Mutex
	subs       map[int]*subscriber
	nextID     int
	visibility VisibilityPolicy
	rdb        *redis.Client
}

// NewHub builds an in-process hub. rdb may be nil for single-instance runs.
func NewHub(visibility VisibilityPolicy, rdb *redis.Client) *Hub {
	if visibility == nil {
		visibility = DefaultVisibility()
	}
	return &Hub{
		subs:       make(map[int]*subscriber),
		visibility: visibility,
		rdb:        rdb,
	}
}

// Run bridges Redis deliveries into the local fan-out until ctx ends. It is
// a no-op without a Redis client.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		return
	}
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg domain.Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				slog.Warn("drop malformed relay payload", "err", err)
				continue
			}
			h.fanOut(msg)
		}
	}
}

// Publish delivers a stored message. With Redis attached the message goes
// through the shared channel so every instance (this one included) fans it
// out; otherwise it fans out locally.
func (h *Hub) Publish(ctx context.Context, msg domain.Message) {
	if h.rdb != nil {
		payload, err := json.Marshal(msg)
		if err == nil {
			err = h.rdb.Publish(ctx, redisChannel, payload).Err()
			if err == nil {
				return
			}
			slog.Warn("redis publish failed, delivering locally", "err", err)
		}
	}
	h.fanOut(msg)
}

func (h *Hub) fanOut(msg domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		if !h.visibility.Visible(sub.viewer, msg) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Slow consumer: drop the subscription rather than block the
			// fan-out. The client reconnects and reloads history.
			close(sub.ch)
			delete(h.subs, id)
			slog.Warn("dropped slow relay subscriber", "viewer", sub.viewer.ID)
		}
	}
}

// Subscribe registers a viewer for live deliveries. The returned cancel func
// must be called exactly once; the channel closes after cancel (or after the
// subscriber is dropped for falling behind).
func (h *Hub) Subscribe(viewer domain.Identity, buffer int) (<-chan domain.Message, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscriber{viewer: viewer, ch: make(chan domain.Message, buffer)}
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Subscribers reports the current local subscription count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
