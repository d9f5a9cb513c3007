package notify

import (
	"context"
	"log/slog"
	"sync"

	"tonygamingtz/pkg/domain"
)

// InAppFeed is the in-app channel: an in-process broadcaster that live
// surfaces (the websocket layer) subscribe to.
type InAppFeed struct {
	mu     sync.Mutex
	subs   map[int]chan FeedEvent
	nextID int
}

// FeedEvent is one in-app delivery.
type FeedEvent struct {
	RecipientID  string              `json:"recipientId"`
	Notification domain.Notification `json:"notification"`
}

// NewInAppFeed builds an empty feed.
func NewInAppFeed() *InAppFeed {
	return &InAppFeed{subs: make(map[int]chan FeedEvent)}
}

func (f *InAppFeed) Name() string { return "in-app" }

// Deliver fans the notification out to current subscribers. Recipient
// filtering happens at the surface, which knows which identity it serves.
func (f *InAppFeed) Deliver(_ context.Context, recipientID string, n domain.Notification) error {
	event := FeedEvent{RecipientID: recipientID, Notification: n}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- event:
		default:
			close(ch)
			delete(f.subs, id)
			slog.Warn("dropped slow in-app feed subscriber")
		}
	}
	return nil
}

// Subscribe registers a live surface. The cancel func closes the channel
// unless the subscriber was already dropped for falling behind.
func (f *InAppFeed) Subscribe(buffer int) (<-chan FeedEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan FeedEvent, buffer)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()
	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}
