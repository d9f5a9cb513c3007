package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tonygamingtz/pkg/domain"
)

type recordingChannel struct {
	mu        sync.Mutex
	name      string
	err       error
	delivered []domain.Notification
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(_ context.Context, _ string, n domain.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.delivered = append(c.delivered, n)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.delivered)
}

func TestDispatchAssignsRecordIdentity(t *testing.T) {
	ch := &recordingChannel{name: "persisted"}
	d := NewDispatcher(ch)

	n, err := d.Dispatch(context.Background(), "user_255700000001", domain.Notification{
		Title: "New Message",
		Body:  "hello",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if n.ID == "" || n.CreatedAt.IsZero() {
		t.Fatalf("record identity missing: %+v", n)
	}
	if n.Channel != domain.ChannelInApp {
		t.Fatalf("default channel = %q", n.Channel)
	}
	if ch.count() != 1 {
		t.Fatalf("delivered %d, want 1", ch.count())
	}
}

func TestDispatchChannelFailureDoesNotStopOthers(t *testing.T) {
	broken := &recordingChannel{name: "push", err: errors.New("broker down")}
	healthy := &recordingChannel{name: "persisted"}
	d := NewDispatcher(broken, healthy)

	if _, err := d.Dispatch(context.Background(), "user_255700000001", domain.Notification{Title: "t"}); err != nil {
		t.Fatalf("partial failure must not surface: %v", err)
	}
	if healthy.count() != 1 {
		t.Fatalf("healthy channel delivered %d, want 1", healthy.count())
	}
}

func TestDispatchAllChannelsFailing(t *testing.T) {
	d := NewDispatcher(
		&recordingChannel{name: "push", err: errors.New("broker down")},
		&recordingChannel{name: "persisted", err: errors.New("db down")},
	)
	if _, err := d.Dispatch(context.Background(), "user_255700000001", domain.Notification{Title: "t"}); err == nil {
		t.Fatal("expected error when every channel fails")
	}
}

func TestInAppFeedDelivery(t *testing.T) {
	feed := NewInAppFeed()
	events, cancel := feed.Subscribe(4)
	defer cancel()

	n := domain.Notification{ID: "n1", Title: "New Message", Channel: domain.ChannelInApp}
	if err := feed.Deliver(context.Background(), "user_255700000001", n); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	select {
	case event := <-events:
		if event.Notification.ID != "n1" || event.RecipientID != "user_255700000001" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
	}
}

func TestInAppFeedDropsSlowSubscriber(t *testing.T) {
	feed := NewInAppFeed()
	_, cancel := feed.Subscribe(1)
	defer cancel()

	n := domain.Notification{ID: "n1"}
	_ = feed.Deliver(context.Background(), "u", n)
	n.ID = "n2"
	_ = feed.Deliver(context.Background(), "u", n)

	// Cancel after drop must not panic on double close.
	cancel()
}
