// Package notify fans notifications out through push, in-app, and persisted
// channels. Delivery is fire-and-forget: a failing channel is logged and
// never blocks or fails the others, and no channel confirms receipt.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"tonygamingtz/internal/util"
	"tonygamingtz/pkg/domain"
)

// Channel delivers one notification to one recipient audience.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, recipientID string, n domain.Notification) error
}

// Dispatcher runs every configured channel concurrently per dispatch.
type Dispatcher struct {
	channels []Channel
}

// NewDispatcher wires the channel set. Order is irrelevant; channels run
// concurrently.
func NewDispatcher(channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels}
}

// Dispatch assigns record identity to the notification and fans it out.
// The returned notification carries the assigned ID and timestamp; the error
// is only reported when every channel failed.
func (d *Dispatcher) Dispatch(ctx context.Context, recipientID string, n domain.Notification) (domain.Notification, error) {
	if strings.TrimSpace(n.ID) == "" {
		n.ID = util.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Channel == "" {
		n.Channel = domain.ChannelInApp
	}

	var g errgroup.Group
	failures := make([]error, len(d.channels))
	for i, ch := range d.channels {
		i, ch := i, ch
		g.Go(func() error {
			if err := ch.Deliver(ctx, recipientID, n); err != nil {
				failures[i] = err
				slog.Warn("notification channel failed",
					"channel", ch.Name(),
					"notification_id", n.ID,
					"err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	var last error
	for _, err := range failures {
		if err != nil {
			failed++
			last = err
		}
	}
	if len(d.channels) > 0 && failed == len(d.channels) {
		return n, last
	}
	return n, nil
}

// NotificationStore is the persistence surface the persisted channel needs.
type NotificationStore interface {
	SaveNotification(ctx context.Context, recipientID string, n domain.Notification) error
}

// StoreChannel persists every dispatched notification.
type StoreChannel struct {
	store NotificationStore
}

// NewStoreChannel builds the persisted channel.
func NewStoreChannel(store NotificationStore) *StoreChannel {
	return &StoreChannel{store: store}
}

func (c *StoreChannel) Name() string { return "persisted" }

func (c *StoreChannel) Deliver(ctx context.Context, recipientID string, n domain.Notification) error {
	return c.store.SaveNotification(ctx, recipientID, n)
}
