// Package relay implements the centralized messaging model: every
// non-administrator conversation runs through the administrator account, and
// what an identity can see is decided per record at read and delivery time.
package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"tonygamingtz/pkg/domain"
	"tonygamingtz/pkg/storage"
)

const (
	defaultHistoryLimit = 500
	attachmentURLExpiry = 24 * time.Hour
)

// VisibilityPolicy decides whether a viewer may see one message record.
type VisibilityPolicy interface {
	Visible(viewer domain.Identity, msg domain.Message) bool
}

// Publisher fans a stored message out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, msg domain.Message)
}

// Notifier is told about every stored message so it can raise notifications
// for the recipient.
type Notifier interface {
	MessageStored(ctx context.Context, msg domain.Message)
}

// Store is the persistence surface the relay needs.
type Store interface {
	AppendMessage(ctx context.Context, msg domain.Message) error
	ListMessages(ctx context.Context, limit int) ([]domain.Message, error)
	ListMessagesWith(ctx context.Context, identityID string, limit int) ([]domain.Message, error)
	MarkMessagesRead(ctx context.Context, recipientID, senderID string) error
}

// adminFunnel is the default policy: a record is visible to its sender, to
// its recipient, and to every identity when it is an administrator
// broadcast. The administrator sees everything.
type adminFunnel struct{}

// DefaultVisibility returns the standard policy.
func DefaultVisibility() VisibilityPolicy { return adminFunnel{} }

func (adminFunnel) Visible(viewer domain.Identity, msg domain.Message) bool {
	if viewer.IsAdmin() {
		return true
	}
	if msg.SenderID == viewer.ID || msg.RecipientID == viewer.ID {
		return true
	}
	return msg.Broadcast() && msg.SenderID == domain.AdminID
}

// Relay stores, filters, and fans out messages.
type Relay struct {
	store      Store
	files      storage.ObjectStore
	visibility VisibilityPolicy
	publisher  Publisher
	notifier   Notifier
	history    int
	now        func() time.Time
}

// Option customizes relay construction.
type Option func(*Relay)

// WithPublisher attaches a live-delivery publisher.
func WithPublisher(p Publisher) Option {
	return func(r *Relay) { r.publisher = p }
}

// WithNotifier attaches a notification hook.
func WithNotifier(n Notifier) Option {
	return func(r *Relay) { r.notifier = n }
}

// WithFileStore attaches object storage for attachments.
func WithFileStore(files storage.ObjectStore) Option {
	return func(r *Relay) { r.files = files }
}

// WithHistoryLimit caps how many records history reads consider.
func WithHistoryLimit(limit int) Option {
	return func(r *Relay) {
		if limit > 0 {
			r.history = limit
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// New wires a relay over the given store and the default visibility policy.
func New(store Store, opts ...Option) *Relay {
	r := &Relay{
		store:      store,
		visibility: DefaultVisibility(),
		history:    defaultHistoryLimit,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send stores a text message. Non-administrator senders always reach the
// administrator regardless of the recipient they asked for; only the
// administrator may address arbitrary identities or the broadcast audience.
func (r *Relay) Send(ctx context.Context, sender domain.Identity, recipientID, recipientName, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, fmt.Errorf("message text required")
	}
	msg := r.newMessage(sender, recipientID, recipientName)
	msg.Kind = domain.KindText
	msg.Text = text
	return r.deliver(ctx, msg)
}

// SendFile uploads an attachment and stores a message referencing it. The
// content kind is resolved from the declared MIME type; caption is optional
// text shown with the attachment.
func (r *Relay) SendFile(ctx context.Context, sender domain.Identity, recipientID, recipientName, filename, contentType, caption string, size int64, data io.Reader) (domain.Message, error) {
	if r.files == nil {
		return domain.Message{}, fmt.Errorf("file sending not configured")
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return domain.Message{}, fmt.Errorf("filename required")
	}
	key := storage.AttachmentKey(filename)
	if err := r.files.Put(ctx, key, data, size, contentType); err != nil {
		return domain.Message{}, fmt.Errorf("store attachment: %w", err)
	}
	url, err := r.files.PresignGet(ctx, key, attachmentURLExpiry)
	if err != nil {
		return domain.Message{}, fmt.Errorf("presign attachment: %w", err)
	}
	msg := r.newMessage(sender, recipientID, recipientName)
	msg.Kind = KindForContentType(contentType)
	msg.Text = strings.TrimSpace(caption)
	msg.FileURL = url
	msg.FileName = filename
	msg.FileSize = size
	return r.deliver(ctx, msg)
}

func (r *Relay) newMessage(sender domain.Identity, recipientID, recipientName string) domain.Message {
	recipientID = strings.TrimSpace(recipientID)
	recipientName = strings.TrimSpace(recipientName)
	if !sender.IsAdmin() {
		recipientID = domain.AdminID
		recipientName = domain.AdminName
	} else if recipientID == "" {
		recipientID = domain.BroadcastRecipient
		recipientName = ""
	}
	return domain.Message{
		ID:            uuid.NewString(),
		SenderID:      sender.ID,
		SenderName:    sender.DisplayName,
		RecipientID:   recipientID,
		RecipientName: recipientName,
		Delivered:     true,
		CreatedAt:     r.now(),
	}
}

func (r *Relay) deliver(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if err := r.store.AppendMessage(ctx, msg); err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	if r.publisher != nil {
		r.publisher.Publish(ctx, msg)
	}
	if r.notifier != nil {
		r.notifier.MessageStored(ctx, msg)
	}
	slog.Info("message relayed",
		"message_id", msg.ID,
		"sender", msg.SenderID,
		"recipient", msg.RecipientID,
		"kind", msg.Kind)
	return msg, nil
}

// History returns the records the viewer may see, oldest first.
func (r *Relay) History(ctx context.Context, viewer domain.Identity, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > r.history {
		limit = r.history
	}
	var (
		records []domain.Message
		err     error
	)
	if viewer.IsAdmin() {
		records, err = r.store.ListMessages(ctx, limit)
	} else {
		records, err = r.store.ListMessagesWith(ctx, viewer.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	visible := make([]domain.Message, 0, len(records))
	for _, msg := range records {
		if r.visibility.Visible(viewer, msg) {
			visible = append(visible, msg)
		}
	}
	return visible, nil
}

// MarkRead flags everything the other party sent to the viewer as read.
func (r *Relay) MarkRead(ctx context.Context, viewer domain.Identity, otherID string) error {
	otherID = strings.TrimSpace(otherID)
	if !viewer.IsAdmin() {
		// Users only ever converse with the administrator.
		otherID = domain.AdminID
	}
	if otherID == "" {
		return fmt.Errorf("sender id required")
	}
	return r.store.MarkMessagesRead(ctx, viewer.ID, otherID)
}

// Conversation is an administrator-side roll-up of one user thread.
type Conversation struct {
	IdentityID   string         `json:"identityId"`
	IdentityName string         `json:"identityName"`
	LastMessage  domain.Message `json:"lastMessage"`
	Unread       int            `json:"unread"`
}

// Conversations rolls the full record set up into per-user threads for the
// administrator view, most recent thread first. Broadcast records are
// excluded; they belong to no single thread.
func (r *Relay) Conversations(ctx context.Context, viewer domain.Identity) ([]Conversation, error) {
	if !viewer.IsAdmin() {
		return nil, fmt.Errorf("conversations are administrator-only")
	}
	records, err := r.store.ListMessages(ctx, r.history)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	byUser := make(map[string]*Conversation)
	order := make([]string, 0)
	for _, msg := range records {
		if msg.Broadcast() {
			continue
		}
		userID, userName := msg.SenderID, msg.SenderName
		if userID == domain.AdminID {
			userID, userName = msg.RecipientID, msg.RecipientName
		}
		if userID == domain.AdminID || userID == "" {
			continue
		}
		conv, ok := byUser[userID]
		if !ok {
			conv = &Conversation{IdentityID: userID}
			byUser[userID] = conv
			order = append(order, userID)
		}
		if userName != "" {
			conv.IdentityName = userName
		}
		conv.LastMessage = msg
		if msg.RecipientID == domain.AdminID && !msg.Read {
			conv.Unread++
		}
	}
	res := make([]Conversation, 0, len(byUser))
	for _, userID := range order {
		res = append(res, *byUser[userID])
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].LastMessage.CreatedAt.After(res[j].LastMessage.CreatedAt)
	})
	return res, nil
}

// KindForContentType maps a MIME type to the stored content kind.
func KindForContentType(contentType string) domain.ContentKind {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return domain.KindImage
	case strings.HasPrefix(contentType, "video/"):
		return domain.KindVideo
	default:
		return domain.KindFile
	}
}
