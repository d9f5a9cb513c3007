package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"tonygamingtz/pkg/domain"
)

// MemoryStore keeps all records in-process. Used for tests and single-node
// development runs.
type MemoryStore struct {
	mu            sync.RWMutex
	identities    map[string]domain.Identity
	phones        map[string]string // stripped phone -> identity ID
	messages      []domain.Message
	notifications map[string][]domain.Notification // recipient ID -> newest last
	calls         map[string]domain.Call
	callOrder     []string
	sms           map[string]domain.SMSRecord
	smsOrder      []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities:    make(map[string]domain.Identity),
		phones:        make(map[string]string),
		notifications: make(map[string][]domain.Notification),
		calls:         make(map[string]domain.Call),
		sms:           make(map[string]domain.SMSRecord),
	}
}

// SaveIdentity stores or replaces an identity record.
func (m *MemoryStore) SaveIdentity(_ context.Context, id domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[id.ID] = id
	if id.PhoneNumber != "" {
		m.phones[id.PhoneNumber] = id.ID
	}
	return nil
}

// GetIdentity returns an identity by ID.
func (m *MemoryStore) GetIdentity(_ context.Context, id string) (domain.Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.identities[id]
	return identity, ok, nil
}

// GetIdentityByPhone looks up an identity by phone number.
func (m *MemoryStore) GetIdentityByPhone(_ context.Context, phone string) (domain.Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.phones[phone]
	if !ok {
		return domain.Identity{}, false, nil
	}
	identity, ok := m.identities[id]
	return identity, ok, nil
}

// ListIdentities returns all identities ordered by creation time.
func (m *MemoryStore) ListIdentities(_ context.Context) ([]domain.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Identity, 0, len(m.identities))
	for _, identity := range m.identities {
		res = append(res, identity)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// TouchIdentity refreshes the last-seen timestamp.
func (m *MemoryStore) TouchIdentity(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return nil
	}
	identity.LastSeenAt = at.UTC()
	m.identities[id] = identity
	return nil
}

// AppendMessage records a message.
func (m *MemoryStore) AppendMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	return nil
}

// ListMessages returns every record oldest first, capped at limit.
func (m *MemoryStore) ListMessages(_ context.Context, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tailMessages(m.messages, limit, func(domain.Message) bool { return true }), nil
}

// ListMessagesWith returns records involving the identity plus broadcasts,
// oldest first.
func (m *MemoryStore) ListMessagesWith(_ context.Context, identityID string, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tailMessages(m.messages, limit, func(msg domain.Message) bool {
		return msg.SenderID == identityID || msg.RecipientID == identityID || msg.Broadcast()
	}), nil
}

func tailMessages(all []domain.Message, limit int, keep func(domain.Message) bool) []domain.Message {
	if limit <= 0 {
		return []domain.Message{}
	}
	filtered := make([]domain.Message, 0, len(all))
	for _, msg := range all {
		if keep(msg) {
			filtered = append(filtered, msg)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered
}

// MarkMessagesRead flags unread messages from sender to recipient as read.
func (m *MemoryStore) MarkMessagesRead(_ context.Context, recipientID, senderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].RecipientID == recipientID && m.messages[i].SenderID == senderID {
			m.messages[i].Read = true
		}
	}
	return nil
}

// SaveNotification records a dispatched notification for a recipient.
func (m *MemoryStore) SaveNotification(_ context.Context, recipientID string, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.notifications[recipientID] {
		if existing.ID == n.ID {
			m.notifications[recipientID][i] = n
			return nil
		}
	}
	m.notifications[recipientID] = append(m.notifications[recipientID], n)
	return nil
}

// ListNotifications returns recent notifications for a recipient, newest
// first.
func (m *MemoryStore) ListNotifications(_ context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return []domain.Notification{}, nil
	}
	all := m.notifications[recipientID]
	res := make([]domain.Notification, 0, limit)
	for i := len(all) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, all[i])
	}
	return res, nil
}

// MarkNotificationRead flags one notification as read.
func (m *MemoryStore) MarkNotificationRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for recipient := range m.notifications {
		for i := range m.notifications[recipient] {
			if m.notifications[recipient][i].ID == id {
				m.notifications[recipient][i].Read = true
				return nil
			}
		}
	}
	return nil
}

// SaveCall stores or updates a call record.
func (m *MemoryStore) SaveCall(_ context.Context, call domain.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.calls[call.ID]; !exists {
		m.callOrder = append(m.callOrder, call.ID)
	}
	m.calls[call.ID] = call
	return nil
}

// GetCall retrieves a call record.
func (m *MemoryStore) GetCall(_ context.Context, id string) (domain.Call, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	call, ok := m.calls[id]
	return call, ok, nil
}

// ListCallsFor returns recent calls where the identity took part, newest
// first.
func (m *MemoryStore) ListCallsFor(_ context.Context, identityID string, limit int) ([]domain.Call, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return []domain.Call{}, nil
	}
	res := make([]domain.Call, 0, limit)
	for i := len(m.callOrder) - 1; i >= 0 && len(res) < limit; i-- {
		call, ok := m.calls[m.callOrder[i]]
		if !ok {
			continue
		}
		if call.CallerID == identityID || call.CalleeID == identityID {
			res = append(res, call)
		}
	}
	return res, nil
}

// SaveSMS stores or updates an outbound SMS record.
func (m *MemoryStore) SaveSMS(_ context.Context, rec domain.SMSRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sms[rec.ID]; !exists {
		m.smsOrder = append(m.smsOrder, rec.ID)
	}
	m.sms[rec.ID] = rec
	return nil
}

// GetSMS looks up an outbound SMS record by id.
func (m *MemoryStore) GetSMS(_ context.Context, id string) (domain.SMSRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sms[id]
	return rec, ok, nil
}

// SetSMSStatus updates delivery status/error.
func (m *MemoryStore) SetSMSStatus(_ context.Context, id string, status domain.SMSStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sms[id]
	if !ok {
		return nil
	}
	rec.Status = status
	rec.Error = errMsg
	rec.UpdatedAt = time.Now().UTC()
	m.sms[id] = rec
	return nil
}

// ListSMSBySender returns recent SMS records for a sender, newest first.
func (m *MemoryStore) ListSMSBySender(_ context.Context, senderID string, limit int) ([]domain.SMSRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return []domain.SMSRecord{}, nil
	}
	res := make([]domain.SMSRecord, 0, limit)
	for i := len(m.smsOrder) - 1; i >= 0 && len(res) < limit; i-- {
		rec, ok := m.sms[m.smsOrder[i]]
		if !ok {
			continue
		}
		if rec.SenderID == senderID {
			res = append(res, rec)
		}
	}
	return res, nil
}
