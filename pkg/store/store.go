package store

import (
	"context"
	"time"

	"tonygamingtz/pkg/domain"
)

// Store defines persistence operations for identities, messages,
// notifications, calls, and outbound SMS records.
type Store interface {
	// identities
	SaveIdentity(ctx context.Context, id domain.Identity) error
	GetIdentity(ctx context.Context, id string) (domain.Identity, bool, error)
	GetIdentityByPhone(ctx context.Context, phone string) (domain.Identity, bool, error)
	ListIdentities(ctx context.Context) ([]domain.Identity, error)
	TouchIdentity(ctx context.Context, id string, at time.Time) error

	// messages
	AppendMessage(ctx context.Context, msg domain.Message) error
	// ListMessages returns every record oldest first, capped at limit.
	ListMessages(ctx context.Context, limit int) ([]domain.Message, error)
	// ListMessagesWith returns records where the identity is sender or
	// recipient, plus broadcast records, oldest first.
	ListMessagesWith(ctx context.Context, identityID string, limit int) ([]domain.Message, error)
	// MarkMessagesRead flags every unread record from senderID to
	// recipientID as read.
	MarkMessagesRead(ctx context.Context, recipientID, senderID string) error

	// notifications
	SaveNotification(ctx context.Context, recipientID string, n domain.Notification) error
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	// calls
	SaveCall(ctx context.Context, call domain.Call) error
	GetCall(ctx context.Context, id string) (domain.Call, bool, error)
	ListCallsFor(ctx context.Context, identityID string, limit int) ([]domain.Call, error)

	// sms
	SaveSMS(ctx context.Context, rec domain.SMSRecord) error
	GetSMS(ctx context.Context, id string) (domain.SMSRecord, bool, error)
	SetSMSStatus(ctx context.Context, id string, status domain.SMSStatus, errMsg string) error
	ListSMSBySender(ctx context.Context, senderID string, limit int) ([]domain.SMSRecord, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(identityID string) (string, error)
	GetIdentityIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// UserSessionRevoker is an optional capability that revokes all sessions
// issued for an identity since a cutoff time.
type UserSessionRevoker interface {
	RevokeUserSessions(identityID string, since time.Time) error
}

// UserRefreshTokenRevoker is an optional capability that revokes all refresh
// tokens for an identity.
type UserRefreshTokenRevoker interface {
	RevokeUserRefreshTokens(identityID string) error
}
