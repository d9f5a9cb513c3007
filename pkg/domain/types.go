package domain

import "time"

type IdentityClass string

const (
	ClassGuest         IdentityClass = "guest"
	ClassRegistered    IdentityClass = "registered"
	ClassAdministrator IdentityClass = "administrator"
)

// AdminID is the single reserved identity ID for the administrator account.
// It never encodes the admin phone number.
const AdminID = "admin_secure_uid"

// AdminName is the administrator display name, always capitalized.
const AdminName = "TONYGAMINGTZ"

// BroadcastRecipient marks a message visible to every non-administrator identity.
const BroadcastRecipient = "broadcast"

type Identity struct {
	ID           string        `json:"id"`
	PhoneNumber  string        `json:"phoneNumber,omitempty"`
	DisplayName  string        `json:"displayName,omitempty"`
	Class        IdentityClass `json:"class"`
	ReservedName bool          `json:"reservedName"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastSeenAt   time.Time     `json:"lastSeenAt"`
}

// IsAdmin reports the derived administrator flag. Stored class values are
// advisory only; callers must re-derive from phone/name at read time.
func (i Identity) IsAdmin() bool {
	return i.Class == ClassAdministrator
}

type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
	KindVideo ContentKind = "video"
	KindFile  ContentKind = "file"
)

type Message struct {
	ID            string      `json:"id"`
	SenderID      string      `json:"senderId"`
	SenderName    string      `json:"senderName"`
	RecipientID   string      `json:"recipientId"`
	RecipientName string      `json:"recipientName"`
	Kind          ContentKind `json:"kind"`
	Text          string      `json:"text,omitempty"`
	FileURL       string      `json:"fileUrl,omitempty"`
	FileName      string      `json:"fileName,omitempty"`
	FileSize      int64       `json:"fileSize,omitempty"`
	Read          bool        `json:"read"`
	Delivered     bool        `json:"delivered"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Broadcast reports whether the record targets all non-administrator identities.
func (m Message) Broadcast() bool {
	return m.RecipientID == BroadcastRecipient
}

type NotificationChannel string

const (
	ChannelPush  NotificationChannel = "push"
	ChannelInApp NotificationChannel = "in-app"
)

type Notification struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Body      string              `json:"body"`
	Channel   NotificationChannel `json:"channel"`
	ImageURL  string              `json:"imageUrl,omitempty"`
	LaunchURL string              `json:"launchUrl,omitempty"`
	Payload   map[string]string   `json:"data,omitempty"`
	Read      bool                `json:"read"`
	CreatedAt time.Time           `json:"createdAt"`
}

type CallStatus string

const (
	CallRinging  CallStatus = "ringing"
	CallAccepted CallStatus = "accepted"
	CallDeclined CallStatus = "declined"
	CallMissed   CallStatus = "missed"
	CallEnded    CallStatus = "ended"
)

// Call is a simulated call record: a sequence of document writes, not
// real-time media signaling.
type Call struct {
	ID         string     `json:"id"`
	CallerID   string     `json:"callerId"`
	CallerName string     `json:"callerName"`
	CalleeID   string     `json:"calleeId"`
	CalleeName string     `json:"calleeName"`
	Video      bool       `json:"video"`
	Status     CallStatus `json:"status"`
	Duration   int64      `json:"durationSeconds,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type SMSStatus string

const (
	SMSQueued SMSStatus = "queued"
	SMSSent   SMSStatus = "sent"
	SMSFailed SMSStatus = "failed"
)

type SMSRecord struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	ToPhone   string    `json:"toPhone"`
	Body      string    `json:"body"`
	Status    SMSStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
