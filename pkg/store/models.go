package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type IdentityModel struct {
	ID           string `gorm:"primaryKey"`
	PhoneNumber  string `gorm:"index"`
	DisplayName  string
	Class        string `gorm:"not null"`
	ReservedName bool
	CreatedAt    time.Time `gorm:"not null"`
	LastSeenAt   time.Time `gorm:"index"`
}

type MessageModel struct {
	ID            string `gorm:"primaryKey"`
	SenderID      string `gorm:"not null;index"`
	SenderName    string
	RecipientID   string `gorm:"not null;index"`
	RecipientName string
	Kind          string `gorm:"not null"`
	Text          string `gorm:"type:text"`
	FileURL       string
	FileName      string
	FileSize      int64
	Read          bool
	Delivered     bool
	CreatedAt     time.Time `gorm:"not null;index"`
}

type NotificationModel struct {
	ID          string `gorm:"primaryKey"`
	RecipientID string `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Body        string `gorm:"type:text"`
	Channel     string `gorm:"not null"`
	ImageURL    string
	LaunchURL   string
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	Read        bool
	CreatedAt   time.Time `gorm:"not null;index"`
}

type CallModel struct {
	ID         string `gorm:"primaryKey"`
	CallerID   string `gorm:"not null;index"`
	CallerName string
	CalleeID   string `gorm:"not null;index"`
	CalleeName string
	Video      bool
	Status     string `gorm:"not null"`
	Duration   int64
	CreatedAt  time.Time `gorm:"not null;index"`
	UpdatedAt  time.Time
}

type SMSModel struct {
	ID        string `gorm:"primaryKey"`
	SenderID  string `gorm:"not null;index"`
	ToPhone   string `gorm:"not null"`
	Body      string `gorm:"type:text;not null"`
	Status    string `gorm:"not null"`
	Error     string
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time
}
