package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"tonygamingtz/pkg/domain"
)

const migrateLockID int64 = 81348134

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&IdentityModel{},
			&MessageModel{},
			&NotificationModel{},
			&CallModel{},
			&SMSModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		// Legacy rows stored the admin account under arbitrary casing.
		if err := tx.Exec(`
			UPDATE identity_models
			SET display_name = ?
			WHERE class = 'administrator' AND display_name <> ?;
		`, domain.AdminName, domain.AdminName).Error; err != nil {
			return fmt.Errorf("normalize admin display name: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveIdentity registers or updates an identity.
func (s *GormStore) SaveIdentity(ctx context.Context, id domain.Identity) error {
	model := identityToModel(id)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"phone_number", "display_name", "class", "reserved_name", "last_seen_at"}),
	}).Create(&model).Error
}

// GetIdentity returns an identity by ID.
func (s *GormStore) GetIdentity(ctx context.Context, id string) (domain.Identity, bool, error) {
	var model IdentityModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Identity{}, false, nil
		}
		return domain.Identity{}, false, err
	}
	return identityFromModel(model), true, nil
}

// GetIdentityByPhone looks up an identity by phone number.
func (s *GormStore) GetIdentityByPhone(ctx context.Context, phone string) (domain.Identity, bool, error) {
	var model IdentityModel
	if err := s.db.WithContext(ctx).Where("phone_number = ?", phone).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Identity{}, false, nil
		}
		return domain.Identity{}, false, err
	}
	return identityFromModel(model), true, nil
}

// ListIdentities returns all identities ordered by created_at.
func (s *GormStore) ListIdentities(ctx context.Context) ([]domain.Identity, error) {
	var models []IdentityModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Identity, 0, len(models))
	for _, m := range models {
		res = append(res, identityFromModel(m))
	}
	return res, nil
}

// TouchIdentity refreshes the last-seen timestamp.
func (s *GormStore) TouchIdentity(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&IdentityModel{}).
		Where("id = ?", id).
		Update("last_seen_at", at.UTC()).Error
}

// AppendMessage records a message.
func (s *GormStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	model := messageToModel(msg)
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListMessages returns recent messages (newest first, then reversed to
// chronological).
func (s *GormStore) ListMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	return s.listMessages(ctx, limit)
}

// ListMessagesWith returns recent messages involving the identity, including
// broadcast records.
func (s *GormStore) ListMessagesWith(ctx context.Context, identityID string, limit int) ([]domain.Message, error) {
	return s.listMessages(ctx, limit,
		"sender_id = ? OR recipient_id = ? OR recipient_id = ?",
		identityID, identityID, domain.BroadcastRecipient)
}

func (s *GormStore) listMessages(ctx context.Context, limit int, conds ...any) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	tx := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	var models []MessageModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

// MarkMessagesRead flags unread messages from sender to recipient as read.
func (s *GormStore) MarkMessagesRead(ctx context.Context, recipientID, senderID string) error {
	return s.db.WithContext(ctx).Model(&MessageModel{}).
		Where("recipient_id = ? AND sender_id = ? AND read = false", recipientID, senderID).
		Update("read", true).Error
}

// SaveNotification records a dispatched notification for a recipient.
func (s *GormStore) SaveNotification(ctx context.Context, recipientID string, n domain.Notification) error {
	model := notificationToModel(recipientID, n)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"read"}),
	}).Create(&model).Error
}

// ListNotifications returns recent notifications for a recipient, newest
// first.
func (s *GormStore) ListNotifications(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		return []domain.Notification{}, nil
	}
	var models []NotificationModel
	if err := s.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		res = append(res, notificationFromModel(m))
	}
	return res, nil
}

// MarkNotificationRead flags one notification as read.
func (s *GormStore) MarkNotificationRead(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("read", true).Error
}

// SaveCall stores or updates a call record.
func (s *GormStore) SaveCall(ctx context.Context, call domain.Call) error {
	model := callToModel(call)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "duration", "updated_at"}),
	}).Create(&model).Error
}

// GetCall retrieves a call record.
func (s *GormStore) GetCall(ctx context.Context, id string) (domain.Call, bool, error) {
	var model CallModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Call{}, false, nil
		}
		return domain.Call{}, false, err
	}
	return callFromModel(model), true, nil
}

// ListCallsFor returns recent calls where the identity is caller or callee.
func (s *GormStore) ListCallsFor(ctx context.Context, identityID string, limit int) ([]domain.Call, error) {
	if limit <= 0 {
		return []domain.Call{}, nil
	}
	var models []CallModel
	if err := s.db.WithContext(ctx).
		Where("caller_id = ? OR callee_id = ?", identityID, identityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Call, 0, len(models))
	for _, m := range models {
		res = append(res, callFromModel(m))
	}
	return res, nil
}

// SaveSMS stores or updates an outbound SMS record.
func (s *GormStore) SaveSMS(ctx context.Context, rec domain.SMSRecord) error {
	model := smsToModel(rec)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "error", "updated_at"}),
	}).Create(&model).Error
}

// GetSMS looks up an outbound SMS record by id.
func (s *GormStore) GetSMS(ctx context.Context, id string) (domain.SMSRecord, bool, error) {
	var model SMSModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err == gorm.ErrRecordNotFound {
		return domain.SMSRecord{}, false, nil
	}
	if err != nil {
		return domain.SMSRecord{}, false, err
	}
	return smsFromModel(model), true, nil
}

// SetSMSStatus updates delivery status/error.
func (s *GormStore) SetSMSStatus(ctx context.Context, id string, status domain.SMSStatus, errMsg string) error {
	return s.db.WithContext(ctx).Model(&SMSModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"error":      errMsg,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ListSMSBySender returns recent SMS records for a sender, newest first.
func (s *GormStore) ListSMSBySender(ctx context.Context, senderID string, limit int) ([]domain.SMSRecord, error) {
	if limit <= 0 {
		return []domain.SMSRecord{}, nil
	}
	var models []SMSModel
	if err := s.db.WithContext(ctx).
		Where("sender_id = ?", senderID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.SMSRecord, 0, len(models))
	for _, m := range models {
		res = append(res, smsFromModel(m))
	}
	return res, nil
}

func identityToModel(id domain.Identity) IdentityModel {
	return IdentityModel{
		ID:           id.ID,
		PhoneNumber:  id.PhoneNumber,
		DisplayName:  id.DisplayName,
		Class:        string(id.Class),
		ReservedName: id.ReservedName,
		CreatedAt:    id.CreatedAt,
		LastSeenAt:   id.LastSeenAt,
	}
}

func identityFromModel(m IdentityModel) domain.Identity {
	class := domain.IdentityClass(m.Class)
	if class == "" {
		class = domain.ClassGuest
	}
	return domain.Identity{
		ID:           m.ID,
		PhoneNumber:  m.PhoneNumber,
		DisplayName:  m.DisplayName,
		Class:        class,
		ReservedName: m.ReservedName,
		CreatedAt:    m.CreatedAt,
		LastSeenAt:   m.LastSeenAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:            msg.ID,
		SenderID:      msg.SenderID,
		SenderName:    msg.SenderName,
		RecipientID:   msg.RecipientID,
		RecipientName: msg.RecipientName,
		Kind:          string(msg.Kind),
		Text:          msg.Text,
		FileURL:       msg.FileURL,
		FileName:      msg.FileName,
		FileSize:      msg.FileSize,
		Read:          msg.Read,
		Delivered:     msg.Delivered,
		CreatedAt:     msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	kind := domain.ContentKind(m.Kind)
	if kind == "" {
		kind = domain.KindText
	}
	return domain.Message{
		ID:            m.ID,
		SenderID:      m.SenderID,
		SenderName:    m.SenderName,
		RecipientID:   m.RecipientID,
		RecipientName: m.RecipientName,
		Kind:          kind,
		Text:          m.Text,
		FileURL:       m.FileURL,
		FileName:      m.FileName,
		FileSize:      m.FileSize,
		Read:          m.Read,
		Delivered:     m.Delivered,
		CreatedAt:     m.CreatedAt,
	}
}

func notificationToModel(recipientID string, n domain.Notification) NotificationModel {
	payload, _ := json.Marshal(n.Payload)
	return NotificationModel{
		ID:          n.ID,
		RecipientID: recipientID,
		Title:       n.Title,
		Body:        n.Body,
		Channel:     string(n.Channel),
		ImageURL:    n.ImageURL,
		LaunchURL:   n.LaunchURL,
		Payload:     payload,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}

func notificationFromModel(m NotificationModel) domain.Notification {
	var payload map[string]string
	if len(m.Payload) > 0 {
		_ = json.Unmarshal(m.Payload, &payload)
	}
	return domain.Notification{
		ID:        m.ID,
		Title:     m.Title,
		Body:      m.Body,
		Channel:   domain.NotificationChannel(m.Channel),
		ImageURL:  m.ImageURL,
		LaunchURL: m.LaunchURL,
		Payload:   payload,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
	}
}

func callToModel(c domain.Call) CallModel {
	return CallModel{
		ID:         c.ID,
		CallerID:   c.CallerID,
		CallerName: c.CallerName,
		CalleeID:   c.CalleeID,
		CalleeName: c.CalleeName,
		Video:      c.Video,
		Status:     string(c.Status),
		Duration:   c.Duration,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func callFromModel(m CallModel) domain.Call {
	return domain.Call{
		ID:         m.ID,
		CallerID:   m.CallerID,
		CallerName: m.CallerName,
		CalleeID:   m.CalleeID,
		CalleeName: m.CalleeName,
		Video:      m.Video,
		Status:     domain.CallStatus(m.Status),
		Duration:   m.Duration,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func smsToModel(rec domain.SMSRecord) SMSModel {
	return SMSModel{
		ID:        rec.ID,
		SenderID:  rec.SenderID,
		ToPhone:   rec.ToPhone,
		Body:      rec.Body,
		Status:    string(rec.Status),
		Error:     rec.Error,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func smsFromModel(m SMSModel) domain.SMSRecord {
	return domain.SMSRecord{
		ID:        m.ID,
		SenderID:  m.SenderID,
		ToPhone:   m.ToPhone,
		Body:      m.Body,
		Status:    domain.SMSStatus(m.Status),
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
