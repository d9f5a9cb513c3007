package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tonygamingtz/internal/util"
	"tonygamingtz/pkg/domain"
	"tonygamingtz/pkg/queue"
)

var (
	ErrEmptyPhone = errors.New("sms: empty destination phone")
	ErrEmptyBody  = errors.New("sms: empty message body")
)

// Store is the persistence surface the SMS service needs.
type Store interface {
	SaveSMS(ctx context.Context, rec domain.SMSRecord) error
	GetSMS(ctx context.Context, id string) (domain.SMSRecord, bool, error)
	SetSMSStatus(ctx context.Context, id string, status domain.SMSStatus, errMsg string) error
	ListSMSBySender(ctx context.Context, senderID string, limit int) ([]domain.SMSRecord, error)
}

// Queue enqueues delivery jobs referencing a stored SMS record.
type Queue interface {
	Enqueue(ctx context.Context, smsID string) (queue.JobStatus, error)
}

// Service records outbound SMS and hands delivery to the job queue.
// The queue worker calls HandleJob for each dequeued job.
type Service struct {
	store  Store
	queue  Queue
	sender Sender
}

func NewService(st Store, q Queue, sender Sender) *Service {
	if sender == nil {
		sender = NoopSender{}
	}
	return &Service{store: st, queue: q, sender: sender}
}

// Queue persists the record as queued and enqueues a delivery job.
func (s *Service) Queue(ctx context.Context, senderID, toPhone, body string) (domain.SMSRecord, error) {
	toPhone = strings.TrimSpace(toPhone)
	if toPhone == "" {
		return domain.SMSRecord{}, ErrEmptyPhone
	}
	if strings.TrimSpace(body) == "" {
		return domain.SMSRecord{}, ErrEmptyBody
	}
	now := time.Now().UTC()
	rec := domain.SMSRecord{
		ID:        util.NewID(),
		SenderID:  senderID,
		ToPhone:   toPhone,
		Body:      body,
		Status:    domain.SMSQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveSMS(ctx, rec); err != nil {
		return domain.SMSRecord{}, fmt.Errorf("save sms: %w", err)
	}
	if s.queue != nil {
		if _, err := s.queue.Enqueue(ctx, rec.ID); err != nil {
			_ = s.store.SetSMSStatus(ctx, rec.ID, domain.SMSFailed, "enqueue failed")
			return domain.SMSRecord{}, fmt.Errorf("enqueue sms: %w", err)
		}
	}
	slog.Info("sms queued", "smsId", rec.ID, "senderId", senderID)
	return rec, nil
}

// HandleJob delivers one queued SMS. It is the handler given to the
// redis queue worker; returning an error triggers a retry.
func (s *Service) HandleJob(ctx context.Context, job queue.JobStatus) error {
	rec, ok, err := s.store.GetSMS(ctx, job.SMSID)
	if err != nil {
		return fmt.Errorf("load sms %s: %w", job.SMSID, err)
	}
	if !ok {
		slog.Warn("sms job references missing record", "smsId", job.SMSID, "jobId", job.ID)
		return nil
	}
	if rec.Status == domain.SMSSent {
		return nil
	}
	if err := s.sender.Send(ctx, rec.ToPhone, rec.Body); err != nil {
		_ = s.store.SetSMSStatus(ctx, rec.ID, domain.SMSFailed, err.Error())
		return fmt.Errorf("deliver sms %s: %w", rec.ID, err)
	}
	if err := s.store.SetSMSStatus(ctx, rec.ID, domain.SMSSent, ""); err != nil {
		return fmt.Errorf("mark sms sent %s: %w", rec.ID, err)
	}
	slog.Info("sms delivered", "smsId", rec.ID)
	return nil
}

// History lists recent outbound SMS for a sender, newest first.
func (s *Service) History(ctx context.Context, senderID string, limit int) ([]domain.SMSRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListSMSBySender(ctx, senderID, limit)
}
