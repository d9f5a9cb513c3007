package sms

import (
	"context"
	"errors"
	"testing"

	"tonygamingtz/pkg/domain"
	"tonygamingtz/pkg/queue"
	"tonygamingtz/pkg/store"
)

type stubSender struct {
	sent     []string
	failNext int
}

func (s *stubSender) SendCode(_ context.Context, phone, code string) error {
	return s.Send(context.Background(), phone, code)
}

func (s *stubSender) Send(_ context.Context, phone, body string) error {
	if s.failNext > 0 {
		s.failNext--
		return errors.New("provider unavailable")
	}
	s.sent = append(s.sent, phone+":"+body)
	return nil
}

type stubQueue struct {
	enqueued []string
	err      error
}

func (q *stubQueue) Enqueue(_ context.Context, smsID string) (queue.JobStatus, error) {
	if q.err != nil {
		return queue.JobStatus{}, q.err
	}
	q.enqueued = append(q.enqueued, smsID)
	return queue.JobStatus{ID: "job-" + smsID, SMSID: smsID, Status: queue.StatusQueued}, nil
}

func TestQueuePersistsAndEnqueues(t *testing.T) {
	st := store.NewMemoryStore()
	q := &stubQueue{}
	svc := NewService(st, q, &stubSender{})

	rec, err := svc.Queue(context.Background(), domain.AdminID, "255712000001", "habari")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if rec.Status != domain.SMSQueued {
		t.Fatalf("status = %q, want queued", rec.Status)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != rec.ID {
		t.Fatalf("enqueued = %v, want [%s]", q.enqueued, rec.ID)
	}
	got, ok, err := st.GetSMS(context.Background(), rec.ID)
	if err != nil || !ok {
		t.Fatalf("GetSMS: ok=%v err=%v", ok, err)
	}
	if got.ToPhone != "255712000001" || got.Body != "habari" {
		t.Fatalf("stored record = %+v", got)
	}
}

func TestQueueRejectsEmptyInput(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), &stubQueue{}, &stubSender{})
	if _, err := svc.Queue(context.Background(), domain.AdminID, "  ", "hi"); !errors.Is(err, ErrEmptyPhone) {
		t.Fatalf("empty phone err = %v", err)
	}
	if _, err := svc.Queue(context.Background(), domain.AdminID, "255712000001", ""); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("empty body err = %v", err)
	}
}

func TestQueueEnqueueFailureMarksFailed(t *testing.T) {
	st := store.NewMemoryStore()
	q := &stubQueue{err: errors.New("stream down")}
	svc := NewService(st, q, &stubSender{})

	_, err := svc.Queue(context.Background(), domain.AdminID, "255712000001", "habari")
	if err == nil {
		t.Fatal("expected error when enqueue fails")
	}
	recs, err := st.ListSMSBySender(context.Background(), domain.AdminID, 10)
	if err != nil {
		t.Fatalf("ListSMSBySender: %v", err)
	}
	if len(recs) != 1 || recs[0].Status != domain.SMSFailed {
		t.Fatalf("records = %+v, want one failed", recs)
	}
}

func TestHandleJobDeliversAndMarksSent(t *testing.T) {
	st := store.NewMemoryStore()
	sender := &stubSender{}
	svc := NewService(st, &stubQueue{}, sender)

	rec, err := svc.Queue(context.Background(), domain.AdminID, "255712000001", "habari")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	job := queue.JobStatus{ID: "job-1", SMSID: rec.ID}
	if err := svc.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "255712000001:habari" {
		t.Fatalf("sent = %v", sender.sent)
	}
	got, _, _ := st.GetSMS(context.Background(), rec.ID)
	if got.Status != domain.SMSSent {
		t.Fatalf("status = %q, want sent", got.Status)
	}

	// second delivery of the same job is a no-op
	if err := svc.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("HandleJob retry: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("duplicate delivery: sent = %v", sender.sent)
	}
}

func TestHandleJobFailureMarksFailedAndRetries(t *testing.T) {
	st := store.NewMemoryStore()
	sender := &stubSender{failNext: 1}
	svc := NewService(st, &stubQueue{}, sender)

	rec, err := svc.Queue(context.Background(), domain.AdminID, "255712000001", "habari")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	job := queue.JobStatus{ID: "job-1", SMSID: rec.ID}
	if err := svc.HandleJob(context.Background(), job); err == nil {
		t.Fatal("expected delivery error")
	}
	got, _, _ := st.GetSMS(context.Background(), rec.ID)
	if got.Status != domain.SMSFailed || got.Error == "" {
		t.Fatalf("record = %+v, want failed with error", got)
	}

	// retry succeeds and clears the error
	if err := svc.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("HandleJob retry: %v", err)
	}
	got, _, _ = st.GetSMS(context.Background(), rec.ID)
	if got.Status != domain.SMSSent || got.Error != "" {
		t.Fatalf("record after retry = %+v, want sent", got)
	}
}

func TestHandleJobMissingRecordIsNoop(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), &stubQueue{}, &stubSender{})
	err := svc.HandleJob(context.Background(), queue.JobStatus{ID: "job-x", SMSID: "missing"})
	if err != nil {
		t.Fatalf("HandleJob: %v", err)
	}
}
