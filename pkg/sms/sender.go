// Package sms delivers outbound text messages through a pluggable
// sender and a redis-streams job queue.
package sms

import "context"

// Sender delivers SMS text to a phone number.
type Sender interface {
	// SendCode delivers a one-time verification code.
	SendCode(ctx context.Context, phone, code string) error
	// Send delivers a free-form text body.
	Send(ctx context.Context, phone, body string) error
}

// NoopSender logs nothing and delivers nothing. Used in development
// when no SMS provider is configured.
type NoopSender struct{}

func (NoopSender) SendCode(_ context.Context, _, _ string) error { return nil }
func (NoopSender) Send(_ context.Context, _, _ string) error     { return nil }
