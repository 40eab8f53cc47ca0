package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/atelio-app/atelio_backend/models"
)

// EmailSender delivers a notification message. Delivery is best-effort:
// by the time a message is handed to a sender the originating business
// operation has already committed.
type EmailSender interface {
	Send(ctx context.Context, message models.NotificationJobData) error
}

// SimulatedEmailSender logs messages instead of delivering them, after
// a fixed latency that stands in for a provider round trip.
type SimulatedEmailSender struct {
	from  string
	delay time.Duration
}

// NewSimulatedEmailSender creates a sender with a 1 second simulated
// delivery latency.
func NewSimulatedEmailSender() *SimulatedEmailSender {
	from := os.Getenv("EMAIL_FROM")
	if from == "" {
		from = "noreply@atelio.app"
	}
	return &SimulatedEmailSender{from: from, delay: time.Second}
}

func (s *SimulatedEmailSender) Send(ctx context.Context, message models.NotificationJobData) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.delay):
	}

	log.Printf("Email sent (simulated) from=%s to=%s subject=%q\n%s", s.from, message.To, message.Subject, message.Body)
	return nil
}

// SMTPEmailSender delivers through an SMTP relay using gomail. Selected
// with EMAIL_MODE=smtp.
type SMTPEmailSender struct {
	host string
	port int
	user string
	pass string
}

// NewSMTPEmailSender reads SMTP_HOST, SMTP_PORT, SMTP_USER and
// SMTP_PASS from the environment.
func NewSMTPEmailSender() *SMTPEmailSender {
	port := 2525
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		fmt.Sscanf(portStr, "%d", &port)
	}
	return &SMTPEmailSender{
		host: os.Getenv("SMTP_HOST"),
		port: port,
		user: os.Getenv("SMTP_USER"),
		pass: os.Getenv("SMTP_PASS"),
	}
}

func (s *SMTPEmailSender) Send(ctx context.Context, message models.NotificationJobData) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.user)
	m.SetHeader("To", message.To)
	m.SetHeader("Subject", message.Subject)
	m.SetBody("text/plain", message.Body)

	d := gomail.NewDialer(s.host, s.port, s.user, s.pass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", message.To, err)
	}
	return nil
}

// NewEmailSenderFromEnv picks the sender implementation from EMAIL_MODE
// ("smtp" for a real relay, anything else simulates).
func NewEmailSenderFromEnv() EmailSender {
	if os.Getenv("EMAIL_MODE") == "smtp" {
		return NewSMTPEmailSender()
	}
	return NewSimulatedEmailSender()
}
