package services

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"sync"
	"time"
)

// AppointmentNotification carries the details of a booked appointment. Contact
// identity prefers values confirmed verbally during the call over stored
// contact-record values.
type AppointmentNotification struct {
	CallUUID      string
	ContactName   string
	ContactPhone  string
	ContactEmail  string
	AppointmentAt *time.Time
	RawDate       string
	RawTime       string
	Summary       string
}

// AppointmentNotifier delivers booked-appointment notifications. Delivery is
// fire-and-forget: a failure is logged and never fails the classification that
// produced it.
type AppointmentNotifier interface {
	NotifyAppointmentBooked(ctx context.Context, n *AppointmentNotification) error
}

// EmailProvider interface for email sending
type EmailProvider interface {
	SendEmail(email, subject, message string) error
}

// EmailAppointmentNotifier implements AppointmentNotifier via email
type EmailAppointmentNotifier struct {
	emailProvider EmailProvider
	recipient     string
}

// NewEmailAppointmentNotifier creates an email-backed appointment notifier
func NewEmailAppointmentNotifier(emailProvider EmailProvider, recipient string) AppointmentNotifier {
	return &EmailAppointmentNotifier{
		emailProvider: emailProvider,
		recipient:     recipient,
	}
}

// NotifyAppointmentBooked sends the appointment details to the operator inbox
func (s *EmailAppointmentNotifier) NotifyAppointmentBooked(_ context.Context, n *AppointmentNotification) error {
	if s.emailProvider == nil {
		return fmt.Errorf("email provider not configured")
	}
	if s.recipient == "" || !strings.Contains(s.recipient, "@") {
		return fmt.Errorf("invalid notification recipient: %s", s.recipient)
	}

	when := n.RawDate + " " + n.RawTime
	if n.AppointmentAt != nil {
		when = n.AppointmentAt.Format(time.RFC1123)
	}

	subject := fmt.Sprintf("Appointment booked: %s", n.ContactName)
	body := fmt.Sprintf("Appointment booked during call %s\n\nContact: %s\nPhone: %s\nEmail: %s\nWhen: %s\n\n%s",
		n.CallUUID, n.ContactName, n.ContactPhone, n.ContactEmail, when, n.Summary)

	return s.emailProvider.SendEmail(s.recipient, subject, body)
}

// SMTPEmailProvider sends email through an SMTP relay with plain auth
type SMTPEmailProvider struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	fromName  string
}

// NewSMTPEmailProvider creates an SMTP-backed email provider
func NewSMTPEmailProvider(host string, port int, username, password, fromEmail, fromName string) EmailProvider {
	return &SMTPEmailProvider{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (p *SMTPEmailProvider) SendEmail(email, subject, message string) error {
	addr := fmt.Sprintf("%s:%d", p.host, p.port)

	var auth smtp.Auth
	if p.username != "" {
		auth = smtp.PlainAuth("", p.username, p.password, p.host)
	}

	msg := p.buildMessage(email, subject, message)
	if err := smtp.SendMail(addr, auth, p.fromEmail, []string{email}, msg); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", addr, err)
	}
	return nil
}

// buildMessage assembles the RFC 5322 message with CRLF line endings
func (p *SMTPEmailProvider) buildMessage(email, subject, message string) []byte {
	from := p.fromEmail
	if p.fromName != "" {
		from = fmt.Sprintf("%s <%s>", p.fromName, p.fromEmail)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", email)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(message)
	return []byte(b.String())
}

// MockEmailProvider logs emails instead of sending them
type MockEmailProvider struct{}

func NewMockEmailProvider() EmailProvider {
	return &MockEmailProvider{}
}

func (p *MockEmailProvider) SendEmail(email, subject, message string) error {
	log.Printf("Email sent to %s [%s]: %s", email, subject, message)
	return nil
}

// MockAppointmentNotifier records notifications for tests. Safe for
// concurrent use: delivery happens on background goroutines.
type MockAppointmentNotifier struct {
	mu            sync.Mutex
	Notifications []*AppointmentNotification
}

func NewMockAppointmentNotifier() *MockAppointmentNotifier {
	return &MockAppointmentNotifier{}
}

func (m *MockAppointmentNotifier) NotifyAppointmentBooked(_ context.Context, n *AppointmentNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, n)
	return nil
}

// Count returns how many notifications were delivered
func (m *MockAppointmentNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Notifications)
}
