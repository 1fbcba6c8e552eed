package core

import (
	"net/mail"
	"strings"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Subject string
		BodyStr string // simple text/plain content
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages; delivery failures are logged, never returned.
		SendMessages(messages ...*EmailMessage)
	}

	// Notifier delivers best-effort operator notifications. It never fails the caller.
	Notifier interface {
		Notify(subject, body string)
	}
)

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return strings.TrimSpace(m.BodyStr) != "" }

type mailNotifier struct {
	svc EmailService
	to  []mail.Address
}

var _ Notifier = (*mailNotifier)(nil)

// NewMailNotifier returns a Notifier that mails every notification to `to`.
// An empty recipient list turns it into a no-op.
func NewMailNotifier(svc EmailService, to ...mail.Address) Notifier {
	return &mailNotifier{svc: svc, to: to}
}

func (n *mailNotifier) Notify(subject, body string) {
	if n.svc == nil || len(n.to) == 0 {
		return
	}
	msg := &EmailMessage{To: n.to, Subject: subject, BodyStr: body}
	if !msg.HasContent() {
		return
	}
	n.svc.SendMessages(msg)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(string, string) {}
