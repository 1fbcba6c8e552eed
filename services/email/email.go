package emailsvc

import (
	"net/mail"

	"github.com/trezcool/ulearn/core"
)

// New picks the transport of `conf`: console in debug mode, then SendGrid, then SMTP.
// It returns nil when mail is not configured.
func New(conf *core.Config, logger core.Logger) core.EmailService {
	switch {
	case !conf.Email.MailEnabled():
		return nil
	case conf.Debug:
		return NewConsoleService(conf, logger)
	case conf.Email.SendgridAPIKey != "":
		return NewSendgridService(conf, logger)
	case conf.Email.AuthCode != "":
		return NewSMTPService(conf, logger)
	}
	logger.Warn("mail addresses set without SendGrid key or SMTP auth code, notifications disabled")
	return nil
}

// NewNotifier returns the operator Notifier of `conf`; a no-op when mail is not configured.
func NewNotifier(conf *core.Config, logger core.Logger) core.Notifier {
	svc := New(conf, logger)
	if svc == nil {
		return core.NopNotifier{}
	}
	return core.NewMailNotifier(svc, mail.Address{Address: conf.Email.ToAddr})
}
