package emailsvc

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/trezcool/ulearn/core"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// smtpService sends messages through an authenticated SMTP server, over implicit TLS on 465.
type smtpService struct {
	sender     mailSender
	from       string
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*smtpService)(nil)

func NewSMTPService(conf *core.Config, logger core.Logger) *smtpService {
	return &smtpService{
		sender:     gomail.NewDialer(conf.Email.SMTPHost, conf.Email.SMTPPort, conf.Email.FromAddr, conf.Email.AuthCode),
		from:       conf.Email.FromAddr,
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc smtpService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go svc.sendMessage(msg)
	}
}

func (svc smtpService) sendMessage(msg *core.EmailMessage) {
	if !msg.HasRecipients() || !msg.HasContent() {
		return
	}
	if err := svc.sender.DialAndSend(svc.prepare(*msg)); err != nil {
		svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
		return
	}
	svc.logger.Info("email sent: " + msg.Subject)
}

func (svc smtpService) prepare(msg core.EmailMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", svc.from)
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, m.FormatAddress(addr.Address, addr.Name))
	}
	m.SetHeader("To", to...)
	m.SetHeader("Subject", svc.subjPrefix+msg.Subject)
	m.SetBody("text/plain", msg.BodyStr)
	return m
}
