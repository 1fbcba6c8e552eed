package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"
	"testing"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/tests"
)

func testConfig() *core.Config {
	return &core.Config{
		AppName: "uLearn",
		Email: core.EmailConfig{
			FromAddr: "bot@example.com",
			ToAddr:   "me@example.com",
			SMTPHost: "smtp.example.com",
			SMTPPort: 465,
		},
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name  string
		tweak func(conf *core.Config)
		want  interface{}
	}{
		{name: "mail not configured", tweak: func(conf *core.Config) { conf.Email.ToAddr = "" }, want: nil},
		{name: "debug", tweak: func(conf *core.Config) { conf.Debug = true }, want: &consoleService{}},
		{name: "sendgrid", tweak: func(conf *core.Config) { conf.Email.SendgridAPIKey = "SG.key" }, want: &sendgridService{}},
		{name: "smtp", tweak: func(conf *core.Config) { conf.Email.AuthCode = "auth" }, want: &smtpService{}},
		{name: "no transport", tweak: func(conf *core.Config) {}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testConfig()
			tt.tweak(conf)
			svc := New(conf, testutil.NewLogger())
			if tt.want == nil {
				assert.Nil(t, svc)
			} else {
				assert.IsType(t, tt.want, svc)
			}
		})
	}
}

func TestNewNotifier_disabled(t *testing.T) {
	conf := testConfig()
	conf.Email.FromAddr = ""
	assert.Equal(t, core.NopNotifier{}, NewNotifier(conf, testutil.NewLogger()))
}

func TestConsoleService(t *testing.T) {
	logger := testutil.NewLogger()
	svc := NewConsoleServiceMock(testConfig(), logger)
	before := len(SentMessages)

	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "me@example.com"}}, Subject: "Check-in notice", BodyStr: "Signed: Math"},
		&core.EmailMessage{Subject: "no recipient", BodyStr: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "me@example.com"}}, Subject: "blank", BodyStr: "  "},
	)

	require.Len(t, SentMessages, before+1)
	assert.Equal(t, "Check-in notice", SentMessages[len(SentMessages)-1].Subject)
	assert.True(t, logger.Contains("Subject: [uLearn] Check-in notice"))
	assert.True(t, logger.Contains("Signed: Math"))
}

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (s *fakeSender) DialAndSend(m ...*gomail.Message) error {
	s.sent = append(s.sent, m...)
	return s.err
}

func TestSMTPService_sendMessage(t *testing.T) {
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: "Me", Address: "me@example.com"}},
		Subject: "Homework reminder",
		BodyStr: "Math - Essay",
	}

	t.Run("sent", func(t *testing.T) {
		logger := testutil.NewLogger()
		sender := &fakeSender{}
		svc := NewSMTPService(testConfig(), logger)
		svc.sender = sender

		svc.sendMessage(msg)

		require.Len(t, sender.sent, 1)
		assert.Equal(t, []string{"bot@example.com"}, sender.sent[0].GetHeader("From"))
		assert.Equal(t, []string{`"Me" <me@example.com>`}, sender.sent[0].GetHeader("To"))
		assert.Equal(t, []string{"[uLearn] Homework reminder"}, sender.sent[0].GetHeader("Subject"))
		assert.True(t, logger.Contains("email sent: Homework reminder"))
	})

	t.Run("failure is logged", func(t *testing.T) {
		logger := testutil.NewLogger()
		svc := NewSMTPService(testConfig(), logger)
		svc.sender = &fakeSender{err: errors.New("535 auth failed")}

		svc.sendMessage(msg)
		assert.True(t, logger.Contains("sending email: 535 auth failed"))
	})

	t.Run("empty message is skipped", func(t *testing.T) {
		sender := &fakeSender{}
		svc := NewSMTPService(testConfig(), testutil.NewLogger())
		svc.sender = sender

		svc.sendMessage(&core.EmailMessage{To: msg.To, Subject: "x"})
		assert.Empty(t, sender.sent)
	})
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(testConfig(), testutil.NewLogger())
	m := svc.prepare(core.EmailMessage{
		To:      []mail.Address{{Address: "me@example.com"}},
		Subject: "Check-in notice",
		BodyStr: "Signed: Math",
	})

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[uLearn] Check-in notice", m.Personalizations[0].Subject)
	assert.Equal(t, "me@example.com", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "bot@example.com", m.From.Address)
	assert.Equal(t, "Signed: Math", m.Content[0].Value)
}

func TestSendgridService_prepare_sandbox(t *testing.T) {
	conf := testConfig()
	conf.TestMode = true
	m := NewSendgridService(conf, testutil.NewLogger()).prepare(core.EmailMessage{
		To:      []mail.Address{{Address: "me@example.com"}},
		Subject: "Homework reminder",
		BodyStr: "Math - Essay",
	})
	require.NotNil(t, m.MailSettings)
	require.NotNil(t, m.MailSettings.SandboxMode)
	assert.True(t, *m.MailSettings.SandboxMode.Enable)
}

func TestSendgridService_send(t *testing.T) {
	defer func() { sendgridAPIFunc = sendgrid.API }()
	msg := core.EmailMessage{To: []mail.Address{{Address: "me@example.com"}}, Subject: "Check-in notice", BodyStr: "Signed: Math"}

	tests := []struct {
		name    string
		res     *rest.Response
		err     error
		wantErr string
	}{
		{name: "accepted", res: &rest.Response{StatusCode: http.StatusAccepted}},
		{name: "rejected", res: &rest.Response{StatusCode: http.StatusUnauthorized, Body: "bad key"}, wantErr: "sendgrid status 401: bad key"},
		{name: "transport", err: fmt.Errorf("dial tcp: timeout"), wantErr: "sendgrid request: dial tcp: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got rest.Request
			sendgridAPIFunc = func(req rest.Request) (*rest.Response, error) {
				got = req
				return tt.res, tt.err
			}
			conf := testConfig()
			conf.Email.SendgridAPIKey = "SG.test"
			err := NewSendgridService(conf, testutil.NewLogger()).send(msg)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, rest.Post, got.Method)
			assert.Equal(t, "https://api.sendgrid.com/v3/mail/send", got.BaseURL)
			assert.Equal(t, "Bearer SG.test", got.Headers["Authorization"])
		})
	}
}
