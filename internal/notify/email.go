package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// EmailConfig configures the SMTP sink.
type EmailConfig struct {
	From     string
	To       []string
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailSink sends plain-text mail over SMTP, upgrading to STARTTLS when the
// server offers it.
type EmailSink struct {
	cfg       EmailConfig
	newSender func() (mailSender, error)
}

// NewEmailSink validates cfg and creates the sink. The SMTP connection is opened per Send.
func NewEmailSink(cfg EmailConfig) (*EmailSink, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is empty")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("no email recipients")
	}
	s := &EmailSink{cfg: cfg}
	s.newSender = s.dial
	return s, nil
}

// Name implements Sink.
func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) dial() (mailSender, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.cfg.Timeout))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return mail.NewClient(s.cfg.Host, opts...)
}

// Send mails msg to every recipient, appending the forecast link to the body.
func (s *EmailSink) Send(ctx context.Context, msg Message) error {
	m, err := s.compose(msg)
	if err != nil {
		return err
	}
	sender, err := s.newSender()
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := sender.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *EmailSink) compose(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", s.cfg.From, err)
	}
	if err := m.To(s.cfg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients %s: %w", strings.Join(s.cfg.To, ","), err)
	}
	m.Subject(subject(msg))
	body := msg.Body
	if link := msg.Link(); link != "" {
		body += "\n\nForecast: " + link
	}
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}

func subject(msg Message) string {
	if msg.Severity == SeverityDanger {
		return "[WARNING] " + msg.Title
	}
	return msg.Title
}
