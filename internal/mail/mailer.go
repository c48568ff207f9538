// Package mail renders and delivers transactional email.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// DefaultTimeout bounds dialing and each SMTP command when SMTPConfig.Timeout
// is not set.
const DefaultTimeout = 10 * time.Second

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers a Message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

// SMTPMailer sends mail through an SMTP relay using go-mail. STARTTLS is
// used when the relay offers it; PLAIN auth only when a username is set.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer returns a mailer for cfg.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &SMTPMailer{cfg: cfg}
}

// Send delivers msg. Cancelling ctx aborts the SMTP conversation, including
// a relay that accepted the connection and never answered.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gm, err := m.build(msg)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(m.cfg.Host, m.options(ctx)...)
	if err != nil {
		return fmt.Errorf("mail: creating client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, gm); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("mail: sending to %s: %w", msg.To, ctxErr)
		}
		return fmt.Errorf("mail: sending to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) options(ctx context.Context) []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithTimeout(m.cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithDialContextFunc(func(dialCtx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: m.cfg.Timeout}
			conn, err := d.DialContext(dialCtx, network, addr)
			if err != nil {
				return nil, err
			}
			// Reads on the greeting are not bound to dialCtx; expire the
			// connection when the caller's ctx ends.
			context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
			return conn, nil
		}),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}

func (m *SMTPMailer) build(msg Message) (*gomail.Msg, error) {
	gm := gomail.NewMsg()
	var err error
	if m.cfg.FromName != "" {
		err = gm.FromFormat(m.cfg.FromName, m.cfg.From)
	} else {
		err = gm.From(m.cfg.From)
	}
	if err != nil {
		return nil, fmt.Errorf("mail: invalid sender %q: %w", m.cfg.From, err)
	}
	if err := gm.To(msg.To); err != nil {
		return nil, fmt.Errorf("mail: invalid recipient %q: %w", msg.To, err)
	}
	gm.Subject(msg.Subject)
	gm.SetDate()
	gm.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	return gm, nil
}

// ConfirmationData fills the confirmation email template.
type ConfirmationData struct {
	Username string
	Link     string
}

var confirmationTmpl = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html>
<body>
  <p>Hi {{.Username}},</p>
  <p>Thanks for signing up. Please confirm your email address:</p>
  <p><a href="{{.Link}}">Confirm my email</a></p>
  <p>If you did not create an account you can ignore this message.</p>
</body>
</html>`))

// ConfirmationSubject is the subject line of the confirmation email.
const ConfirmationSubject = "Confirm your email"

// RenderConfirmation builds the confirmation email for to.
func RenderConfirmation(to string, data ConfirmationData) (Message, error) {
	var buf bytes.Buffer
	if err := confirmationTmpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("mail: rendering confirmation: %w", err)
	}
	return Message{To: to, Subject: ConfirmationSubject, HTML: buf.String()}, nil
}
