// Package mailer delivers the platform's transactional emails.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/config"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns the mailer selected by cfg.Driver.
func New(cfg config.Mail, logger *zap.Logger) (Mailer, error) {
	switch cfg.Driver {
	case "log", "":
		return NewLogMailer(logger), nil
	case "smtp":
		return NewSMTPMailer(cfg), nil
	default:
		return nil, fmt.Errorf("mailer: unknown driver %q", cfg.Driver)
	}
}

// LogMailer writes messages to the log instead of delivering them.
// It is the default for local and embedded setups.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("Email not delivered (log driver)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}

// Outbox keeps sent messages in memory.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
}

func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

// Sent returns a copy of every message sent so far.
func (o *Outbox) Sent() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.sent...)
}

// Last returns the most recent message.
func (o *Outbox) Last() (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		return Message{}, false
	}
	return o.sent[len(o.sent)-1], true
}

var recoveryTmpl = template.Must(template.New("recovery").Parse(`Hola,

Recibimos una solicitud para restablecer la contraseña de {{.Email}}.
Sigue este enlace para elegir una nueva contraseña:

{{.Link}}

El enlace caduca en {{.ExpiresIn}}. Si no solicitaste el cambio, ignora este mensaje.
`))

// RecoveryMessage renders the password recovery email for email with link.
func RecoveryMessage(email, link string, expiresIn time.Duration) (Message, error) {
	var buf bytes.Buffer
	err := recoveryTmpl.Execute(&buf, struct {
		Email     string
		Link      string
		ExpiresIn time.Duration
	}{email, link, expiresIn})
	if err != nil {
		return Message{}, fmt.Errorf("mailer: rendering recovery email: %w", err)
	}
	return Message{
		To:      email,
		Subject: "Restablece tu contraseña",
		Body:    buf.String(),
	}, nil
}
