// Package mailer renders and delivers the auth emails.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
)

// Message is a rendered email
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Sender delivers a message and returns the provider message ID
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ResendSender sends emails via the Resend API
type ResendSender struct {
	client *resend.Client
	from   string
	logger zerolog.Logger
}

// NewResendSender creates a sender with the given API key and from address
func NewResendSender(apiKey, from string, logger zerolog.Logger) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
		logger: logger.With().Str("component", "mailer").Logger(),
	}
}

// Send sends a single email
func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("resend send failed: %w", err)
	}

	s.logger.Info().Str("message_id", sent.Id).Strs("to", msg.To).Str("subject", msg.Subject).Msg("Email sent")
	return sent.Id, nil
}

// LogSender writes emails to the log instead of sending them (no API key configured)
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender creates a log-only sender
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "mailer").Logger()}
}

// Send logs the message
func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	s.logger.Warn().Strs("to", msg.To).Str("subject", msg.Subject).Str("html", msg.HTML).
		Msg("RESEND_API_KEY not set - email logged, not sent")
	return "", nil
}

const passwordResetTemplate = `# Recuperação de senha

Olá{{if .Name}} {{.Name}}{{end}},

Recebemos um pedido para redefinir a senha da sua conta no **HDS Conecte**.

[Redefinir minha senha]({{.Link}})

Se você não fez este pedido, ignore este email. O link expira em breve.
`

const confirmationTemplate = `# Bem-vindo ao HDS Conecte

Olá{{if .Name}} {{.Name}}{{end}},

Confirme seu email para ativar sua conta:

[Confirmar email]({{.Link}})
`

var (
	resetTmpl   = template.Must(template.New("reset").Parse(passwordResetTemplate))
	confirmTmpl = template.Must(template.New("confirm").Parse(confirmationTemplate))
)

type linkData struct {
	Name string
	Link string
}

// PasswordReset renders the reset email
func PasswordReset(to, name, link string) (Message, error) {
	html, err := render(resetTmpl, linkData{Name: name, Link: link})
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{to}, Subject: "HDS Conecte - Recuperação de senha", HTML: html}, nil
}

// SignupConfirmation renders the confirmation email
func SignupConfirmation(to, name, link string) (Message, error) {
	html, err := render(confirmTmpl, linkData{Name: name, Link: link})
	if err != nil {
		return Message{}, err
	}
	return Message{To: []string{to}, Subject: "HDS Conecte - Confirme seu email", HTML: html}, nil
}

// render fills the Markdown template and converts it to HTML
func render(tmpl *template.Template, data linkData) (string, error) {
	var md bytes.Buffer
	if err := tmpl.Execute(&md, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert(md.Bytes(), &html); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return html.String(), nil
}
