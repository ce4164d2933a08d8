// Package mailer emails the course link to a freshly submitted lead.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"leadform-bot/internal/models"
	"leadform-bot/pkg/logger"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func (c Config) Enabled() bool {
	return c.Host != ""
}

// Sender delivers a composed message. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type AccessEmailData struct {
	Name      string
	CourseURL string
	LeadID    int64
}

const subject = "Доступ к курсу «Как выбрать имя ребёнку?»"

var accessTemplate = template.Must(template.New("access").Parse(`<p>Здравствуйте{{if .Name}}, {{.Name}}{{end}}!</p>
<p>Спасибо за ответы. Ваша заявка №{{.LeadID}} принята.</p>
<p>Материалы курса доступны по ссылке: <a href="{{.CourseURL}}">{{.CourseURL}}</a></p>`))

type Mailer struct {
	from      string
	courseURL string
	sender    Sender
}

func New(cfg Config, courseURL string) *Mailer {
	return NewWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password), cfg.From, courseURL)
}

func NewWithSender(sender Sender, from, courseURL string) *Mailer {
	return &Mailer{from: from, courseURL: courseURL, sender: sender}
}

// LeadSubmitted sends the access email to the lead's address. gomail has no
// context support, so a send still running when ctx ends is abandoned and
// ctx.Err() is returned.
func (m *Mailer) LeadSubmitted(ctx context.Context, lead models.Lead) error {
	msg, err := m.compose(lead)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("access email for lead %d not sent: %w", lead.ID, err)
	}

	done := make(chan error, 1)
	go func() { done <- m.sender.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send access email: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("access email for lead %d timed out: %w", lead.ID, ctx.Err())
	}

	zap.L().Info("Access email sent", zap.Int64(logger.FieldLeadID, lead.ID))
	return nil
}

func (m *Mailer) compose(lead models.Lead) (*gomail.Message, error) {
	var body bytes.Buffer
	data := AccessEmailData{Name: lead.FIO, CourseURL: m.courseURL, LeadID: lead.ID}
	if err := accessTemplate.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("failed to render access email: %w", err)
	}

	msg := gomail.NewMessage(gomail.SetEncoding(gomail.Unencoded))
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", lead.Email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body.String())
	return msg, nil
}
