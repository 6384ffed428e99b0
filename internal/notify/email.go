// Package notify sends email notifications for backlog alarms, the same
// template-render-then-SMTP-send shape the teacher uses for weather
// alarms. No third-party SMTP client appears anywhere in the example
// pack, so this stays on net/smtp exactly as the teacher does — see
// DESIGN.md.
package notify

import (
	"bytes"
	"fmt"
	"net/smtp"
	"text/template"
	"time"
)

// Config holds SMTP connection details and is intentionally the same
// shape as the teacher's pkg/config.SMTPConfig.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// Notifier sends backlog-alarm emails.
type Notifier struct {
	config Config
}

// NewNotifier wraps cfg.
func NewNotifier(cfg Config) *Notifier {
	return &Notifier{config: cfg}
}

// NotifyBacklogAlarm sends a triggered-alarm email for client.
func (n *Notifier) NotifyBacklogAlarm(client uint64, depth, threshold int) error {
	subject := fmt.Sprintf("ytfetchd backlog ALARM - client %d", client)
	body, err := n.renderTriggered(client, depth, threshold)
	if err != nil {
		return fmt.Errorf("notify: render template: %w", err)
	}
	return n.sendEmail(subject, body)
}

// NotifyBacklogCleared sends a cleared-alarm email for client.
func (n *Notifier) NotifyBacklogCleared(client uint64) error {
	subject := fmt.Sprintf("ytfetchd backlog cleared - client %d", client)
	body, err := n.renderCleared(client)
	if err != nil {
		return fmt.Errorf("notify: render template: %w", err)
	}
	return n.sendEmail(subject, body)
}

const triggeredTemplate = `
Backlog Alarm Triggered
========================

Client: {{.Client}}
Backlog depth: {{.Depth}}
Threshold: {{.Threshold}}

Description:
Client {{.Client}}'s queued and failed job count has stayed above
{{.Threshold}} long enough to trigger this alarm. Current depth: {{.Depth}}.

---
ytfetchd notification system
`

const clearedTemplate = `
Backlog Alarm Cleared
======================

Client: {{.Client}}

Description:
Client {{.Client}}'s backlog has dropped back under the alarm threshold.

---
ytfetchd notification system
`

func (n *Notifier) renderTriggered(client uint64, depth, threshold int) (string, error) {
	data := struct {
		Client    uint64
		Depth     int
		Threshold int
	}{client, depth, threshold}

	t, err := template.New("triggered").Parse(triggeredTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (n *Notifier) renderCleared(client uint64) (string, error) {
	data := struct{ Client uint64 }{client}

	t, err := template.New("cleared").Parse(clearedTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (n *Notifier) sendEmail(subject, body string) error {
	if n.config.Username == "" || n.config.Password == "" {
		fmt.Printf("notify: SMTP not configured, skipping email:\nSubject: %s\n%s\n", subject, body)
		return nil
	}

	message := fmt.Sprintf("From: %s\r\n", n.config.From)
	message += fmt.Sprintf("To: %s\r\n", n.config.To)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	if err := smtp.SendMail(addr, auth, n.config.From, []string{n.config.To}, []byte(message)); err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}

	fmt.Printf("notify: email sent: %s\n", subject)
	return nil
}
