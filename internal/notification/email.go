package notification

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/protocol"
	"github.com/jenna-jordan/Boston-CityScore-App/pkg/config"
)

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends data-quality alert digests
type EmailNotifier struct {
	config *config.SMTPConfig
	send   sendFunc
	logger *slog.Logger
	now    func() time.Time
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{config: cfg, send: smtp.SendMail, logger: logger, now: time.Now}
}

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"ids": func(ids []int64) string {
		s := make([]string, len(ids))
		for i, id := range ids {
			s[i] = fmt.Sprint(id)
		}
		return strings.Join(s, ", ")
	},
	"stamp": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05 MST") },
}).Parse(`CityScore Data Quality
======================
{{range .}}
[{{if eq .Type "VIOLATION_OPENED"}}OPENED{{else}}RESOLVED{{end}}] {{.Kind}} ({{.Severity}})
Resource: {{.ResourceID}}
Metric: {{.Metric}}{{if .Subject}}
Subject: {{.Subject}}{{end}}
Records: {{ids .RecordIDs}}
Detail: {{.Detail}}
Opened: {{stamp .OpenedAt}}{{if eq .Type "VIOLATION_RESOLVED"}}
Resolved: {{stamp .At}}{{end}}
{{end}}
---
CityScore Notification System
`))

// Subject summarises a batch of alerts for the mail subject line.
func Subject(alerts []*protocol.QualityAlert) string {
	var opened, resolved int
	for _, a := range alerts {
		if a.Type == protocol.AlertOpened {
			opened++
		} else {
			resolved++
		}
	}
	switch {
	case resolved == 0:
		return fmt.Sprintf("CityScore data quality: %d new issue(s)", opened)
	case opened == 0:
		return fmt.Sprintf("CityScore data quality: %d issue(s) resolved", resolved)
	default:
		return fmt.Sprintf("CityScore data quality: %d new, %d resolved", opened, resolved)
	}
}

// Render renders the digest body.
func Render(alerts []*protocol.QualityAlert) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, alerts); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SendAlerts sends one digest email covering alerts.
func (e *EmailNotifier) SendAlerts(alerts []*protocol.QualityAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := Render(alerts)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return e.sendEmail(Subject(alerts), body)
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Log instead of sending when SMTP is not configured
	if e.config.Username == "" || e.config.Password == "" {
		e.logger.Info("SMTP not configured, skipping email", "subject", subject, "body", body)
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", e.config.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.send(addr, auth, e.config.From, strings.Split(e.config.To, ","), []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.Info("email sent", "subject", subject)
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()
	return nil
}
