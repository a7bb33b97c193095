package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier tells the user about the outcome. Delivery is best-effort: the
// caller logs a returned error and moves on.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// logNotifier always succeeds; it makes sure the message lands in the log
// even when nothing else is configured.
type logNotifier struct {
	log *logrus.Entry
}

func (n *logNotifier) Notify(_ context.Context, message string) error {
	n.log.WithField("notify", true).Info(message)
	return nil
}

// webhookNotifier posts {"title": ..., "text": ...} to a chat or push bridge.
type webhookNotifier struct {
	url    string
	client *http.Client
}

func newWebhookNotifier(url string) *webhookNotifier {
	return &webhookNotifier{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (n *webhookNotifier) Notify(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{"title": "seckill", "text": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: HTTP %d", resp.StatusCode)
	}
	return nil
}

// smtpNotifier sends a plain-text mail.
type smtpNotifier struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func newSMTPNotifier(cfg SMTPConfig) *smtpNotifier {
	return &smtpNotifier{cfg: cfg, send: smtp.SendMail}
}

func (n *smtpNotifier) Notify(_ context.Context, message string) error {
	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}
	to := strings.Split(n.cfg.To, ",")
	for i := range to {
		to[i] = strings.TrimSpace(to[i])
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: seckill: %s\r\n", message)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(message)
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.send(addr, auth, from, to, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewNotifier builds the notifier set described by cfg. The log notifier is
// always part of it.
func NewNotifier(cfg NotifyConfig, log *logrus.Entry) Notifier {
	notifiers := multiNotifier{&logNotifier{log: log}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, newWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.To != "" {
		notifiers = append(notifiers, newSMTPNotifier(cfg.SMTP))
	}
	return notifiers
}
