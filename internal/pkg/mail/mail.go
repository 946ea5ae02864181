package mail

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
)

const (
	defaultResendEndpoint = "https://api.resend.com"
	// MaxBatchSize is the largest batch the Resend batch endpoint accepts.
	MaxBatchSize = 100
)

// ErrDisabled is returned when no delivery channel is configured.
var ErrDisabled = errors.New("mail delivery is not configured")

// Config holds mail provider settings.
type Config struct {
	Host           string
	Port           int
	User           string
	Pass           string
	From           string
	ReplyTo        string
	ResendKey      string
	ResendEndpoint string
}

// Enabled reports whether either channel is usable.
func (c Config) Enabled() bool {
	return c.ResendKey != "" || c.Host != ""
}

// Message is a single email to send.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Sender sends emails via the Resend HTTP API, falling back to SMTP when no
// API key is configured.
type Sender struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Sender {
	if cfg.ResendEndpoint == "" {
		cfg.ResendEndpoint = defaultResendEndpoint
	}
	cfg.ResendEndpoint = strings.TrimRight(cfg.ResendEndpoint, "/")
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &Sender{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}
}

// Send dispatches one email.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	switch {
	case s.cfg.ResendKey != "":
		return s.postResend(ctx, "/emails", s.resendPayload(msg))
	case s.cfg.Host != "":
		return s.sendSMTP(msg)
	default:
		return ErrDisabled
	}
}

// SendBatch delivers up to MaxBatchSize messages and returns how many were
// accepted. Resend accepts or rejects the batch as a whole; over SMTP each
// message is attempted on its own.
func (s *Sender) SendBatch(ctx context.Context, msgs []Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	if len(msgs) > MaxBatchSize {
		return 0, fmt.Errorf("batch of %d exceeds limit %d", len(msgs), MaxBatchSize)
	}
	switch {
	case s.cfg.ResendKey != "":
		payload := make([]map[string]interface{}, 0, len(msgs))
		for _, m := range msgs {
			payload = append(payload, s.resendPayload(m))
		}
		if err := s.postResend(ctx, "/emails/batch", payload); err != nil {
			return 0, err
		}
		return len(msgs), nil
	case s.cfg.Host != "":
		sent := 0
		var errs []error
		for _, m := range msgs {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			if err := s.sendSMTP(m); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", strings.Join(m.To, ","), err))
				continue
			}
			sent++
		}
		return sent, errors.Join(errs...)
	default:
		return 0, ErrDisabled
	}
}

func (s *Sender) from() string {
	if s.cfg.From != "" {
		return s.cfg.From
	}
	return s.cfg.User
}

func (s *Sender) sendSMTP(msg Message) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	from := s.from()

	var body bytes.Buffer
	body.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&body, "From: %s\r\n", from)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&body, "Subject: %s\r\n", msg.Subject)
	body.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	if s.cfg.ReplyTo != "" {
		fmt.Fprintf(&body, "Reply-To: %s\r\n", s.cfg.ReplyTo)
	}
	body.WriteString("\r\n")
	body.WriteString(msg.HTML)

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}
	return smtp.SendMail(addr, auth, from, msg.To, body.Bytes())
}

func (s *Sender) resendPayload(msg Message) map[string]interface{} {
	p := map[string]interface{}{
		"from":    s.from(),
		"to":      msg.To,
		"subject": msg.Subject,
		"html":    msg.HTML,
	}
	if s.cfg.ReplyTo != "" {
		p["reply_to"] = s.cfg.ReplyTo
	}
	return p
}

func (s *Sender) postResend(ctx context.Context, path string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ResendEndpoint+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ResendKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("resend error %d: %s", resp.StatusCode, errResp.Message)
	}
	return nil
}
