package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pesio-ai/be-print-rfq/internal/platform/logger"
)

const defaultSendGridBaseURL = "https://api.sendgrid.com"

// SendGridConfig configures the SendGrid sender.
type SendGridConfig struct {
	APIKey     string
	BaseURL    string
	FromEmail  string
	FromName   string
	ReplyTo    string
	Timeout    time.Duration
	MaxRetries int
}

// SendGridSender delivers plain-text mail through the SendGrid v3 API.
type SendGridSender struct {
	cfg        SendGridConfig
	httpClient *http.Client
	backoff    time.Duration
	log        *logger.Logger
}

// NewSendGridSender validates cfg and creates a sender.
func NewSendGridSender(cfg SendGridConfig, log *logger.Logger) (*SendGridSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid: missing api key")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("sendgrid: missing from email")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultSendGridBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if log == nil {
		log = logger.Nop()
	}

	return &SendGridSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    time.Second,
		log:        log.Component("sendgrid"),
	}, nil
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	ReplyTo          *emailAddress     `json:"reply_to,omitempty"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// HTTPError is a non-2xx response from SendGrid.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Send implements Sender.
func (s *SendGridSender) Send(ctx context.Context, to, subject, body string) error {
	wire := mailSendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: strings.TrimSpace(to)}}}},
		From:             emailAddress{Email: s.cfg.FromEmail, Name: s.cfg.FromName},
		Subject:          strings.TrimSpace(subject),
		Content:          []mailContent{{Type: "text/plain", Value: body}},
	}
	if r := strings.TrimSpace(s.cfg.ReplyTo); r != "" {
		wire.ReplyTo = &emailAddress{Email: r}
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	backoff := s.backoff
	for attempt := 0; ; attempt++ {
		err := s.doOnce(ctx, payload)
		if err == nil {
			return nil
		}

		var httpErr *HTTPError
		retryable := !errors.As(err, &httpErr) || httpErr.retryable()
		if !retryable || attempt >= s.cfg.MaxRetries || ctx.Err() != nil {
			return err
		}

		s.log.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", s.cfg.MaxRetries).
			Dur("sleep", backoff).
			Msg("sendgrid request retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (s *SendGridSender) doOnce(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}
