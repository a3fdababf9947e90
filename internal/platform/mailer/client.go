// Package mailer is the outbound notification collaborator: a thin client for
// a SendGrid-compatible mail API. The engine only decides what to send and to
// whom; delivery is fire-and-forget and failures are logged, never retried by
// the caller.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/utils"
)

type Client interface {
	Send(ctx context.Context, req SendEmailRequest) error
}

type Config struct {
	APIKey    string
	BaseURL   string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

func ConfigFromEnv(log *logger.Logger) Config {
	timeoutSec := utils.GetEnvAsInt("MAILER_TIMEOUT_SECONDS", 30, log)
	return Config{
		APIKey:    strings.TrimSpace(utils.GetEnv("MAILER_API_KEY", "", nil)),
		BaseURL:   strings.TrimSpace(utils.GetEnv("MAILER_BASE_URL", "https://api.sendgrid.com", log)),
		FromEmail: strings.TrimSpace(utils.GetEnv("MAILER_FROM_EMAIL", "", nil)),
		FromName:  strings.TrimSpace(utils.GetEnv("MAILER_FROM_NAME", "normgate", log)),
		Timeout:   time.Duration(timeoutSec) * time.Second,
	}
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing MAILER_API_KEY")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("missing MAILER_FROM_EMAIL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &client{
		log:        log.With("client", "MailerClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type EmailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type SendEmailRequest struct {
	To      []EmailAddress
	Subject string
	Text    string
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             EmailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

type personalization struct {
	To []EmailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (c *client) Send(ctx context.Context, req SendEmailRequest) error {
	if len(req.To) == 0 {
		return fmt.Errorf("mailer: To required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return fmt.Errorf("mailer: Subject required")
	}
	payload := mailSendRequest{
		Personalizations: []personalization{{To: req.To}},
		From:             EmailAddress{Email: c.cfg.FromEmail, Name: c.cfg.FromName},
		Subject:          req.Subject,
		Content:          []mailContent{{Type: "text/plain", Value: req.Text}},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mailer: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("mailer: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("mailer: send failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	c.log.Debug("Mail accepted", "status", resp.StatusCode, "recipients", len(req.To))
	return nil
}
