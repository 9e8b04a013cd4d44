package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopchat/autoreply-backend/internal/autoerr"
	"github.com/shopchat/autoreply-backend/internal/logger"
)

// Client is the outbound chat-platform surface the engine consumes. The
// engine only ever transmits a finished greeting; everything else about
// the platform connection lives behind this interface.
type Client interface {
	Send(ctx context.Context, tenantID uuid.UUID, recipient, text string) (string, error)
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL: strings.TrimSpace(os.Getenv("CHANNEL_API_BASE")),
		Token:   strings.TrimSpace(os.Getenv("CHANNEL_API_TOKEN")),
		Timeout: 15 * time.Second,
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing CHANNEL_API_BASE")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &client{
		log:  log.With("service", "ChannelClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

func (c *client) Send(ctx context.Context, tenantID uuid.UUID, recipient, text string) (string, error) {
	body, err := json.Marshal(sendRequest{Recipient: recipient, Text: text})
	if err != nil {
		return "", fmt.Errorf("encode send request: %w", err)
	}

	url := fmt.Sprintf("%s/tenants/%s/messages", c.cfg.BaseURL, tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("channel send: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("channel send status %d: %w", resp.StatusCode, autoerr.ErrCredentialExpired)
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("channel send status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if out.MessageID == "" {
		return "", fmt.Errorf("channel send response missing message_id")
	}
	return out.MessageID, nil
}
