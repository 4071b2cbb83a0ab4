package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type RelayConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// RelaySender posts messages as JSON to an HTTP mail relay.
type RelaySender struct {
	client *http.Client
	url    string
	token  string
	logger *zap.Logger
}

// NewRelaySender creates a relay sender. Timeout defaults to 30s.
func NewRelaySender(cfg RelayConfig, logger *zap.Logger) *RelaySender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &RelaySender{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		token:  cfg.Token,
		logger: logger,
	}
}

// Send posts {to, subject, body, tag} to the relay. Any non-2xx response
// is a failure.
func (s *RelaySender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create relay request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Nudge/1.0.0")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay returned non-2xx status: %d, body: %s", resp.StatusCode, string(preview))
	}

	s.logger.Info("email handed to relay",
		zap.Strings("to", msg.To),
		zap.String("tag", msg.Tag),
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}
