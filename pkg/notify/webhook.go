package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/dealflow/pkg/models"
)

const defaultWebhookTimeout = 10 * time.Second

var (
	ErrWebhookURLRequired = errors.New("webhook url is required")
	ErrWebhookServerError = errors.New("server error during webhook delivery")
	ErrWebhookRejected    = errors.New("webhook rejected the notification")
)

// RetryConfig defines retry behaviour for webhook deliveries.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// Webhook posts notifications as JSON to a fixed URL.
type Webhook struct {
	URL     string
	Headers map[string]string
	Retry   RetryConfig
	client  *http.Client
	logger  *slog.Logger
}

func NewWebhook(url string, retry RetryConfig, logger *slog.Logger) (*Webhook, error) {
	if url == "" {
		return nil, ErrWebhookURLRequired
	}

	if retry.Attempts < 1 {
		retry.Attempts = 1
	}

	return &Webhook{
		URL:     url,
		Headers: map[string]string{},
		Retry:   retry,
		client:  &http.Client{Timeout: defaultWebhookTimeout},
		logger:  logger.With("module", "notify_webhook"),
	}, nil
}

// Deliver posts the notification, retrying transport errors and 5xx responses.
func (w *Webhook) Deliver(ctx context.Context, notification *models.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	var lastErr error

	for attempt := 1; attempt <= w.Retry.Attempts; attempt++ {
		if attempt > 1 {
			w.logger.InfoContext(ctx, "retrying webhook delivery", "attempt", attempt, "max_attempts", w.Retry.Attempts)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.Retry.Delay):
			}
		}

		lastErr = w.post(ctx, payload)
		if lastErr == nil {
			return nil
		}

		if !errors.Is(lastErr, ErrWebhookServerError) && !isTransportError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("all webhook attempts failed, last error: %w", lastErr)
}

type transportError struct{ err error }

func (e *transportError) Error() string { return "webhook request failed: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransportError(err error) bool {
	var te *transportError

	return errors.As(err, &te)
}

func (w *Webhook) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range w.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return &transportError{err: err}
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("status %d: %w", resp.StatusCode, ErrWebhookServerError)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("status %d: %w", resp.StatusCode, ErrWebhookRejected)
	default:
		return nil
	}
}
