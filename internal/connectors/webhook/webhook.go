// Package webhook delivers notifications as JSON POSTs to a configured URL,
// guarded by a circuit breaker so a dead endpoint does not slow the scan loop.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fentz26/dosekeeper/internal/connectors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds webhook delivery settings.
type Config struct {
	URL string
	// Timeout bounds a single POST.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultConfig returns defaults for a local home-automation endpoint.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		Timeout:          5 * time.Second,
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
	}
}

// payload is the wire body of every POST.
type payload struct {
	Kind    string             `json:"kind"`
	Tag     string             `json:"tag,omitempty"`
	Title   string             `json:"title,omitempty"`
	Body    string             `json:"body,omitempty"`
	Pattern connectors.Pattern `json:"pattern,omitempty"`
	SentAt  time.Time          `json:"sent_at"`
}

// Webhook implements connectors.Notifier over HTTP.
type Webhook struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// New creates a webhook notifier.
func New(cfg Config, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}

	w := &Webhook{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	w.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notification breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return w
}

// Name returns the connector identifier.
func (w *Webhook) Name() string {
	return "webhook"
}

// Notify posts the notification.
func (w *Webhook) Notify(ctx context.Context, n connectors.Notification) error {
	return w.post(ctx, payload{Kind: "notification", Tag: n.Tag, Title: n.Title, Body: n.Body, SentAt: time.Now().UTC()})
}

// Vibrate posts the pattern so a paired device can buzz.
func (w *Webhook) Vibrate(ctx context.Context, p connectors.Pattern) error {
	return w.post(ctx, payload{Kind: "vibrate", Pattern: p, SentAt: time.Now().UTC()})
}

// State reports the breaker state (closed, half-open, open).
func (w *Webhook) State() string {
	return w.cb.State().String()
}

func (w *Webhook) post(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	_, err = w.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook returned %s", resp.Status)
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		w.logger.Debug("webhook circuit open, dropping", zap.String("kind", p.Kind), zap.String("tag", p.Tag))
		return connectors.ErrNotificationUnavailable
	}
	return err
}
