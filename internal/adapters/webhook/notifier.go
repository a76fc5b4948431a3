// Package webhook implements ports.Notifier by POSTing JSON events to a
// configured endpoint (the notification layer renders them for the user).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"signalTraderBot/internal/ports"
)

const defaultTimeout = 10 * time.Second

// Notifier delivers engine events to a webhook URL.
type Notifier struct {
	url    string
	client *http.Client
	logger ports.Logger
}

// Config holds configuration for the webhook notifier.
type Config struct {
	URL     string
	Timeout time.Duration
	Logger  ports.Logger
}

// New creates a webhook notifier. An empty URL yields a notifier that drops
// every event, so callers can wire notifications unconditionally.
func New(cfg Config) (*Notifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for webhook notifier")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Notifier{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
		logger: cfg.Logger,
	}, nil
}

// envelope is the wire format: an event type tag plus the raw event payload.
type envelope struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

func (n *Notifier) post(ctx context.Context, event string, payload interface{}) error {
	if n.url == "" {
		return nil
	}

	body, err := json.Marshal(envelope{Event: event, Timestamp: time.Now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", event, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver %s event: %w", event, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected %s event: status %d", event, resp.StatusCode)
	}

	n.logger.Debug(ctx, "webhook event delivered", map[string]interface{}{"event": event})
	return nil
}

func (n *Notifier) TradeExecuted(ctx context.Context, ev ports.TradeExecutedEvent) error {
	return n.post(ctx, "trade_executed", ev)
}

func (n *Notifier) TradeFailed(ctx context.Context, ev ports.TradeFailedEvent) error {
	return n.post(ctx, "trade_failed", ev)
}

func (n *Notifier) TakeProfitFilled(ctx context.Context, ev ports.TakeProfitFilledEvent) error {
	return n.post(ctx, "take_profit_filled", ev)
}

func (n *Notifier) OrdersAutoCancelled(ctx context.Context, ev ports.OrdersAutoCancelledEvent) error {
	return n.post(ctx, "orders_auto_cancelled", ev)
}

func (n *Notifier) PositionClosed(ctx context.Context, ev ports.PositionClosedEvent) error {
	return n.post(ctx, "position_closed", ev)
}
