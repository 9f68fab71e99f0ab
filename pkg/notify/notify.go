// Package notify forwards SOS alerts to an external dispatcher.
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
	"sync"
	"time"

	"aegis_router/pkg/geo"
)

// ErrUnavailable is returned when the dispatcher cannot accept an alert.
var ErrUnavailable = errors.New("notifier unavailable")

// SOS is a distress alert. Contacts are passed through untouched.
type SOS struct {
	Coord     geo.Coordinate
	Message   string
	Timestamp time.Time
	Contacts  []string
}

// webhookPayload is the JSON body posted by Webhook.
type webhookPayload struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Contacts  []string  `json:"contacts,omitempty"`
}

// Notifier delivers SOS alerts.
type Notifier interface {
	Notify(ctx context.Context, sos SOS) error
}

// Webhook posts each alert as JSON to a URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier. A nil client gets a 10s timeout.
func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{url: url, client: client}
}

func (w *Webhook) Notify(ctx context.Context, sos SOS) error {
	body, err := json.Marshal(webhookPayload{
		Latitude:  sos.Coord.Lat,
		Longitude: sos.Coord.Lng,
		Message:   sos.Message,
		Timestamp: sos.Timestamp,
		Contacts:  sos.Contacts,
	})
	if err != nil {
		return fmt.Errorf("encode sos: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: webhook returned %s", ErrUnavailable, resp.Status)
	}
	return nil
}

// Log records alerts in the process log and keeps the most recent ones in
// memory. It never fails.
type Log struct {
	logger *slog.Logger
	keep   int

	mu     sync.Mutex
	recent []SOS
}

// NewLog creates a log notifier keeping the last keep alerts.
func NewLog(logger *slog.Logger, keep int) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger, keep: keep}
}

func (l *Log) Notify(_ context.Context, sos SOS) error {
	l.logger.Warn("SOS received",
		"lat", sos.Coord.Lat,
		"lng", sos.Coord.Lng,
		"message", sos.Message,
		"contacts", len(sos.Contacts),
		"timestamp", sos.Timestamp)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.keep <= 0 {
		return nil
	}
	l.recent = append(l.recent, sos)
	if n := len(l.recent); n > l.keep {
		l.recent = append(l.recent[:0], l.recent[n-l.keep:]...)
	}
	return nil
}

// Recent returns the retained alerts, oldest first.
func (l *Log) Recent() []SOS {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SOS, len(l.recent))
	copy(out, l.recent)
	return out
}
