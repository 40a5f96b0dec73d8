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

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/sethvargo/go-retry"

	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/events"
)

// Default values applied by New for zero config fields.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultBufferSize = 100
	DefaultRetryBase  = 500 * time.Millisecond
)

// ErrClosed is returned by HandleEvent after Close.
var ErrClosed = errors.New("notifier is closed")

// Notification is the webhook body.
type Notification struct {
	RequestID uuid.UUID            `json:"request_id"`
	Status    domain.RequestStatus `json:"status"`
}

// Config configures a Notifier.
type Config struct {
	// URL receives a POST for every terminal request. Required.
	URL string

	// Timeout bounds a single POST.
	Timeout time.Duration

	// MaxRetries is how many times a failed POST is retried.
	MaxRetries uint64

	// RetryBase is the first backoff between retries.
	RetryBase time.Duration

	// BufferSize is the number of notifications held while the sender is busy.
	// Events arriving to a full buffer are dropped.
	BufferSize int
}

// Notifier posts request notifications to a webhook.
type Notifier struct {
	config Config
	client *http.Client
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	pending chan Notification

	startOnce sync.Once
	wg        sync.WaitGroup
}

var _ events.EventHandler = (*Notifier)(nil)

// New creates a Notifier. A nil client is replaced by a pooled cleanhttp client.
func New(config Config, client *http.Client, logger *slog.Logger) (*Notifier, error) {
	if config.URL == "" {
		return nil, errors.New("notify URL cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.RetryBase <= 0 {
		config.RetryBase = DefaultRetryBase
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		config:  config,
		client:  client,
		logger:  logger.With("component", "notifier"),
		pending: make(chan Notification, config.BufferSize),
	}, nil
}

// Start launches the sender goroutine. Calling it more than once is a no-op.
func (n *Notifier) Start() {
	n.startOnce.Do(func() {
		n.wg.Add(1)
		go n.run()
	})
}

// HandleEvent buffers a notification for the event. It never blocks.
func (n *Notifier) HandleEvent(ctx context.Context, event *events.RequestEvent) error {
	if event == nil {
		return nil
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}

	select {
	case n.pending <- Notification{RequestID: event.RequestID, Status: event.Status}:
	default:
		n.logger.Warn("notification buffer full, dropping notification",
			"request_id", event.RequestID,
			"status", event.Status)
	}
	return nil
}

// Close stops accepting notifications and waits until buffered ones were sent.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.pending)
	n.mu.Unlock()

	n.wg.Wait()
	return nil
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for notification := range n.pending {
		if err := n.Send(context.Background(), notification); err != nil {
			n.logger.Warn("failed to deliver notification",
				"request_id", notification.RequestID,
				"status", notification.Status,
				"error", err)
		}
	}
}

// Send posts notification synchronously, retrying network errors and 5xx
// responses with exponential backoff.
func (n *Notifier) Send(ctx context.Context, notification Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	backoff := retry.WithMaxRetries(n.config.MaxRetries, retry.NewExponential(n.config.RetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		return n.post(ctx, body)
	})
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, n.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("notification request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return retry.RetryableError(fmt.Errorf("webhook responded %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
}
