package imaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/platform/blob"
)

// Default fetch settings
const (
	DefaultFetchTimeout  = 30 * time.Second
	DefaultMaxImageBytes = 20 << 20
)

// Config holds the fetch settings of a Processor.
type Config struct {
	// FetchTimeout bounds a single GET including reading the body.
	FetchTimeout time.Duration

	// MaxImageBytes caps the accepted response body size.
	MaxImageBytes int64

	// RateLimit is the sustained number of fetches per second across all
	// callers. Zero disables rate limiting.
	RateLimit float64
	RateBurst int
}

// Processor runs the fetch, transform and store steps for one input URL.
// It is safe for concurrent use.
type Processor struct {
	client      *http.Client
	transformer Transformer
	store       blob.Store
	limiter     *rate.Limiter
	config      Config
	logger      *slog.Logger
}

// NewProcessor creates a Processor. A nil client falls back to a pooled
// client without DNS caching.
func NewProcessor(
	client *http.Client,
	transformer Transformer,
	store blob.Store,
	config Config,
	logger *slog.Logger,
) (*Processor, error) {
	if transformer == nil {
		return nil, errors.New("transformer cannot be nil")
	}
	if store == nil {
		return nil, errors.New("blob store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = NewHTTPClient(nil)
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultFetchTimeout
	}
	if config.MaxImageBytes <= 0 {
		config.MaxImageBytes = DefaultMaxImageBytes
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &Processor{
		client:      client,
		transformer: transformer,
		store:       store,
		limiter:     limiter,
		config:      config,
		logger:      logger.With("component", "image_processor"),
	}, nil
}

// Process fetches rawURL, transforms the image and stores the result under
// the output key derived from key. It returns the stored object's reference.
// Every failure is returned as *Error.
func (p *Processor) Process(ctx context.Context, key string, rawURL string) (string, error) {
	target, err := validateURL(rawURL)
	if err != nil {
		return "", newError(domain.ErrorKindInvalidURL, rawURL, err)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", newError(domain.ErrorKindFetch, rawURL, err)
		}
	}

	src, err := p.fetch(ctx, target)
	if err != nil {
		return "", newError(domain.ErrorKindFetch, rawURL, err)
	}

	out, err := p.transform(src)
	if err != nil {
		kind := domain.ErrorKindEncode
		if errors.Is(err, ErrDecode) {
			kind = domain.ErrorKindDecode
		}
		return "", newError(kind, rawURL, err)
	}

	ref, err := p.store.Put(ctx, blob.OutputKey(key), out, "image/jpeg")
	if err != nil {
		return "", newError(domain.ErrorKindStorage, rawURL, err)
	}

	p.logger.DebugContext(ctx, "image processed",
		slog.String("url", rawURL),
		slog.String("ref", ref),
		slog.Int("source_bytes", len(src)),
		slog.Int("output_bytes", len(out)))

	return ref, nil
}

// transform runs the transformer, turning a panic on hostile input into a
// decode failure.
func (p *Processor) transform(src []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: panic: %v", ErrDecode, r)
		}
	}()
	return p.transformer.Transform(src)
}

func (p *Processor) fetch(ctx context.Context, target *url.URL) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	// read one extra byte to detect oversize bodies
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > p.config.MaxImageBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, p.config.MaxImageBytes)
	}
	return data, nil
}

func validateURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}
