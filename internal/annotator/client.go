package annotator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/metrics"
	"github.com/raaihank/pii-sentinel/internal/privacy"
)

var (
	// ErrUnavailable is returned while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("annotator unavailable")

	// ErrResponseTooLarge is returned when the response exceeds the size limit.
	ErrResponseTooLarge = errors.New("annotator response too large")
)

// StatusError reports a non-2xx answer from the annotation service.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("annotator returned HTTP %d", e.StatusCode)
}

// Client calls an external named-entity recognition service over HTTP.
// Calls are rate limited and guarded by a circuit breaker.
type Client struct {
	url              string
	httpClient       *http.Client
	limiter          *rate.Limiter
	breaker          *gobreaker.CircuitBreaker[[]privacy.Entity]
	maxResponseBytes int64
	metrics          *metrics.Metrics
	logger           *logger.Logger
}

type request struct {
	Text string `json:"text"`
}

// response accepts both {"entities": [...]} and spaCy's {"ents": [...]}.
type response struct {
	Entities []span `json:"entities"`
	Ents     []span `json:"ents"`
}

type span struct {
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Label      string `json:"label"`
	SpacyLabel string `json:"label_"`
}

func (s span) label() string {
	if s.Label != "" {
		return s.Label
	}
	return s.SpacyLabel
}

// NewClient creates an annotation client from the annotator configuration.
func NewClient(cfg config.AnnotatorConfig, m *metrics.Metrics, log *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("annotator url is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	c := &Client{
		url:              cfg.URL,
		httpClient:       &http.Client{Timeout: cfg.Timeout},
		maxResponseBytes: cfg.MaxResponseBytes,
		metrics:          m,
		logger:           log,
	}
	if c.maxResponseBytes <= 0 {
		c.maxResponseBytes = 1 << 20
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	threshold := cfg.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]privacy.Entity](gobreaker.Settings{
		Name:        "annotator",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about the service.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Annotator circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			m.SetBreakerState(to.String())
		},
	})

	log.Info("Annotator client initialized",
		zap.String("url", cfg.URL),
		zap.Duration("timeout", cfg.Timeout),
		zap.Float64("rate_limit", cfg.RateLimit),
		zap.Uint32("failure_threshold", threshold))

	return c, nil
}

// Annotate returns the PERSON, GPE and LOC entities of text as byte offsets.
func (c *Client) Annotate(ctx context.Context, text string) ([]privacy.Entity, error) {
	if text == "" {
		return nil, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("annotator rate limit wait: %w", err)
		}
	}

	start := time.Now()
	entities, err := c.breaker.Execute(func() ([]privacy.Entity, error) {
		return c.annotate(ctx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.RecordAnnotatorRequest(metrics.OutcomeRejected)
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		c.metrics.RecordAnnotatorRequest(metrics.OutcomeError)
		return nil, err
	}

	c.metrics.RecordAnnotatorRequest(metrics.OutcomeSuccess)
	c.logger.Debug("Text annotated",
		zap.Int("entities", len(entities)),
		zap.Duration("duration", time.Since(start)))

	return entities, nil
}

func (c *Client) annotate(ctx context.Context, text string) ([]privacy.Entity, error) {
	body, err := json.Marshal(request{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal annotator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create annotator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("annotator request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read annotator response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	if int64(len(data)) > c.maxResponseBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrResponseTooLarge, c.maxResponseBytes)
	}

	var parsed response
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse annotator response: %w", err)
	}

	spans := parsed.Entities
	if len(spans) == 0 {
		spans = parsed.Ents
	}
	return toEntities(text, spans), nil
}

// toEntities keeps spans with a known label and converts their code point
// offsets into byte offsets of text. Out of range spans are dropped.
func toEntities(text string, spans []span) []privacy.Entity {
	if len(spans) == 0 {
		return nil
	}

	// byteAt[i] is the byte offset of the i-th code point; the extra last
	// entry is len(text).
	byteAt := make([]int, 0, len(text)+1)
	for i := range text {
		byteAt = append(byteAt, i)
	}
	byteAt = append(byteAt, len(text))
	runes := len(byteAt) - 1

	entities := make([]privacy.Entity, 0, len(spans))
	for _, s := range spans {
		kind, ok := privacy.ParseEntityKind(s.label())
		if !ok {
			continue
		}
		if s.Start < 0 || s.End > runes || s.Start >= s.End {
			continue
		}
		entities = append(entities, privacy.Entity{
			Kind:  kind,
			Start: byteAt[s.Start],
			End:   byteAt[s.End],
		})
	}
	return entities
}
