// Package delivery performs one signed webhook HTTP call.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/semaphore"

	"github.com/sarathsp06/hookshot/internal/observability"
	"github.com/sarathsp06/hookshot/internal/signature"
)

// Request is everything needed for a single attempt.
type Request struct {
	URL        string
	Secret     string
	Event      string
	Payload    []byte
	DeliveryID string
	Attempt    int
}

// Outcome is the result of one attempt. StatusCode is nil when no response
// was received.
type Outcome struct {
	StatusCode *int
	Body       string
	Err        error
	Duration   time.Duration
	Timestamp  int64
}

// Success reports a 2xx response.
func (o Outcome) Success() bool {
	return o.Err == nil && o.StatusCode != nil && *o.StatusCode >= 200 && *o.StatusCode < 300
}

// ErrorMessage is the delivery log error text, empty on success.
func (o Outcome) ErrorMessage() string {
	switch {
	case o.Err != nil:
		return o.Err.Error()
	case o.StatusCode != nil && !o.Success():
		return fmt.Sprintf("HTTP %d", *o.StatusCode)
	default:
		return ""
	}
}

// MetricOutcome classifies the attempt for metrics.
func (o Outcome) MetricOutcome() string {
	switch {
	case o.Success():
		return observability.OutcomeSuccess
	case o.StatusCode != nil:
		return observability.OutcomeHTTPError
	default:
		return observability.OutcomeTransport
	}
}

// Config tunes the sender.
type Config struct {
	Timeout     time.Duration
	UserAgent   string
	BodyLimit   int
	Concurrency int
}

// Sender signs and posts payloads. At most Config.Concurrency calls are in
// flight at once no matter how many goroutines call Send.
type Sender struct {
	client    *http.Client
	sem       *semaphore.Weighted
	userAgent string
	bodyLimit int
	metrics   *observability.Metrics
	now       func() time.Time
}

// Option configures a Sender.
type Option func(*Sender)

// WithTransport replaces the base round tripper. It is still wrapped for tracing.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Sender) { s.client.Transport = otelhttp.NewTransport(rt) }
}

// WithMetrics records attempt metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Sender) { s.metrics = m }
}

// WithClock overrides the signing clock.
func WithClock(now func() time.Time) Option {
	return func(s *Sender) { s.now = now }
}

// NewSender creates a sender.
func NewSender(cfg Config, opts ...Option) *Sender {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.BodyLimit < 0 {
		cfg.BodyLimit = 0
	}

	s := &Sender{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport.(*http.Transport).Clone()),
			// A redirect is reported as the 3xx it is.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		userAgent: cfg.UserAgent,
		bodyLimit: cfg.BodyLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send performs one attempt. It never returns an error; failures are
// described by the Outcome.
func (s *Sender) Send(ctx context.Context, r Request) Outcome {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Outcome{Err: fmt.Errorf("waiting for delivery slot: %w", err)}
	}
	defer s.sem.Release(1)

	s.metrics.AttemptStarted(ctx)
	out := s.send(ctx, r)
	s.metrics.AttemptFinished(ctx, out.MetricOutcome(), out.Duration)
	return out
}

func (s *Sender) send(ctx context.Context, r Request) Outcome {
	ts := s.now().Unix()
	out := Outcome{Timestamp: ts}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(r.Payload))
	if err != nil {
		out.Err = fmt.Errorf("failed to create request: %w", err)
		return out
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(signature.HeaderEvent, r.Event)
	req.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(signature.HeaderSignature, signature.Sign(r.Secret, ts, r.Payload))
	if r.DeliveryID != "" {
		req.Header.Set(signature.HeaderDelivery, r.DeliveryID)
	}
	if r.Attempt > 0 {
		req.Header.Set(signature.HeaderAttempt, strconv.Itoa(r.Attempt))
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	out.Duration = time.Since(start)
	if err != nil {
		out.Err = err
		return out
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	out.StatusCode = &code
	out.Body = s.readBody(resp.Body)
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return out
}

// readBody returns at most bodyLimit characters of the response body.
func (s *Sender) readBody(body io.Reader) string {
	if s.bodyLimit == 0 {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(body, int64(s.bodyLimit)*utf8.UTFMax))
	if err != nil && len(raw) == 0 {
		return ""
	}
	return truncate(raw, s.bodyLimit)
}

// truncate returns at most limit characters of b as text Postgres accepts:
// invalid UTF-8 becomes U+FFFD and NUL bytes are dropped.
func truncate(b []byte, limit int) string {
	s := strings.ReplaceAll(strings.ToValidUTF8(string(b), "\uFFFD"), "\x00", "")
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
