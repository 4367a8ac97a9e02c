// Package dispatch turns a domain event into one delivery job per matching
// subscription.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sarathsp06/hookshot/internal/jobs"
	"github.com/sarathsp06/hookshot/internal/logger"
	"github.com/sarathsp06/hookshot/internal/observability"
	"github.com/sarathsp06/hookshot/internal/webhooks"
)

// Finder looks up the active subscriptions listening for an event.
type Finder interface {
	FindActiveByEvent(ctx context.Context, tenantID, event string) ([]*webhooks.Subscription, error)
}

// Enqueuer inserts delivery jobs. All jobs of one dispatch are inserted together.
type Enqueuer interface {
	EnqueueDeliveries(ctx context.Context, deliveries []jobs.DeliveryArgs) error
}

// EventSubmitter durably queues an event for asynchronous dispatch.
type EventSubmitter interface {
	SubmitEvent(ctx context.Context, event jobs.EventArgs) error
}

// Result reports how many deliveries a dispatch fanned out to.
type Result struct {
	TriggeredCount  int      `json:"triggeredCount"`
	SubscriptionIDs []string `json:"subscriptionIds,omitempty"`
}

// Dispatcher matches events to subscriptions and fans out delivery jobs.
type Dispatcher struct {
	finder    Finder
	enqueuer  Enqueuer
	submitter EventSubmitter
	metrics   *observability.Metrics
	now       func() time.Time
	logger    *zap.SugaredLogger
	tracer    trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEventSubmitter enables Trigger.
func WithEventSubmitter(s EventSubmitter) Option {
	return func(d *Dispatcher) { d.submitter = s }
}

// WithMetrics records dispatch metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher.
func New(finder Finder, enqueuer Enqueuer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		finder:   finder,
		enqueuer: enqueuer,
		now:      time.Now,
		logger:   logger.NewLogger("dispatcher"),
		tracer:   observability.GetTracer("hookshot.dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch enqueues one delivery per active subscription of tenantID that
// lists event. With no match the queue is not touched. It returns once the
// jobs are durably enqueued; delivery outcomes are never reported here.
func (d *Dispatcher) Dispatch(ctx context.Context, event, tenantID string, payload json.RawMessage) (*Result, error) {
	payload, err := normalizePayload(payload)
	if err != nil {
		return nil, err
	}
	event = strings.TrimSpace(event)
	if err := webhooks.ValidateEventName(event); err != nil {
		return nil, err
	}

	ctx, span := d.tracer.Start(ctx, "event.dispatch",
		trace.WithAttributes(
			attribute.String("tenant_id", tenantID),
			attribute.String("event", event),
		),
	)
	defer span.End()

	subs, err := d.finder.FindActiveByEvent(ctx, tenantID, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "subscription lookup failed")
		return nil, webhooks.Internal(err, "failed to find subscriptions")
	}
	span.SetAttributes(attribute.Int("triggered_count", len(subs)))

	if len(subs) == 0 {
		d.logger.Debugw("No subscriptions for event", "tenant_id", tenantID, "event", event)
		d.metrics.EventDispatched(ctx, event, 0)
		return &Result{TriggeredCount: 0}, nil
	}

	now := d.now().UTC()
	deliveries := make([]jobs.DeliveryArgs, 0, len(subs))
	ids := make([]string, 0, len(subs))
	for _, sub := range subs {
		deliveries = append(deliveries, jobs.DeliveryArgs{
			SubscriptionID: sub.ID,
			TenantID:       tenantID,
			URL:            sub.URL,
			Secret:         sub.Secret,
			Event:          event,
			Payload:        payload,
			DispatchedAt:   now,
		})
		ids = append(ids, sub.ID)
	}

	if err := d.enqueuer.EnqueueDeliveries(ctx, deliveries); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "enqueue failed")
		return nil, webhooks.Internal(err, "failed to enqueue deliveries")
	}
	d.metrics.EventDispatched(ctx, event, len(deliveries))

	d.logger.Infow("Event dispatched",
		"tenant_id", tenantID,
		"event", event,
		"triggered_count", len(deliveries),
	)
	return &Result{TriggeredCount: len(deliveries), SubscriptionIDs: ids}, nil
}

// Trigger queues the event for asynchronous dispatch and returns its id.
// The caller never learns how many subscriptions matched or whether any
// delivery succeeded.
func (d *Dispatcher) Trigger(ctx context.Context, event, tenantID string, payload json.RawMessage) (string, error) {
	if d.submitter == nil {
		return "", fmt.Errorf("dispatch: no event submitter configured")
	}
	payload, err := normalizePayload(payload)
	if err != nil {
		return "", err
	}
	event = strings.TrimSpace(event)
	if err := webhooks.ValidateEventName(event); err != nil {
		return "", err
	}

	id := uuid.NewString()
	if err := d.submitter.SubmitEvent(ctx, jobs.EventArgs{
		EventID:   id,
		TenantID:  tenantID,
		Event:     event,
		Payload:   payload,
		CreatedAt: d.now().UTC(),
	}); err != nil {
		return "", webhooks.Internal(err, "failed to submit event")
	}

	d.logger.Infow("Event submitted", "tenant_id", tenantID, "event", event, "event_id", id)
	return id, nil
}

// normalizePayload treats an empty payload as {} and rejects invalid JSON.
func normalizePayload(payload json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(trimmed) {
		return nil, webhooks.Validation(goerrors.FieldError{Field: "payload", Message: "must be valid JSON"})
	}
	return json.RawMessage(trimmed), nil
}
