package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Delivery outcomes recorded on the attempts counter.
const (
	OutcomeSuccess   = "success"
	OutcomeHTTPError = "http_error"
	OutcomeTransport = "transport_error"
)

const (
	attrOutcome = "outcome"
	attrEvent   = "event"
	attrQueue   = "queue"
	attrJobKind = "job_kind"
)

// Metrics holds application-specific metrics. A nil *Metrics records nothing.
type Metrics struct {
	SubscriptionsCreated metric.Int64Counter
	EventsDispatched     metric.Int64Counter
	DeliveriesEnqueued   metric.Int64Counter
	DeliveryAttempts     metric.Int64Counter
	DeliveryDuration     metric.Float64Histogram
	DeliveriesInFlight   metric.Int64UpDownCounter
	DeliveriesExhausted  metric.Int64Counter
}

// NewMetrics creates the hookshot instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(GetMeter("hookshot"))
}

// NewMetricsWithMeter creates the hookshot instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	subscriptionsCreated, err := meter.Int64Counter(
		"hookshot_subscriptions_created_total",
		metric.WithDescription("Total number of webhook subscriptions created"),
	)
	if err != nil {
		return nil, err
	}

	eventsDispatched, err := meter.Int64Counter(
		"hookshot_events_dispatched_total",
		metric.WithDescription("Total number of events dispatched"),
	)
	if err != nil {
		return nil, err
	}

	deliveriesEnqueued, err := meter.Int64Counter(
		"hookshot_deliveries_enqueued_total",
		metric.WithDescription("Total number of delivery jobs enqueued by fan-out"),
	)
	if err != nil {
		return nil, err
	}

	deliveryAttempts, err := meter.Int64Counter(
		"hookshot_delivery_attempts_total",
		metric.WithDescription("Total number of webhook delivery attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	deliveryDuration, err := meter.Float64Histogram(
		"hookshot_delivery_duration_seconds",
		metric.WithDescription("Duration of webhook delivery attempts in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64UpDownCounter(
		"hookshot_deliveries_in_flight",
		metric.WithDescription("Current number of outbound webhook requests"),
	)
	if err != nil {
		return nil, err
	}

	exhausted, err := meter.Int64Counter(
		"hookshot_deliveries_exhausted_total",
		metric.WithDescription("Total number of delivery jobs that ran out of attempts"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		SubscriptionsCreated: subscriptionsCreated,
		EventsDispatched:     eventsDispatched,
		DeliveriesEnqueued:   deliveriesEnqueued,
		DeliveryAttempts:     deliveryAttempts,
		DeliveryDuration:     deliveryDuration,
		DeliveriesInFlight:   inFlight,
		DeliveriesExhausted:  exhausted,
	}, nil
}

func (m *Metrics) SubscriptionCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.SubscriptionsCreated.Add(ctx, 1)
}

func (m *Metrics) EventDispatched(ctx context.Context, event string, fanOut int) {
	if m == nil {
		return
	}
	m.EventsDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String(attrEvent, event)))
	if fanOut > 0 {
		m.DeliveriesEnqueued.Add(ctx, int64(fanOut))
	}
}

func (m *Metrics) AttemptStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.DeliveriesInFlight.Add(ctx, 1)
}

func (m *Metrics) AttemptFinished(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))
	m.DeliveriesInFlight.Add(ctx, -1)
	m.DeliveryAttempts.Add(ctx, 1, attrs)
	m.DeliveryDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) JobExhausted(ctx context.Context, queue, kind string) {
	if m == nil {
		return
	}
	m.DeliveriesExhausted.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrQueue, queue),
		attribute.String(attrJobKind, kind),
	))
}
