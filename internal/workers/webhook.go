package workers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/riverqueue/river"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sarathsp06/hookshot/internal/delivery"
	"github.com/sarathsp06/hookshot/internal/jobs"
	"github.com/sarathsp06/hookshot/internal/logger"
	"github.com/sarathsp06/hookshot/internal/observability"
	"github.com/sarathsp06/hookshot/internal/queue"
	"github.com/sarathsp06/hookshot/internal/webhooks"
)

// recordTimeout bounds the delivery log write, which runs even when the job
// context has already expired.
const recordTimeout = 5 * time.Second

// timeoutGrace is added to the HTTP timeout for the job-level timeout.
const timeoutGrace = 5 * time.Second

// Sender performs one signed HTTP attempt.
type Sender interface {
	Send(ctx context.Context, r delivery.Request) delivery.Outcome
}

// AttemptRecorder appends to the delivery log.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a *webhooks.DeliveryAttempt) error
}

// WebhookWorker handles webhook delivery jobs
type WebhookWorker struct {
	river.WorkerDefaults[jobs.DeliveryArgs]
	sender   Sender
	recorder AttemptRecorder
	backoff  *queue.BackoffPolicy
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.SugaredLogger
	tracer   trace.Tracer
}

// NewWebhookWorker creates a new webhook worker. httpTimeout is the
// per-attempt HTTP timeout the sender enforces.
func NewWebhookWorker(sender Sender, recorder AttemptRecorder, backoff *queue.BackoffPolicy, httpTimeout time.Duration) *WebhookWorker {
	return &WebhookWorker{
		sender:   sender,
		recorder: recorder,
		backoff:  backoff,
		timeout:  httpTimeout + timeoutGrace,
		now:      time.Now,
		logger:   logger.NewLogger("webhook-worker"),
		tracer:   observability.GetTracer("hookshot.workers.webhook"),
	}
}

// NextRetry applies the delivery backoff to this job kind.
func (w *WebhookWorker) NextRetry(job *river.Job[jobs.DeliveryArgs]) time.Time {
	return w.backoff.NextRetry(job.JobRow)
}

// Timeout is the river job timeout for a single attempt.
func (w *WebhookWorker) Timeout(*river.Job[jobs.DeliveryArgs]) time.Duration {
	return w.timeout
}

// Work performs one delivery attempt and writes exactly one log row for it.
// A non-nil error hands the job back to the retry policy.
func (w *WebhookWorker) Work(ctx context.Context, job *river.Job[jobs.DeliveryArgs]) error {
	args := job.Args

	ctx, span := w.tracer.Start(ctx, "webhook.deliver",
		trace.WithAttributes(
			attribute.String("tenant_id", args.TenantID),
			attribute.String("subscription_id", args.SubscriptionID),
			attribute.String("event", args.Event),
			attribute.Int("attempt", job.Attempt),
		),
	)
	defer span.End()

	w.logger.Infow("Processing webhook delivery",
		"job_id", job.ID,
		"tenant_id", args.TenantID,
		"subscription_id", args.SubscriptionID,
		"event", args.Event,
		"attempt", job.Attempt,
		"url", args.URL,
	)

	out := w.sender.Send(ctx, delivery.Request{
		URL:        args.URL,
		Secret:     args.Secret,
		Event:      args.Event,
		Payload:    args.Payload,
		DeliveryID: strconv.FormatInt(job.ID, 10),
		Attempt:    job.Attempt,
	})

	attempt := &webhooks.DeliveryAttempt{
		SubscriptionID: args.SubscriptionID,
		TenantID:       args.TenantID,
		JobID:          job.ID,
		Event:          args.Event,
		Payload:        args.Payload,
		URL:            args.URL,
		StatusCode:     out.StatusCode,
		ResponseBody:   out.Body,
		Attempt:        job.Attempt,
		DurationMS:     out.Duration.Milliseconds(),
	}
	if out.StatusCode != nil {
		span.SetAttributes(attribute.Int("http.status_code", *out.StatusCode))
	}
	if out.Success() {
		deliveredAt := w.now().UTC()
		attempt.DeliveredAt = &deliveredAt
	} else {
		msg := out.ErrorMessage()
		attempt.Error = &msg
		span.SetStatus(otelcodes.Error, msg)
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	recordErr := w.recorder.RecordAttempt(recordCtx, attempt)
	if recordErr != nil {
		span.RecordError(recordErr)
		w.logger.Errorw("Failed to record delivery attempt",
			"job_id", job.ID,
			"subscription_id", args.SubscriptionID,
			"attempt", job.Attempt,
			"error", recordErr,
		)
	}

	if out.Success() {
		w.logger.Infow("Webhook delivered successfully",
			"job_id", job.ID,
			"subscription_id", args.SubscriptionID,
			"status_code", *out.StatusCode,
			"attempt", job.Attempt,
			"duration_ms", attempt.DurationMS,
		)
		if recordErr != nil {
			return fmt.Errorf("webhook delivered but not recorded: %w", recordErr)
		}
		return nil
	}

	w.logger.Warnw("Webhook delivery failed",
		"job_id", job.ID,
		"subscription_id", args.SubscriptionID,
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
		"error", *attempt.Error,
		"duration_ms", attempt.DurationMS,
	)
	if w.backoff.Exhausted(job.Attempt) {
		w.logger.Warnw("Webhook delivery exhausted",
			"job_id", job.ID,
			"subscription_id", args.SubscriptionID,
			"tenant_id", args.TenantID,
		)
	} else {
		w.logger.Debugw("Webhook retry scheduled",
			"job_id", job.ID,
			"delay", w.backoff.Delay(job.Attempt).String(),
		)
	}

	return errors.Join(fmt.Errorf("webhook delivery failed: %s", *attempt.Error), recordErr)
}
