package queue

import (
	"context"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"github.com/sarathsp06/hookshot/internal/logger"
	"github.com/sarathsp06/hookshot/internal/observability"
)

// ExhaustionHandler is river's ErrorHandler. It records jobs that failed
// their final attempt. It never changes the retry decision.
type ExhaustionHandler struct {
	metrics *observability.Metrics
	logger  *zap.SugaredLogger
}

// NewExhaustionHandler creates a handler. metrics may be nil.
func NewExhaustionHandler(metrics *observability.Metrics) *ExhaustionHandler {
	return &ExhaustionHandler{metrics: metrics, logger: logger.NewLogger("queue")}
}

func (h *ExhaustionHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	if job.Attempt < job.MaxAttempts {
		h.logger.Debugw("Job attempt failed, retry scheduled",
			"job_id", job.ID,
			"kind", job.Kind,
			"attempt", job.Attempt,
			"max_attempts", job.MaxAttempts,
			"state", StateRetryScheduled,
			"error", err,
		)
		return nil
	}

	h.logger.Errorw("Job exhausted all attempts",
		"job_id", job.ID,
		"kind", job.Kind,
		"queue", job.Queue,
		"attempt", job.Attempt,
		"state", StateExhausted,
		"error", err,
	)
	h.metrics.JobExhausted(ctx, job.Queue, job.Kind)
	return nil
}

func (h *ExhaustionHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.logger.Errorw("Job panicked",
		"job_id", job.ID,
		"kind", job.Kind,
		"attempt", job.Attempt,
		"panic", panicVal,
		"trace", trace,
	)
	if job.Attempt >= job.MaxAttempts {
		h.metrics.JobExhausted(ctx, job.Queue, job.Kind)
	}
	return nil
}
