package workers

import (
	"context"
	"encoding/json"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/sarathsp06/hookshot/internal/dispatch"
	"github.com/sarathsp06/hookshot/internal/jobs"
	"github.com/sarathsp06/hookshot/internal/logger"
	"github.com/sarathsp06/hookshot/internal/webhooks"
)

// EventDispatcher fans an event out to delivery jobs.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event, tenantID string, payload json.RawMessage) (*dispatch.Result, error)
}

// EventProcessingWorker dispatches events submitted through Trigger
type EventProcessingWorker struct {
	river.WorkerDefaults[jobs.EventArgs]
	dispatcher EventDispatcher
	logger     *zap.SugaredLogger
}

// NewEventProcessingWorker creates a new event processing worker
func NewEventProcessingWorker(dispatcher EventDispatcher) *EventProcessingWorker {
	return &EventProcessingWorker{
		dispatcher: dispatcher,
		logger:     logger.NewLogger("event-worker"),
	}
}

// Work dispatches the event. Invalid events are cancelled instead of retried.
func (w *EventProcessingWorker) Work(ctx context.Context, job *river.Job[jobs.EventArgs]) error {
	args := job.Args

	w.logger.Infow("Processing event",
		"job_id", job.ID,
		"event_id", args.EventID,
		"tenant_id", args.TenantID,
		"event", args.Event,
	)

	res, err := w.dispatcher.Dispatch(ctx, args.Event, args.TenantID, args.Payload)
	if err != nil {
		if webhooks.IsValidation(err) {
			w.logger.Warnw("Discarding invalid event", "event_id", args.EventID, "error", err)
			return river.JobCancel(err)
		}
		w.logger.Errorw("Failed to dispatch event", "event_id", args.EventID, "error", err)
		return err
	}

	w.logger.Infow("Event processing completed",
		"event_id", args.EventID,
		"webhooks_scheduled", res.TriggeredCount,
	)
	return nil
}
