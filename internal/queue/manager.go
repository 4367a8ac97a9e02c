package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"github.com/sarathsp06/hookshot/internal/jobs"
	"github.com/sarathsp06/hookshot/internal/logger"
	"github.com/sarathsp06/hookshot/internal/observability"
)

// Options configures the queue manager.
type Options struct {
	// DeliveryConcurrency bounds the webhooks queue worker pool.
	DeliveryConcurrency int
	// EventConcurrency bounds the events queue. It never borrows from the
	// delivery budget.
	EventConcurrency int
	// MaxAttempts is the delivery attempt budget, first try included.
	MaxAttempts int
	Backoff     *BackoffPolicy
	JobTimeout  time.Duration
	Metrics     *observability.Metrics
}

func (o Options) validate() error {
	if o.DeliveryConcurrency < 1 {
		return errors.New("queue: delivery concurrency must be positive")
	}
	if o.EventConcurrency < 1 {
		return errors.New("queue: event concurrency must be positive")
	}
	if o.MaxAttempts < 1 {
		return errors.New("queue: max attempts must be positive")
	}
	if o.Backoff == nil {
		return errors.New("queue: backoff policy is required")
	}
	return nil
}

// Manager handles the River queue management
type Manager struct {
	client      *river.Client[pgx.Tx]
	workers     *river.Workers
	dbPool      *pgxpool.Pool
	maxAttempts int
	started     atomic.Bool
	logger      *zap.SugaredLogger
}

// NewManager creates a River client over pool with two independent queues.
// Workers are registered with AddWorker before Start.
func NewManager(pool *pgxpool.Pool, opts Options) (*Manager, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	riverWorkers := river.NewWorkers()

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			jobs.QueueWebhooks: {MaxWorkers: opts.DeliveryConcurrency},
			jobs.QueueEvents:   {MaxWorkers: opts.EventConcurrency},
		},
		Workers:      riverWorkers,
		MaxAttempts:  opts.MaxAttempts,
		RetryPolicy:  opts.Backoff,
		ErrorHandler: NewExhaustionHandler(opts.Metrics),
		JobTimeout:   opts.JobTimeout,
		Logger:       logger.Slog("river"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &Manager{
		client:      riverClient,
		workers:     riverWorkers,
		dbPool:      pool,
		maxAttempts: opts.MaxAttempts,
		logger:      logger.NewLogger("queue-manager"),
	}, nil
}

// AddWorker registers a worker for the job kind T.
func AddWorker[T river.JobArgs](m *Manager, w river.Worker[T]) error {
	if err := river.AddWorkerSafely(m.workers, w); err != nil {
		return fmt.Errorf("failed to add worker: %w", err)
	}
	return nil
}

// Start starts the queue processing
func (m *Manager) Start(ctx context.Context) error {
	if err := m.client.Start(ctx); err != nil {
		m.logger.Errorw("Failed to start River client", "error", err)
		return fmt.Errorf("failed to start River client: %w", err)
	}
	m.started.Store(true)

	m.logger.Info("River queue started successfully")
	return nil
}

// Stop waits for running jobs to finish or ctx to expire.
func (m *Manager) Stop(ctx context.Context) error {
	m.started.Store(false)
	if err := m.client.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop River client: %w", err)
	}
	m.logger.Info("River queue stopped")
	return nil
}

// Healthy reports whether the client is running and the database answers.
func (m *Manager) Healthy(ctx context.Context) bool {
	if !m.started.Load() {
		return false
	}
	return m.dbPool.Ping(ctx) == nil
}

// EnqueueDeliveries inserts one delivery job per snapshot in a single batch.
func (m *Manager) EnqueueDeliveries(ctx context.Context, deliveries []jobs.DeliveryArgs) error {
	if len(deliveries) == 0 {
		return nil
	}

	params := make([]river.InsertManyParams, 0, len(deliveries))
	for _, d := range deliveries {
		params = append(params, river.InsertManyParams{
			Args: d,
			InsertOpts: &river.InsertOpts{
				Queue:       jobs.QueueWebhooks,
				MaxAttempts: m.maxAttempts,
			},
		})
	}

	results, err := m.client.InsertMany(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to insert delivery jobs: %w", err)
	}

	for i, res := range results {
		m.logger.Debugw("Scheduled webhook delivery",
			"job_id", jobID(res),
			"subscription_id", deliveries[i].SubscriptionID,
			"tenant_id", deliveries[i].TenantID,
			"event", deliveries[i].Event,
		)
	}
	return nil
}

// SubmitEvent inserts an event dispatch job on the events queue.
func (m *Manager) SubmitEvent(ctx context.Context, event jobs.EventArgs) error {
	res, err := m.client.Insert(ctx, event, nil)
	if err != nil {
		return fmt.Errorf("failed to insert event job: %w", err)
	}
	m.logger.Debugw("Scheduled event dispatch", "job_id", jobID(res), "event_id", event.EventID)
	return nil
}

func jobID(res *rivertype.JobInsertResult) int64 {
	if res == nil || res.Job == nil {
		return 0
	}
	return res.Job.ID
}
