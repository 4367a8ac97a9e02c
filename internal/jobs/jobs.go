package jobs

import (
	"encoding/json"
	"time"

	"github.com/riverqueue/river"
)

// Queue names. Each has its own worker pool and concurrency budget.
const (
	QueueWebhooks = "webhooks"
	QueueEvents   = "events"
)

// DeliveryArgs is the snapshot of a subscription taken at dispatch time.
// Retries read nothing else, so later edits or deletion of the subscription
// do not affect a job already enqueued.
type DeliveryArgs struct {
	SubscriptionID string          `json:"subscription_id"`
	TenantID       string          `json:"tenant_id"`
	URL            string          `json:"url"`
	Secret         string          `json:"secret"`
	Event          string          `json:"event"`
	Payload        json.RawMessage `json:"payload"`
	DispatchedAt   time.Time       `json:"dispatched_at"`
}

// Kind returns the job kind for River queue
func (DeliveryArgs) Kind() string { return "webhook_delivery" }

// InsertOpts routes deliveries to the webhooks queue
func (DeliveryArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueWebhooks}
}

// EventArgs is a durable dispatch request processed off the caller's path
type EventArgs struct {
	EventID   string          `json:"event_id"`
	TenantID  string          `json:"tenant_id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Kind returns the job kind for River queue
func (EventArgs) Kind() string { return "event_dispatch" }

// InsertOpts routes events to the events queue
func (EventArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueEvents}
}
