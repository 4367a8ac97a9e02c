package queue

import "github.com/riverqueue/river/rivertype"

// Delivery job states as exposed to operators.
const (
	StateQueued         = "QUEUED"
	StateActive         = "ACTIVE"
	StateSucceeded      = "SUCCEEDED"
	StateRetryScheduled = "RETRY_SCHEDULED"
	StateExhausted      = "EXHAUSTED"
	StateCancelled      = "CANCELLED"
)

// DeliveryState maps a river job state onto the delivery lifecycle.
func DeliveryState(s rivertype.JobState) string {
	switch s {
	case rivertype.JobStateAvailable, rivertype.JobStateScheduled, rivertype.JobStatePending:
		return StateQueued
	case rivertype.JobStateRunning:
		return StateActive
	case rivertype.JobStateCompleted:
		return StateSucceeded
	case rivertype.JobStateRetryable:
		return StateRetryScheduled
	case rivertype.JobStateDiscarded:
		return StateExhausted
	case rivertype.JobStateCancelled:
		return StateCancelled
	default:
		return string(s)
	}
}
