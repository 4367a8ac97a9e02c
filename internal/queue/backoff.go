package queue

import (
	"time"

	"github.com/riverqueue/river/rivertype"
)

// maxShift keeps Base<<shift from overflowing time.Duration.
const maxShift = 30

// BackoffPolicy schedules retries at Base * 2^(attempt-1) after a failed
// attempt. With Base 5s a job is retried 5s, 10s, 20s, 40s, ... after each
// failure until MaxAttempts attempts have been made.
type BackoffPolicy struct {
	Base        time.Duration
	MaxAttempts int
	MaxDelay    time.Duration

	now func() time.Time
}

// NewBackoffPolicy returns a doubling policy.
func NewBackoffPolicy(base time.Duration, maxAttempts int) *BackoffPolicy {
	return &BackoffPolicy{Base: base, MaxAttempts: maxAttempts, now: time.Now}
}

// Delay is the wait after the given 1-based attempt failed.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxShift {
		shift = maxShift
	}
	d := p.Base << uint(shift)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Schedule lists the delays between consecutive attempts.
func (p *BackoffPolicy) Schedule() []time.Duration {
	if p.MaxAttempts < 2 {
		return nil
	}
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		out = append(out, p.Delay(attempt))
	}
	return out
}

// Exhausted reports whether attempt was the last one allowed.
func (p *BackoffPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// NextRetry implements river.ClientRetryPolicy. job.Attempt is the attempt
// that just failed.
func (p *BackoffPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	return now().UTC().Add(p.Delay(job.Attempt))
}
