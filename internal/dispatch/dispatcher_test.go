package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarathsp06/hookshot/internal/jobs"
	"github.com/sarathsp06/hookshot/internal/webhooks"
)

type fakeFinder struct {
	subs []*webhooks.Subscription
	err  error
}

func (f *fakeFinder) FindActiveByEvent(_ context.Context, tenantID, event string) ([]*webhooks.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*webhooks.Subscription
	for _, s := range f.subs {
		if s.TenantID == tenantID && s.IsActive && s.Subscribes(event) {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

type recordingEnqueuer struct {
	mu      sync.Mutex
	calls   int
	batches [][]jobs.DeliveryArgs
	err     error
}

func (r *recordingEnqueuer) EnqueueDeliveries(_ context.Context, deliveries []jobs.DeliveryArgs) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, deliveries)
	return nil
}

type recordingSubmitter struct {
	events []jobs.EventArgs
}

func (r *recordingSubmitter) SubmitEvent(_ context.Context, e jobs.EventArgs) error {
	r.events = append(r.events, e)
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func subscriptions() []*webhooks.Subscription {
	return []*webhooks.Subscription{
		{ID: "sub-ab", TenantID: "t1", URL: "https://a.example.com", Secret: "sa", Events: []string{"a", "b"}, IsActive: true},
		{ID: "sub-b", TenantID: "t1", URL: "https://b.example.com", Secret: "sb", Events: []string{"b"}, IsActive: true},
		{ID: "sub-off", TenantID: "t1", URL: "https://off.example.com", Secret: "so", Events: []string{"a"}, IsActive: false},
		{ID: "sub-other", TenantID: "t2", URL: "https://t2.example.com", Secret: "st", Events: []string{"a"}, IsActive: true},
	}
}

func newDispatcher(finder Finder, enq Enqueuer, opts ...Option) *Dispatcher {
	opts = append(opts, WithClock(func() time.Time { return fixedNow }))
	return New(finder, enq, opts...)
}

func TestDispatchMatchesEventMembership(t *testing.T) {
	enq := &recordingEnqueuer{}
	d := newDispatcher(&fakeFinder{subs: subscriptions()}, enq)
	ctx := context.Background()

	res, err := d.Dispatch(ctx, "a", "t1", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, res.TriggeredCount)
	assert.Equal(t, []string{"sub-ab"}, res.SubscriptionIDs)

	res, err = d.Dispatch(ctx, "b", "t1", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, 2, res.TriggeredCount)

	res, err = d.Dispatch(ctx, "c", "t1", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, 0, res.TriggeredCount)

	assert.Equal(t, 2, enq.calls)
}

func TestDispatchTrimsEventName(t *testing.T) {
	enq := &recordingEnqueuer{}
	sub := &recordingSubmitter{}
	d := newDispatcher(&fakeFinder{subs: subscriptions()}, enq, WithEventSubmitter(sub))

	res, err := d.Dispatch(context.Background(), "  a ", "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-ab"}, res.SubscriptionIDs)
	require.Len(t, enq.batches, 1)
	assert.Equal(t, "a", enq.batches[0][0].Event)

	_, err = d.Trigger(context.Background(), " a\t", "t1", nil)
	require.NoError(t, err)
	require.Len(t, sub.events, 1)
	assert.Equal(t, "a", sub.events[0].Event)
}

func TestDispatchNoMatchDoesNotTouchQueue(t *testing.T) {
	enq := &recordingEnqueuer{}
	d := newDispatcher(&fakeFinder{}, enq)

	res, err := d.Dispatch(context.Background(), "order.created", "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TriggeredCount)
	assert.Zero(t, enq.calls)
}

func TestDispatchSnapshotsSubscription(t *testing.T) {
	subs := subscriptions()
	enq := &recordingEnqueuer{}
	d := newDispatcher(&fakeFinder{subs: subs}, enq)

	_, err := d.Dispatch(context.Background(), "a", "t1", json.RawMessage(` {"order":"ord_1"} `))
	require.NoError(t, err)

	subs[0].URL = "https://changed.example.com"
	subs[0].Secret = "rotated"

	require.Len(t, enq.batches, 1)
	job := enq.batches[0][0]
	assert.Equal(t, jobs.DeliveryArgs{
		SubscriptionID: "sub-ab",
		TenantID:       "t1",
		URL:            "https://a.example.com",
		Secret:         "sa",
		Event:          "a",
		Payload:        json.RawMessage(`{"order":"ord_1"}`),
		DispatchedAt:   fixedNow,
	}, job)
}

func TestDispatchTenantIsolation(t *testing.T) {
	enq := &recordingEnqueuer{}
	d := newDispatcher(&fakeFinder{subs: subscriptions()}, enq)

	res, err := d.Dispatch(context.Background(), "a", "t2", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-other"}, res.SubscriptionIDs)
}

func TestDispatchRejectsBadInput(t *testing.T) {
	enq := &recordingEnqueuer{}
	d := newDispatcher(&fakeFinder{subs: subscriptions()}, enq)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, "a", "t1", json.RawMessage(`{not json`))
	assert.True(t, webhooks.IsValidation(err))

	_, err = d.Dispatch(ctx, "  ", "t1", nil)
	assert.True(t, webhooks.IsValidation(err))

	assert.Zero(t, enq.calls)
}

func TestDispatchPropagatesInfrastructureErrors(t *testing.T) {
	d := newDispatcher(&fakeFinder{err: errors.New("db down")}, &recordingEnqueuer{})
	_, err := d.Dispatch(context.Background(), "a", "t1", nil)
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryInternal))

	d = newDispatcher(&fakeFinder{subs: subscriptions()}, &recordingEnqueuer{err: errors.New("queue down")})
	_, err = d.Dispatch(context.Background(), "a", "t1", nil)
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryInternal))
}

func TestTriggerSubmitsEvent(t *testing.T) {
	sub := &recordingSubmitter{}
	enq := &recordingEnqueuer{}
	d := newDispatcher(&fakeFinder{subs: subscriptions()}, enq, WithEventSubmitter(sub))

	id, err := d.Trigger(context.Background(), "a", "t1", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, sub.events, 1)
	assert.Equal(t, id, sub.events[0].EventID)
	assert.Equal(t, "t1", sub.events[0].TenantID)
	assert.Equal(t, fixedNow, sub.events[0].CreatedAt)
	assert.Zero(t, enq.calls)
}

func TestTriggerWithoutSubmitter(t *testing.T) {
	d := newDispatcher(&fakeFinder{}, &recordingEnqueuer{})
	_, err := d.Trigger(context.Background(), "a", "t1", nil)
	assert.Error(t, err)
}
