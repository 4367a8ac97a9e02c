package jobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryArgsKind(t *testing.T) {
	args := DeliveryArgs{URL: "https://example.com/webhook", Payload: json.RawMessage(`{"test":"data"}`)}

	assert.Equal(t, "webhook_delivery", args.Kind())
	assert.Equal(t, QueueWebhooks, args.InsertOpts().Queue)
}

func TestEventArgsKind(t *testing.T) {
	args := EventArgs{Event: "order.created"}

	assert.Equal(t, "event_dispatch", args.Kind())
	assert.Equal(t, QueueEvents, args.InsertOpts().Queue)
}

func TestDeliveryArgsKeepsPayloadVerbatim(t *testing.T) {
	args := DeliveryArgs{
		SubscriptionID: "sub-1",
		TenantID:       "tenant-a",
		URL:            "https://example.com/webhook",
		Secret:         "s3cr3t",
		Event:          "order.created",
		Payload:        json.RawMessage(`{"order_id":"ord_123","total":4200}`),
		DispatchedAt:   time.Unix(1700000000, 0).UTC(),
	}

	raw, err := json.Marshal(args)
	require.NoError(t, err)

	var decoded DeliveryArgs
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, string(args.Payload), string(decoded.Payload))
	assert.Equal(t, args.Secret, decoded.Secret)
}
