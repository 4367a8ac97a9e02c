package signature

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignKnownVectors(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		timestamp int64
		body      string
		want      string
	}{
		{
			name:      "order payload",
			secret:    "whsec_test_secret",
			timestamp: 1700000000,
			body:      `{"order_id":"ord_123","total":4200}`,
			want:      "58f5fcf97649f64085960e65ff54544e9ad36133f588698cd1a27f0240411249",
		},
		{
			name:      "empty object with generated secret",
			secret:    "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
			timestamp: 1700000000,
			body:      `{}`,
			want:      "edb7e8d0128566d96a08fd9a3b35bed9226c3363fb5da1f4cda941cc7250d93e",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sign(tt.secret, tt.timestamp, []byte(tt.body)))
		})
	}
}

func TestVerify(t *testing.T) {
	now := time.Unix(1700000100, 0)
	body := []byte(`{"order_id":"ord_123","total":4200}`)
	ts := "1700000000"
	good := "58f5fcf97649f64085960e65ff54544e9ad36133f588698cd1a27f0240411249"

	require.NoError(t, Verify("whsec_test_secret", ts, body, good, 5*time.Minute, now))
	require.NoError(t, Verify("whsec_test_secret", ts, body, good, 0, now.Add(24*time.Hour)))

	assert.ErrorIs(t, Verify("other", ts, body, good, 0, now), ErrMismatch)
	assert.ErrorIs(t, Verify("whsec_test_secret", ts, []byte(`{"total":1}`), good, 0, now), ErrMismatch)
	assert.ErrorIs(t, Verify("whsec_test_secret", ts, body, good, time.Minute, now), ErrTimestampExpired)
	assert.ErrorIs(t, Verify("whsec_test_secret", "yesterday", body, good, 0, now), ErrInvalidTimestamp)
	assert.ErrorIs(t, Verify("whsec_test_secret", "", body, good, 0, now), ErrMissingSignature)
}

func TestSignRoundTrip(t *testing.T) {
	now := time.Now()
	ts := now.Unix()
	body := []byte(`{"event":"user.created"}`)
	sig := Sign("secret", ts, body)

	assert.Len(t, sig, 64)
	assert.NoError(t, Verify("secret", strconv.FormatInt(ts, 10), body, sig, time.Minute, now))
}
