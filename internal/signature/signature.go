// Package signature implements the HMAC-SHA256 scheme attached to every
// outbound webhook request.
//
// The signed string is "{timestamp}.{body}" where timestamp is the decimal
// Unix time in seconds sent in HeaderTimestamp and body is the exact request
// body. The hex-encoded MAC is sent in HeaderSignature. Receivers recompute it
// with the subscription secret and compare in constant time.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderDelivery  = "X-Webhook-Delivery"
	HeaderAttempt   = "X-Webhook-Attempt"
)

var (
	ErrMissingSignature = errors.New("signature: missing signature or timestamp")
	ErrInvalidTimestamp = errors.New("signature: invalid timestamp")
	ErrTimestampExpired = errors.New("signature: timestamp outside tolerance")
	ErrMismatch         = errors.New("signature: mismatch")
)

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{body}" keyed by secret.
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature. A zero tolerance skips the replay window
// check; otherwise timestamps further than tolerance from now are rejected.
func Verify(secret, timestamp string, body []byte, sig string, tolerance time.Duration, now time.Time) error {
	if sig == "" || timestamp == "" {
		return ErrMissingSignature
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	if tolerance > 0 {
		skew := now.Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return ErrTimestampExpired
		}
	}
	expected := Sign(secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrMismatch
	}
	return nil
}
