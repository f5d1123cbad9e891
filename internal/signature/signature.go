// Package signature verifies Stripe-style webhook signature headers.
//
// The header carries comma-separated key=value pairs: a unix timestamp
// (t=...) and one or more versioned hex HMAC components (v1=...). The
// signed payload is "<timestamp>.<raw body>" keyed with the endpoint's
// shared secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Tolerance is the freshness window for the signature timestamp. Events
// outside the window are logged but still verified; stale deliveries are
// common during provider retries and rejecting them breaks redelivery.
const Tolerance = 5 * time.Minute

// ErrMalformedHeader marks a structurally invalid signature header. It is
// distinct from a false verification result so the caller can answer with
// a specific 400 message instead of a generic rejection.
var ErrMalformedHeader = errors.New("malformed signature header")

var (
	timestampPattern = regexp.MustCompile(`^\d+$`)
	hexPattern       = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// Header is a parsed signature header.
type Header struct {
	Timestamp  int64
	Signatures []string
}

// ParseHeader splits a signature header into its timestamp and signature
// components. Structural problems return an error wrapping
// ErrMalformedHeader.
func ParseHeader(value string) (*Header, error) {
	parts := strings.Split(value, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: expected at least 2 components, got %d", ErrMalformedHeader, len(parts))
	}

	h := &Header{Timestamp: -1}
	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("%w: component %q is not key=value", ErrMalformedHeader, part)
		}

		key, val := kv[0], kv[1]
		switch {
		case key == "t":
			if !timestampPattern.MatchString(val) {
				return nil, fmt.Errorf("%w: timestamp %q is not numeric", ErrMalformedHeader, val)
			}
			ts, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: timestamp %q out of range", ErrMalformedHeader, val)
			}
			h.Timestamp = ts
		case strings.HasPrefix(key, "v"):
			if !hexPattern.MatchString(val) {
				return nil, fmt.Errorf("%w: signature %q is not hex", ErrMalformedHeader, val)
			}
			h.Signatures = append(h.Signatures, val)
		}
	}

	if h.Timestamp < 0 {
		return nil, fmt.Errorf("%w: missing t component", ErrMalformedHeader)
	}
	if len(h.Signatures) == 0 {
		return nil, fmt.Errorf("%w: missing v1 signature component", ErrMalformedHeader)
	}
	return h, nil
}

// Verify reports whether header is a valid signature over body with the
// shared secret. A structural problem with the header returns an error;
// a cryptographic mismatch returns (false, nil).
func Verify(body, header, secret string) (bool, error) {
	parsed, err := ParseHeader(header)
	if err != nil {
		return false, err
	}

	now := time.Now().Unix()
	if drift := now - parsed.Timestamp; drift > int64(Tolerance.Seconds()) || drift < -int64(Tolerance.Seconds()) {
		log.WithFields(log.Fields{
			"timestamp":     parsed.Timestamp,
			"drift_seconds": drift,
		}).Warn("Webhook signature timestamp outside tolerance window")
	}

	expected := compute(secret, parsed.Timestamp, body)
	for _, sig := range parsed.Signatures {
		if constantTimeEqual(expected, strings.ToLower(sig)) {
			return true, nil
		}
	}
	return false, nil
}

// Sign produces a complete signature header for body at time t. Used by
// tests and by outbound calls that mimic the provider's scheme.
func Sign(secret, body string, t time.Time) string {
	ts := t.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, compute(secret, ts, body))
}

func compute(secret string, timestamp int64, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

// constantTimeEqual compares two hex strings without leaking the position
// of the first mismatch. A length mismatch returns false immediately; the
// XOR loop only runs for equal-length inputs.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
