package signature

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func TestSignVerifyRoundtrip(t *testing.T) {
	bodies := []string{
		`{"type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`,
		`{}`,
		"",
		`{"unicode":"héllo – 日本語"}`,
	}

	for _, body := range bodies {
		header := Sign(testSecret, body, time.Now())
		ok, err := Verify(body, header, testSecret)
		require.NoError(t, err)
		assert.True(t, ok, "body %q should verify against its own signature", body)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	body := `{"id":"evt_1"}`
	header := Sign(testSecret, body, time.Now())

	ok, err := Verify(body, header, "whsec_other_secret")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTamperedBody(t *testing.T) {
	header := Sign(testSecret, `{"amount":100}`, time.Now())

	ok, err := Verify(`{"amount":999}`, header, testSecret)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySingleFlippedByte(t *testing.T) {
	body := `{"id":"cs_flip"}`
	header := Sign(testSecret, body, time.Now())

	// Flip each hex character of the v1 component in turn.
	idx := strings.Index(header, "v1=")
	require.GreaterOrEqual(t, idx, 0)
	sig := header[idx+3:]

	for i := 0; i < len(sig); i++ {
		flipped := []byte(sig)
		if flipped[i] == 'a' {
			flipped[i] = 'b'
		} else {
			flipped[i] = 'a'
		}
		tampered := header[:idx+3] + string(flipped)

		ok, err := Verify(body, tampered, testSecret)
		require.NoError(t, err)
		assert.False(t, ok, "flipping hex char %d should fail verification", i)
	}
}

func TestVerifyLengthMismatch(t *testing.T) {
	body := `{"id":"cs_short"}`
	ts := time.Now().Unix()

	// Valid hex, wrong length. Must return false without an error.
	ok, err := Verify(body, "t="+strconv.FormatInt(ts, 10)+",v1=abcdef", testSecret)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseHeaderMalformed(t *testing.T) {
	cases := map[string]string{
		"single component":  "t=12345",
		"missing timestamp": "v1=deadbeef,v1=deadbeef",
		"non-numeric t":     "t=not-a-number,v1=deadbeef",
		"non-hex signature": "t=12345,v1=zzzz",
		"bare value":        "12345,deadbeef",
		"empty":             "",
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseHeader(header)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}

func TestParseHeaderMultipleVersions(t *testing.T) {
	h, err := ParseHeader("t=1700000000,v0=00ff,v1=deadbeef")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), h.Timestamp)
	assert.Equal(t, []string{"00ff", "deadbeef"}, h.Signatures)
}

func TestVerifyStaleTimestampStillAccepted(t *testing.T) {
	// Timestamps outside the tolerance window are logged, not rejected.
	body := `{"id":"cs_stale"}`
	header := Sign(testSecret, body, time.Now().Add(-2*time.Hour))

	ok, err := Verify(body, header, testSecret)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignHeaderShape(t *testing.T) {
	header := Sign(testSecret, "payload", time.Unix(1700000000, 0))
	assert.Regexp(t, regexp.MustCompile(`^t=1700000000,v1=[0-9a-f]{64}$`), header)
}
