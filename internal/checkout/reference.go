package checkout

import (
	"crypto/rand"
)

const (
	referencePrefix   = "GSW-"
	referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referenceLength   = 6
)

// NewReference generates a short human-readable purchase code, e.g.
// "GSW-7KQ2ZD". It appears in every customer-facing email and in support
// communication.
func NewReference() string {
	buf := make([]byte, referenceLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand on supported platforms does not fail; if it ever
		// does there is nothing sensible to fall back to.
		panic("checkout: reading random bytes: " + err.Error())
	}

	code := make([]byte, referenceLength)
	for i, b := range buf {
		code[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return referencePrefix + string(code)
}
