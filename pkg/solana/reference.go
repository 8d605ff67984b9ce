package solana

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// referenceSize matches the length of an ed25519 public key, so a reference
// can be attached to a transfer as a read-only account key.
const referenceSize = 32

// NewReference returns a fresh base58-encoded 32-byte reference. References
// come from the platform CSPRNG and are never derived from payment fields.
func NewReference() (string, error) {
	buf := make([]byte, referenceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating reference: %w", err)
	}
	return base58.Encode(buf), nil
}
