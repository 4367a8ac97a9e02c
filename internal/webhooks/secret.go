package webhooks

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// SecretBytes is the entropy of a subscription secret; the hex form is twice as long.
const SecretBytes = 32

// GenerateSecret returns SecretBytes of crypto/rand entropy, hex encoded.
func GenerateSecret() (string, error) {
	return generateSecret(rand.Reader)
}

func generateSecret(r io.Reader) (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
