package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// verificationTokenBytes is the entropy of an opaque verification token.
const verificationTokenBytes = 24

// GenerateVerificationToken creates the opaque random string stored in a
// verification or password-reset token row.
func GenerateVerificationToken() (string, error) {
	raw := make([]byte, verificationTokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
