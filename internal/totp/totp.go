// Package totp wraps time-based one-time-password generation and validation
// for two-factor enrollment and sign-in challenges, plus backup code creation.
package totp

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"image/png"
	"io"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// secretBytes is the raw entropy of a generated TOTP secret.
	secretBytes = 20
	// backupCodeCount is the size of a backup code batch.
	backupCodeCount = 10
	// backupCodeBytes yields 8 hex characters per code.
	backupCodeBytes = 4
)

// validateOpts pins validation to the exact current 30-second step. Codes
// from the previous or next step are rejected.
var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Key holds the material returned to a user during two-factor enrollment.
type Key struct {
	Secret     string // Base32 secret for manual entry.
	URL        string // otpauth:// provisioning URL.
	QRImageURI string // PNG data URI for QR rendering, empty if encoding failed.
}

// GenerateKey creates a new TOTP secret and provisioning material for the account.
func GenerateKey(issuer, accountEmail string) (Key, error) {
	generated, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountEmail,
		SecretSize:  secretBytes,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Key{}, fmt.Errorf("generate totp secret: %w", err)
	}

	key := Key{Secret: generated.Secret(), URL: generated.URL()}
	if img, errImage := generated.Image(220, 220); errImage == nil {
		var buf bytes.Buffer
		if errEncode := png.Encode(&buf, img); errEncode == nil {
			key.QRImageURI = "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
		}
	}
	return key, nil
}

// Verify reports whether the candidate code matches the secret at the current time step.
func Verify(secret, code string) bool {
	return VerifyAt(secret, code, time.Now().UTC())
}

// VerifyAt reports whether the candidate code matches the secret at the given time.
func VerifyAt(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, validateOpts)
	return err == nil && ok
}

// CodeAt returns the 6-digit code for the secret at the given time.
func CodeAt(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, validateOpts)
}

// GenerateBackupCodes creates a batch of single-use recovery codes, each
// 8 uppercase hex characters.
func GenerateBackupCodes() ([]string, error) {
	codes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		raw := make([]byte, backupCodeBytes)
		if _, err := io.ReadFull(rand.Reader, raw); err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes = append(codes, strings.ToUpper(fmt.Sprintf("%x", raw)))
	}
	return codes, nil
}
