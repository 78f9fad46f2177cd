package totp

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateKeyProducesProvisioningMaterial(t *testing.T) {
	key, errGen := GenerateKey("CompassCRM", "rep@example.com")
	if errGen != nil {
		t.Fatalf("generate key: %v", errGen)
	}
	if key.Secret == "" {
		t.Fatalf("expected a secret")
	}
	if !strings.HasPrefix(key.URL, "otpauth://totp/") {
		t.Fatalf("expected otpauth URL, got %q", key.URL)
	}
	if !strings.Contains(key.URL, "CompassCRM") {
		t.Fatalf("expected issuer in URL, got %q", key.URL)
	}
	if !strings.HasPrefix(key.QRImageURI, "data:image/png;base64,") {
		t.Fatalf("expected PNG data URI, got %q", key.QRImageURI)
	}
}

func TestVerifyAcceptsCurrentStepOnly(t *testing.T) {
	key, errGen := GenerateKey("CompassCRM", "rep@example.com")
	if errGen != nil {
		t.Fatalf("generate key: %v", errGen)
	}

	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	code, errCode := CodeAt(key.Secret, at)
	if errCode != nil {
		t.Fatalf("code at: %v", errCode)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	if !VerifyAt(key.Secret, code, at) {
		t.Fatalf("expected code accepted at its own step")
	}
	// Same 30-second window, different second.
	if !VerifyAt(key.Secret, code, at.Add(5*time.Second)) {
		t.Fatalf("expected code accepted within the same step")
	}
	if VerifyAt(key.Secret, code, at.Add(60*time.Second)) {
		t.Fatalf("expected code rejected after the step advanced")
	}
	if VerifyAt(key.Secret, code, at.Add(-60*time.Second)) {
		t.Fatalf("expected code rejected before its step")
	}
}

func TestVerifyRejectsMalformedCodes(t *testing.T) {
	key, errGen := GenerateKey("CompassCRM", "rep@example.com")
	if errGen != nil {
		t.Fatalf("generate key: %v", errGen)
	}
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if VerifyAt(key.Secret, "", at) {
		t.Fatalf("expected empty code rejected")
	}
	if VerifyAt(key.Secret, "abcdef", at) {
		t.Fatalf("expected non-numeric code rejected")
	}
	if VerifyAt(key.Secret, "12345", at) {
		t.Fatalf("expected short code rejected")
	}
}

func TestGenerateBackupCodesFormat(t *testing.T) {
	codes, errGen := GenerateBackupCodes()
	if errGen != nil {
		t.Fatalf("generate backup codes: %v", errGen)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if len(code) != 8 {
			t.Fatalf("expected 8-character code, got %q", code)
		}
		if code != strings.ToUpper(code) {
			t.Fatalf("expected uppercase code, got %q", code)
		}
		for _, r := range code {
			if !strings.ContainsRune("0123456789ABCDEF", r) {
				t.Fatalf("expected hex characters, got %q", code)
			}
		}
		if seen[code] {
			t.Fatalf("expected unique codes, got duplicate %q", code)
		}
		seen[code] = true
	}
}
