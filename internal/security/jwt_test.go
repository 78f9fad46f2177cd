package security

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "unit-test-secret"

func TestSessionTokenRoundTrip(t *testing.T) {
	token, errGen := GenerateSessionToken(testSecret, 42, "rep@example.com", "Riley", "rep", time.Hour)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}

	claims, errParse := ParseSessionToken(testSecret, token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.UserID != 42 || claims.Email != "rep@example.com" || claims.Name != "Riley" || claims.Role != "rep" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestSessionTokenRejectsWrongSecret(t *testing.T) {
	token, errGen := GenerateSessionToken(testSecret, 42, "rep@example.com", "Riley", "rep", time.Hour)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	if _, errParse := ParseSessionToken("other-secret", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestSessionTokenRejectsExpired(t *testing.T) {
	token, errGen := GenerateSessionToken(testSecret, 42, "rep@example.com", "Riley", "rep", -time.Minute)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	if _, errParse := ParseSessionToken(testSecret, token); !errors.Is(errParse, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", errParse)
	}
}

func TestSessionTokenRejectsGarbage(t *testing.T) {
	if _, errParse := ParseSessionToken(testSecret, "not-a-token"); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestPendingTwoFactorTokenRoundTrip(t *testing.T) {
	token, errGen := GeneratePendingTwoFactorToken(testSecret, 42)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	claims, errParse := ParsePendingTwoFactorToken(testSecret, token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.UserID != 42 || !claims.TwoFactor {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestSessionTokenRejectsPendingTwoFactorToken(t *testing.T) {
	token, errGen := GeneratePendingTwoFactorToken(testSecret, 42)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	if _, errParse := ParseSessionToken(testSecret, token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestPendingTwoFactorTokenRejectsSessionToken(t *testing.T) {
	token, errGen := GenerateSessionToken(testSecret, 42, "rep@example.com", "Riley", "rep", time.Hour)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	if _, errParse := ParsePendingTwoFactorToken(testSecret, token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestPasswordHashAndCheck(t *testing.T) {
	hash, errHash := HashPassword("correct horse battery staple")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	if hash == "correct horse battery staple" {
		t.Fatalf("expected hash to differ from the plaintext")
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Fatalf("expected matching password accepted")
	}
	if CheckPassword(hash, "wrong password") {
		t.Fatalf("expected wrong password rejected")
	}
}

func TestGenerateVerificationToken(t *testing.T) {
	first, errGen := GenerateVerificationToken()
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	second, errGen := GenerateVerificationToken()
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	if len(first) != 48 {
		t.Fatalf("expected 48-character token, got %d", len(first))
	}
	if first == second {
		t.Fatalf("expected unique tokens")
	}
}
