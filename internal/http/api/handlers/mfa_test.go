package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/compass-crm/compasscrm/internal/models"
	"github.com/compass-crm/compasscrm/internal/ratelimit"
	"github.com/compass-crm/compasscrm/internal/totp"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func newMFAHandler(conn *gorm.DB) *MFAHandler {
	return NewMFAHandler(conn, ratelimit.New(nil), "CompassCRM")
}

func TestMFAPrepareAndConfirmEnablesTwoFactor(t *testing.T) {
	conn := newHandlerDB(t)
	h := newMFAHandler(conn)
	user := seedUser(t, conn, "rep@example.com", "password-one")

	c, w := jsonRequest(t, http.MethodPost, "/v1/2fa/prepare", nil)
	c.Set(ContextUserKey, user)
	h.Prepare(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}
	var prep struct {
		Secret      string   `json:"secret"`
		OtpauthURL  string   `json:"otpauth_url"`
		BackupCodes []string `json:"backup_codes"`
	}
	decodeBody(t, w, &prep)
	if prep.Secret == "" || prep.OtpauthURL == "" {
		t.Fatalf("expected enrollment material, body=%s", w.Body.String())
	}
	if len(prep.BackupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(prep.BackupCodes))
	}

	// Not enabled until the first code is confirmed.
	var pending models.User
	if errFind := conn.First(&pending, user.ID).Error; errFind != nil {
		t.Fatalf("load user: %v", errFind)
	}
	if pending.TwoFactorEnabled {
		t.Fatalf("expected two-factor still off after prepare")
	}

	code, errCode := totp.CodeAt(prep.Secret, time.Now().UTC())
	if errCode != nil {
		t.Fatalf("code at: %v", errCode)
	}
	c, w = jsonRequest(t, http.MethodPost, "/v1/2fa/confirm", gin.H{"code": code})
	c.Set(ContextUserKey, user)
	h.Confirm(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}

	var enabled models.User
	if errFind := conn.First(&enabled, user.ID).Error; errFind != nil {
		t.Fatalf("load user: %v", errFind)
	}
	if !enabled.TwoFactorEnabled || enabled.TwoFactorSecret != prep.Secret {
		t.Fatalf("expected two-factor enabled with the confirmed secret")
	}
}

func TestMFAConfirmRejectsWrongCodeAndMissingSetup(t *testing.T) {
	conn := newHandlerDB(t)
	h := newMFAHandler(conn)
	user := seedUser(t, conn, "rep@example.com", "password-one")

	c, w := jsonRequest(t, http.MethodPost, "/v1/2fa/confirm", gin.H{"code": "123456"})
	c.Set(ContextUserKey, user)
	h.Confirm(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without prepare, got %d body=%s", w.Code, w.Body.String())
	}

	c, w = jsonRequest(t, http.MethodPost, "/v1/2fa/prepare", nil)
	c.Set(ContextUserKey, user)
	h.Prepare(c)
	if w.Code != http.StatusOK {
		t.Fatalf("prepare failed: %d body=%s", w.Code, w.Body.String())
	}

	c, w = jsonRequest(t, http.MethodPost, "/v1/2fa/confirm", gin.H{"code": "000000"})
	c.Set(ContextUserKey, user)
	h.Confirm(c)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for wrong code, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestMFAPrepareConflictsWhenAlreadyEnabled(t *testing.T) {
	conn := newHandlerDB(t)
	h := newMFAHandler(conn)
	user := seedUser(t, conn, "rep@example.com", "password-one")
	enableTwoFactor(t, conn, user, "AABBCCDD")
	user.TwoFactorEnabled = true

	c, w := jsonRequest(t, http.MethodPost, "/v1/2fa/prepare", nil)
	c.Set(ContextUserKey, user)
	h.Prepare(c)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestMFADisableClearsSecretAndCodes(t *testing.T) {
	conn := newHandlerDB(t)
	h := newMFAHandler(conn)
	user := seedUser(t, conn, "rep@example.com", "password-one")
	enableTwoFactor(t, conn, user, "AABBCCDD")
	user.TwoFactorEnabled = true

	c, w := jsonRequest(t, http.MethodPost, "/v1/2fa/disable", nil)
	c.Set(ContextUserKey, user)
	h.Disable(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}

	var updated models.User
	if errFind := conn.First(&updated, user.ID).Error; errFind != nil {
		t.Fatalf("load user: %v", errFind)
	}
	if updated.TwoFactorEnabled || updated.TwoFactorSecret != "" {
		t.Fatalf("expected two-factor cleared, got %+v", updated)
	}
	var count int64
	conn.Model(&models.BackupCode{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected backup codes removed, got %d", count)
	}
}

func TestMFARegenerateReplacesBackupCodes(t *testing.T) {
	conn := newHandlerDB(t)
	h := newMFAHandler(conn)
	user := seedUser(t, conn, "rep@example.com", "password-one")
	enableTwoFactor(t, conn, user, "AABBCCDD")
	user.TwoFactorEnabled = true

	c, w := jsonRequest(t, http.MethodPost, "/v1/2fa/backup-codes/regenerate", nil)
	c.Set(ContextUserKey, user)
	h.RegenerateBackupCodes(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		BackupCodes []string `json:"backup_codes"`
	}
	decodeBody(t, w, &resp)
	if len(resp.BackupCodes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(resp.BackupCodes))
	}

	var count int64
	conn.Model(&models.BackupCode{}).Where("user_id = ? AND code = ?", user.ID, "AABBCCDD").Count(&count)
	if count != 0 {
		t.Fatalf("expected old batch removed")
	}
	conn.Model(&models.BackupCode{}).Where("user_id = ? AND used = ?", user.ID, false).Count(&count)
	if count != 10 {
		t.Fatalf("expected 10 fresh codes, got %d", count)
	}
}

func TestMFARegenerateRequiresEnabledTwoFactor(t *testing.T) {
	conn := newHandlerDB(t)
	h := newMFAHandler(conn)
	user := seedUser(t, conn, "rep@example.com", "password-one")

	c, w := jsonRequest(t, http.MethodPost, "/v1/2fa/backup-codes/regenerate", nil)
	c.Set(ContextUserKey, user)
	h.RegenerateBackupCodes(c)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestMFAStatusCountsRemainingCodes(t *testing.T) {
	conn := newHandlerDB(t)
	h := newMFAHandler(conn)
	user := seedUser(t, conn, "rep@example.com", "password-one")
	enableTwoFactor(t, conn, user, "AABBCCDD")
	spent := models.BackupCode{UserID: user.ID, Code: "11223344", Used: true, CreatedAt: time.Now().UTC()}
	if errCreate := conn.Create(&spent).Error; errCreate != nil {
		t.Fatalf("seed spent code: %v", errCreate)
	}
	user.TwoFactorEnabled = true

	c, w := jsonRequest(t, http.MethodGet, "/v1/2fa/status", nil)
	c.Set(ContextUserKey, user)
	h.Status(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		TwoFactorEnabled     bool  `json:"two_factor_enabled"`
		BackupCodesRemaining int64 `json:"backup_codes_remaining"`
	}
	decodeBody(t, w, &resp)
	if !resp.TwoFactorEnabled || resp.BackupCodesRemaining != 1 {
		t.Fatalf("unexpected status body=%s", w.Body.String())
	}
}
