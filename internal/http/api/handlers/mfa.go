package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/compass-crm/compasscrm/internal/models"
	"github.com/compass-crm/compasscrm/internal/ratelimit"
	"github.com/compass-crm/compasscrm/internal/totp"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// pendingSecretTTL bounds how long an unconfirmed enrollment secret lives.
const pendingSecretTTL = 10 * time.Minute

// secretEntry stores a pending TOTP secret with expiry.
type secretEntry struct {
	secret  string
	expires time.Time
}

// secretStore keeps pending enrollment secrets in memory until confirmation.
type secretStore struct {
	mu    sync.Mutex
	items map[string]secretEntry
}

// newSecretStore creates an empty secret store.
func newSecretStore() *secretStore {
	return &secretStore{items: make(map[string]secretEntry)}
}

// Set stores a secret with expiry.
func (s *secretStore) Set(key, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = secretEntry{secret: secret, expires: time.Now().Add(pendingSecretTTL)}
}

// Get returns a secret if present and not expired.
func (s *secretStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expires) {
		delete(s.items, key)
		return "", false
	}
	return entry.secret, true
}

// Delete removes a secret entry.
func (s *secretStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// MFAHandler handles two-factor enrollment and management endpoints. Pending
// enrollment secrets live in the handler between prepare and confirm.
type MFAHandler struct {
	db      *gorm.DB
	limiter *ratelimit.Limiter
	issuer  string
	pending *secretStore
}

// NewMFAHandler constructs an MFAHandler.
func NewMFAHandler(db *gorm.DB, limiter *ratelimit.Limiter, issuer string) *MFAHandler {
	return &MFAHandler{db: db, limiter: limiter, issuer: issuer, pending: newSecretStore()}
}

// Status returns the two-factor state of the current user.
func (h *MFAHandler) Status(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var remaining int64
	if user.TwoFactorEnabled {
		if errCount := h.db.WithContext(c.Request.Context()).Model(&models.BackupCode{}).
			Where("user_id = ? AND used = ?", user.ID, false).
			Count(&remaining).Error; errCount != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"two_factor_enabled":     user.TwoFactorEnabled,
		"backup_codes_remaining": remaining,
	})
}

// Prepare begins two-factor enrollment: it generates a secret and a fresh
// batch of backup codes but does not enable two-factor yet.
func (h *MFAHandler) Prepare(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if user.TwoFactorEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "two-factor authentication is already enabled"})
		return
	}
	if result := h.limiter.Check(c.Request.Context(), ratelimit.BucketEnableTwoFactor, userKey(user.ID)); !result.Allowed {
		respondRateLimited(c, result)
		return
	}

	key, errKey := totp.GenerateKey(h.issuer, user.Email)
	if errKey != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp secret failed"})
		return
	}
	codes, errCodes := totp.GenerateBackupCodes()
	if errCodes != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate backup codes failed"})
		return
	}

	if errReplace := h.replaceBackupCodes(c, user.ID, codes); errReplace != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store backup codes failed"})
		return
	}
	h.pending.Set(userKey(user.ID), key.Secret)

	c.JSON(http.StatusOK, gin.H{
		"secret":       key.Secret,
		"otpauth_url":  key.URL,
		"qr_image":     key.QRImageURI,
		"backup_codes": codes,
	})
}

// confirmRequest defines the request body for confirming enrollment.
type confirmRequest struct {
	Code string `json:"code"`
}

// Confirm validates the first code against the pending secret and enables
// two-factor authentication.
func (h *MFAHandler) Confirm(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body confirmRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	secret, ok := h.pending.Get(userKey(user.ID))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "two-factor setup expired, start again"})
		return
	}
	if !totp.Verify(secret, code) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification code"})
		return
	}

	now := time.Now().UTC()
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"two_factor_enabled": true,
			"two_factor_secret":  secret,
			"updated_at":         now,
		}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	h.pending.Delete(userKey(user.ID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Disable turns off two-factor authentication, clearing the secret and
// deleting every backup code in one transaction.
func (h *MFAHandler) Disable(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !user.TwoFactorEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "two-factor authentication is not enabled"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errUpdate := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Updates(map[string]any{
				"two_factor_enabled": false,
				"two_factor_secret":  "",
				"updated_at":         time.Now().UTC(),
			}).Error; errUpdate != nil {
			return errUpdate
		}
		return tx.Where("user_id = ?", user.ID).Delete(&models.BackupCode{}).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	h.pending.Delete(userKey(user.ID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RegenerateBackupCodes replaces the backup code batch. The new codes are
// returned exactly once and are never retrievable afterwards.
func (h *MFAHandler) RegenerateBackupCodes(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !user.TwoFactorEnabled {
		c.JSON(http.StatusConflict, gin.H{"error": "two-factor authentication is not enabled"})
		return
	}
	if result := h.limiter.Check(c.Request.Context(), ratelimit.BucketEnableTwoFactor, userKey(user.ID)); !result.Allowed {
		respondRateLimited(c, result)
		return
	}

	codes, errCodes := totp.GenerateBackupCodes()
	if errCodes != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate backup codes failed"})
		return
	}
	if errReplace := h.replaceBackupCodes(c, user.ID, codes); errReplace != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store backup codes failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"backup_codes": codes})
}

// replaceBackupCodes swaps the user's backup code batch in one transaction.
func (h *MFAHandler) replaceBackupCodes(c *gin.Context, userID uint64, codes []string) error {
	return h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errDelete := tx.Where("user_id = ?", userID).Delete(&models.BackupCode{}).Error; errDelete != nil {
			return errDelete
		}
		now := time.Now().UTC()
		rows := make([]models.BackupCode, 0, len(codes))
		for _, code := range codes {
			rows = append(rows, models.BackupCode{UserID: userID, Code: code, CreatedAt: now})
		}
		return tx.Create(&rows).Error
	})
}
