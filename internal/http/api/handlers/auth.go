package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/compass-crm/compasscrm/internal/auth"
	"github.com/compass-crm/compasscrm/internal/config"
	"github.com/compass-crm/compasscrm/internal/mail"
	"github.com/compass-crm/compasscrm/internal/models"
	"github.com/compass-crm/compasscrm/internal/ratelimit"
	"github.com/compass-crm/compasscrm/internal/security"
	"github.com/compass-crm/compasscrm/internal/totp"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Token lifetimes for email verification and password reset flows.
const (
	verificationTokenExpiry  = 24 * time.Hour
	passwordResetTokenExpiry = time.Hour
)

// Sign-in failure reasons recorded in history; never shown verbatim to callers
// for credential failures.
const (
	failureUserNotFound    = "User not found"
	failureAccountInactive = "Account inactive"
	failureEmailUnverified = "Email not verified"
	failureInvalidPassword = "Invalid password"
)

// genericCredentialError is the uniform reply for credential failures.
const genericCredentialError = "invalid email or password"

// AuthHandler handles signup, sign-in and account recovery endpoints.
type AuthHandler struct {
	db      *gorm.DB
	jwtCfg  config.JWTConfig
	limiter *ratelimit.Limiter
	mailer  mail.Mailer
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, limiter *ratelimit.Limiter, mailer mail.Mailer) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, limiter: limiter, mailer: mailer}
}

// signupRequest defines the request body for account creation.
type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates an unverified account and sends a verification email.
func (h *AuthHandler) Signup(c *gin.Context) {
	if result := h.limiter.Check(c.Request.Context(), ratelimit.BucketSignup, c.ClientIP()); !result.Allowed {
		respondRateLimited(c, result)
		return
	}

	var body signupRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	email := strings.ToLower(strings.TrimSpace(body.Email))
	password := strings.TrimSpace(body.Password)
	if name == "" || email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, email and password are required"})
		return
	}
	if len(password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}

	var exists models.User
	if errCheck := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&exists).Error; errCheck == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	} else if !errors.Is(errCheck, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	now := time.Now().UTC()
	user := models.User{
		Name:      name,
		Email:     email,
		Password:  hash,
		Role:      models.RoleRep,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create account failed"})
		return
	}

	token, errToken := h.issueToken(c, email, models.TokenPurposeEmailVerify, verificationTokenExpiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create verification token failed"})
		return
	}
	if errMail := h.mailer.SendVerificationEmail(email, name, token); errMail != nil {
		log.WithError(errMail).WithField("email", email).Warn("verification email delivery failed")
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "account created, check your email to verify your address",
		"id":      user.ID,
	})
}

// VerifyEmail consumes a verification token and marks the account verified.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	if result := h.limiter.Check(c.Request.Context(), ratelimit.BucketVerifyEmail, token); !result.Allowed {
		respondRateLimited(c, result)
		return
	}

	var row models.VerificationToken
	errFind := h.db.WithContext(c.Request.Context()).
		Where("token = ? AND purpose = ?", token, models.TokenPurposeEmailVerify).
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			// Tolerates double submission of an already-consumed token.
			c.JSON(http.StatusOK, gin.H{"message": "email verified"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if row.Expired(time.Now().UTC()) {
		_ = h.db.WithContext(c.Request.Context()).Delete(&models.VerificationToken{}, row.ID).Error
		c.JSON(http.StatusBadRequest, gin.H{"error": "verification link has expired, request a new one"})
		return
	}

	var user models.User
	if errUser := h.db.WithContext(c.Request.Context()).Where("email = ?", row.Identifier).First(&user).Error; errUser != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	now := time.Now().UTC()
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"email_verified_at": now, "updated_at": now}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	_ = h.db.WithContext(c.Request.Context()).Delete(&models.VerificationToken{}, row.ID).Error

	if errMail := h.mailer.SendAccountActivatedEmail(user.Email, user.Name); errMail != nil {
		log.WithError(errMail).WithField("email", user.Email).Warn("account activated email delivery failed")
	}
	c.JSON(http.StatusOK, gin.H{"message": "email verified"})
}

// resendVerificationRequest defines the request body for resending verification.
type resendVerificationRequest struct {
	Email string `json:"email"`
}

// ResendVerification re-issues a verification token. The reply never reveals
// whether the account exists.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var body resendVerificationRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email"})
		return
	}
	if result := h.limiter.Check(c.Request.Context(), ratelimit.BucketResendVerification, email); !result.Allowed {
		respondRateLimited(c, result)
		return
	}

	var user models.User
	errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error
	if errFind == nil && !user.EmailVerified() {
		token, errToken := h.issueToken(c, email, models.TokenPurposeEmailVerify, verificationTokenExpiry)
		if errToken != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create verification token failed"})
			return
		}
		if errMail := h.mailer.SendVerificationEmail(email, user.Name, token); errMail != nil {
			log.WithError(errMail).WithField("email", email).Warn("verification email delivery failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "if the address is registered and unverified, a new verification email has been sent"})
}

// signinRequest defines the request body for sign-in.
type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signin verifies credentials and either issues a session or requests a
// two-factor code. Every attempt is recorded in sign-in history.
func (h *AuthHandler) Signin(c *gin.Context) {
	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()
	if result := h.limiter.Check(c.Request.Context(), ratelimit.BucketSignin, ip); !result.Allowed {
		respondRateLimited(c, result)
		return
	}

	var body signinRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	password := strings.TrimSpace(body.Password)
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			h.recordAttempt(c, 0, ip, userAgent, false, failureUserNotFound)
			log.WithFields(log.Fields{"email": email, "ip": ip}).Info("sign-in failed: user not found")
			c.JSON(http.StatusUnauthorized, gin.H{"error": genericCredentialError})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if !user.Active {
		h.recordAttempt(c, user.ID, ip, userAgent, false, failureAccountInactive)
		log.WithFields(log.Fields{"user_id": user.ID, "ip": ip}).Info("sign-in failed: account inactive")
		c.JSON(http.StatusForbidden, gin.H{"error": "account is inactive, contact an administrator"})
		return
	}

	if !user.EmailVerified() {
		h.recordAttempt(c, user.ID, ip, userAgent, false, failureEmailUnverified)
		log.WithFields(log.Fields{"user_id": user.ID, "ip": ip}).Info("sign-in failed: email not verified")
		c.JSON(http.StatusForbidden, gin.H{
			"error":                        "email address not verified",
			"requires_email_verification": true,
		})
		return
	}

	if !security.CheckPassword(user.Password, password) {
		h.recordAttempt(c, user.ID, ip, userAgent, false, failureInvalidPassword)
		log.WithFields(log.Fields{"user_id": user.ID, "ip": ip}).Info("sign-in failed: invalid password")
		c.JSON(http.StatusUnauthorized, gin.H{"error": genericCredentialError})
		return
	}

	// Anomaly detection runs before the success row is appended so the
	// current attempt does not mask an IP change.
	if suspicion, errDetect := auth.DetectSuspicious(c.Request.Context(), h.db, user.ID, ip); errDetect != nil {
		log.WithError(errDetect).WithField("user_id", user.ID).Warn("suspicious activity detection failed")
	} else if suspicion.Suspicious {
		log.WithFields(log.Fields{"user_id": user.ID, "ip": ip, "reason": suspicion.Reason}).Warn("suspicious sign-in detected")
		if errMail := h.mailer.SendSecurityAlertEmail(user.Email, user.Name, suspicion.Reason, "IP: "+ip); errMail != nil {
			log.WithError(errMail).WithField("user_id", user.ID).Warn("security alert email delivery failed")
		}
	}

	h.recordAttempt(c, user.ID, ip, userAgent, true, "")
	now := time.Now().UTC()
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"last_sign_in_ip": ip, "last_sign_in_at": now, "updated_at": now}).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("user_id", user.ID).Warn("last sign-in update failed")
	}

	if user.TwoFactorEnabled {
		pending, errPending := security.GeneratePendingTwoFactorToken(h.jwtCfg.Secret, user.ID)
		if errPending != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"two_factor_required": true,
			"pending_token":       pending,
		})
		return
	}

	h.respondWithSession(c, user)
}

// twoFactorChallengeRequest defines the request body for the 2FA challenge.
type twoFactorChallengeRequest struct {
	PendingToken string `json:"pending_token"`
	Code         string `json:"code"`
}

// SigninTwoFactor completes a sign-in for an account with two-factor enabled.
// A TOTP match is tried first, then unused backup codes; a consumed backup
// code can never be spent again.
func (h *AuthHandler) SigninTwoFactor(c *gin.Context) {
	var body twoFactorChallengeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	if body.PendingToken == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pending_token and code are required"})
		return
	}

	claims, errClaims := security.ParsePendingTwoFactorToken(h.jwtCfg.Secret, body.PendingToken)
	if errClaims != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign-in session expired, sign in again"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign-in session expired, sign in again"})
		return
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "two-factor authentication is not enabled"})
		return
	}

	if result := h.limiter.Check(c.Request.Context(), ratelimit.BucketVerifyTwoFactor, userKey(user.ID)); !result.Allowed {
		respondRateLimited(c, result)
		return
	}

	if totp.Verify(user.TwoFactorSecret, code) {
		h.respondWithSessionMethod(c, user, "totp")
		return
	}

	// Backup codes are stored uppercase; the conditional update guards
	// against a concurrent double spend.
	normalized := strings.ToUpper(code)
	res := h.db.WithContext(c.Request.Context()).Model(&models.BackupCode{}).
		Where("user_id = ? AND code = ? AND used = ?", user.ID, normalized, false).
		Update("used", true)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		log.WithFields(log.Fields{"user_id": user.ID, "ip": c.ClientIP()}).Info("two-factor challenge failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification code"})
		return
	}

	h.respondWithSessionMethod(c, user, "backup")
}

// forgotPasswordRequest defines the request body for password recovery.
type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword issues a reset token. The reply never reveals whether the
// account exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	if result := h.limiter.Check(c.Request.Context(), ratelimit.BucketForgotPassword, c.ClientIP()); !result.Allowed {
		respondRateLimited(c, result)
		return
	}

	var body forgotPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; errFind == nil {
		token, errToken := h.issueToken(c, email, models.TokenPurposePasswordReset, passwordResetTokenExpiry)
		if errToken != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create reset token failed"})
			return
		}
		if errMail := h.mailer.SendPasswordResetEmail(email, user.Name, token); errMail != nil {
			log.WithError(errMail).WithField("email", email).Warn("password reset email delivery failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "if the address is registered, a reset email has been sent"})
}

// resetPasswordRequest defines the request body for completing a reset.
type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// ResetPassword consumes a reset token and replaces the account password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var body resetPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	token := strings.TrimSpace(body.Token)
	newPassword := strings.TrimSpace(body.NewPassword)
	if token == "" || newPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token and new_password are required"})
		return
	}
	if len(newPassword) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}
	if result := h.limiter.Check(c.Request.Context(), ratelimit.BucketResetPassword, token); !result.Allowed {
		respondRateLimited(c, result)
		return
	}

	var row models.VerificationToken
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("token = ? AND purpose = ?", token, models.TokenPurposePasswordReset).
		First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired reset token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if row.Expired(time.Now().UTC()) {
		_ = h.db.WithContext(c.Request.Context()).Delete(&models.VerificationToken{}, row.ID).Error
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired reset token"})
		return
	}

	var user models.User
	if errUser := h.db.WithContext(c.Request.Context()).Where("email = ?", row.Identifier).First(&user).Error; errUser != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	hash, errHash := security.HashPassword(newPassword)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	now := time.Now().UTC()
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"password": hash, "updated_at": now}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset password failed"})
		return
	}
	_ = h.db.WithContext(c.Request.Context()).Delete(&models.VerificationToken{}, row.ID).Error

	c.JSON(http.StatusOK, gin.H{"message": "password updated, you can sign in now"})
}

// issueToken creates a fresh verification token for the identifier, replacing
// any prior tokens of the same purpose.
func (h *AuthHandler) issueToken(c *gin.Context, identifier, purpose string, expiry time.Duration) (string, error) {
	token, errToken := security.GenerateVerificationToken()
	if errToken != nil {
		return "", errToken
	}
	ctx := c.Request.Context()
	if errDelete := h.db.WithContext(ctx).
		Where("identifier = ? AND purpose = ?", identifier, purpose).
		Delete(&models.VerificationToken{}).Error; errDelete != nil {
		return "", errDelete
	}
	row := models.VerificationToken{
		Token:      token,
		Identifier: identifier,
		Purpose:    purpose,
		ExpiresAt:  time.Now().UTC().Add(expiry),
		CreatedAt:  time.Now().UTC(),
	}
	if errCreate := h.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return "", errCreate
	}
	return token, nil
}

// recordAttempt appends a sign-in history row, logging persistence failures.
func (h *AuthHandler) recordAttempt(c *gin.Context, userID uint64, ip, userAgent string, success bool, reason string) {
	if errRecord := auth.RecordSignInAttempt(c.Request.Context(), h.db, userID, ip, userAgent, success, reason); errRecord != nil {
		log.WithError(errRecord).WithField("user_id", userID).Warn("sign-in history write failed")
	}
}

// respondWithSession issues a session JWT and responds with user info.
func (h *AuthHandler) respondWithSession(c *gin.Context, user models.User) {
	h.respondWithSessionMethod(c, user, "")
}

// respondWithSessionMethod issues a session JWT, reporting the 2FA method used.
func (h *AuthHandler) respondWithSessionMethod(c *gin.Context, user models.User, method string) {
	token, errToken := security.GenerateSessionToken(h.jwtCfg.Secret, user.ID, user.Email, user.Name, user.Role, h.jwtCfg.Expiry.Duration)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	reply := gin.H{
		"token": token,
		"user": gin.H{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"role":  user.Role,
		},
	}
	if method != "" {
		reply["method"] = method
	}
	c.JSON(http.StatusOK, reply)
}
