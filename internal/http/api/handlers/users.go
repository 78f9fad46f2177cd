package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/compass-crm/compasscrm/internal/models"
	"github.com/compass-crm/compasscrm/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// errLastAdmin guards the invariant that at least one active admin account
// always exists.
var errLastAdmin = errors.New("cannot remove the last active admin")

// UsersHandler handles user administration endpoints.
type UsersHandler struct {
	db *gorm.DB
}

// NewUsersHandler constructs a UsersHandler.
func NewUsersHandler(db *gorm.DB) *UsersHandler {
	return &UsersHandler{db: db}
}

// List returns all user accounts.
func (h *UsersHandler) List(c *gin.Context) {
	offset, limit := pagination(c)

	var users []models.User
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("id ASC").Offset(offset).Limit(limit).
		Find(&users).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]gin.H, 0, len(users))
	for _, user := range users {
		out = append(out, gin.H{
			"id":                 user.ID,
			"name":               user.Name,
			"email":              user.Email,
			"role":               user.Role,
			"active":             user.Active,
			"email_verified":     user.EmailVerified(),
			"two_factor_enabled": user.TwoFactorEnabled,
			"last_sign_in_at":    user.LastSignInAt,
			"created_at":         user.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// createUserRequest defines the request body for creating a user.
type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Create adds a user account. Accounts created here are pre-verified.
func (h *UsersHandler) Create(c *gin.Context) {
	var body createUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	email := strings.ToLower(strings.TrimSpace(body.Email))
	password := strings.TrimSpace(body.Password)
	role := strings.TrimSpace(body.Role)
	if name == "" || email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, email and password are required"})
		return
	}
	if !validRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be admin, manager or rep"})
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	now := time.Now().UTC()
	user := models.User{
		Name:            name,
		Email:           email,
		Password:        hash,
		Role:            role,
		Active:          true,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email, "role": user.Role})
}

// updateUserRequest defines the request body for updating a user.
type updateUserRequest struct {
	Name   *string `json:"name"`
	Role   *string `json:"role"`
	Active *bool   `json:"active"`
}

// Update changes a user's name, role or active flag. Demoting or deactivating
// the last active admin is rejected.
func (h *UsersHandler) Update(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body updateUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Role != nil && !validRole(*body.Role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be admin, manager or rep"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if errFind := tx.First(&user, id).Error; errFind != nil {
			return errFind
		}

		losesAdmin := user.Role == models.RoleAdmin && user.Active &&
			((body.Role != nil && *body.Role != models.RoleAdmin) ||
				(body.Active != nil && !*body.Active))
		if losesAdmin {
			remaining, errCount := countOtherActiveAdmins(tx, user.ID)
			if errCount != nil {
				return errCount
			}
			if remaining == 0 {
				return errLastAdmin
			}
		}

		updates := map[string]any{"updated_at": time.Now().UTC()}
		if body.Name != nil {
			updates["name"] = strings.TrimSpace(*body.Name)
		}
		if body.Role != nil {
			updates["role"] = *body.Role
		}
		if body.Active != nil {
			updates["active"] = *body.Active
		}
		return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error
	})
	if errTx != nil {
		switch {
		case errors.Is(errTx, errLastAdmin):
			c.JSON(http.StatusConflict, gin.H{"error": "at least one active admin account must remain"})
		case errors.Is(errTx, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a user account. Deleting the last active admin is rejected.
func (h *UsersHandler) Delete(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if errFind := tx.First(&user, id).Error; errFind != nil {
			return errFind
		}
		if user.Role == models.RoleAdmin && user.Active {
			remaining, errCount := countOtherActiveAdmins(tx, user.ID)
			if errCount != nil {
				return errCount
			}
			if remaining == 0 {
				return errLastAdmin
			}
		}
		if errCodes := tx.Where("user_id = ?", user.ID).Delete(&models.BackupCode{}).Error; errCodes != nil {
			return errCodes
		}
		return tx.Delete(&models.User{}, user.ID).Error
	})
	if errTx != nil {
		switch {
		case errors.Is(errTx, errLastAdmin):
			c.JSON(http.StatusConflict, gin.H{"error": "at least one active admin account must remain"})
		case errors.Is(errTx, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// countOtherActiveAdmins counts active admins excluding the given user.
func countOtherActiveAdmins(tx *gorm.DB, excludeID uint64) (int64, error) {
	var count int64
	err := tx.Model(&models.User{}).
		Where("role = ? AND active = ? AND id <> ?", models.RoleAdmin, true, excludeID).
		Count(&count).Error
	return count, err
}

// validRole reports whether the role name is assignable.
func validRole(role string) bool {
	switch role {
	case models.RoleAdmin, models.RoleManager, models.RoleRep:
		return true
	default:
		return false
	}
}
