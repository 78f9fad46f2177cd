package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/compass-crm/compasscrm/internal/authz"
	"github.com/compass-crm/compasscrm/internal/db"
	"github.com/compass-crm/compasscrm/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContactsHandler handles contact CRUD endpoints.
type ContactsHandler struct {
	db *gorm.DB
}

// NewContactsHandler constructs a ContactsHandler.
func NewContactsHandler(conn *gorm.DB) *ContactsHandler {
	return &ContactsHandler{db: conn}
}

// List returns contacts visible to the current user, optionally filtered by a
// case-insensitive name/email search.
func (h *ContactsHandler) List(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	offset, limit := pagination(c)

	query := h.db.WithContext(c.Request.Context()).Model(&models.Contact{})
	if authz.ScopeToOwner(user.Role, authz.ActionRead) {
		query = query.Where("owner_id = ?", user.ID)
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		pattern := db.NormalizeLikePattern(h.db, "%"+q+"%")
		query = query.Where(
			h.db.Where(db.CaseInsensitiveLikeExpr(h.db, "first_name"), pattern).
				Or(db.CaseInsensitiveLikeExpr(h.db, "last_name"), pattern).
				Or(db.CaseInsensitiveLikeExpr(h.db, "email"), pattern),
		)
	}

	var contacts []models.Contact
	if errFind := query.Order("id ASC").Offset(offset).Limit(limit).Find(&contacts).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

// contactRequest defines the request body for creating or updating a contact.
type contactRequest struct {
	FirstName    string         `json:"first_name"`
	LastName     string         `json:"last_name"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	CompanyID    *uint64        `json:"company_id"`
	CustomFields datatypes.JSON `json:"custom_fields"`
}

// Create adds a contact owned by the current user.
func (h *ContactsHandler) Create(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body contactRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.FirstName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "first_name is required"})
		return
	}

	now := time.Now().UTC()
	contact := models.Contact{
		OwnerID:      user.ID,
		FirstName:    strings.TrimSpace(body.FirstName),
		LastName:     strings.TrimSpace(body.LastName),
		Email:        strings.ToLower(strings.TrimSpace(body.Email)),
		Phone:        strings.TrimSpace(body.Phone),
		CompanyID:    body.CompanyID,
		CustomFields: body.CustomFields,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&contact).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create contact failed"})
		return
	}
	c.JSON(http.StatusCreated, contact)
}

// Get returns a single contact after the ownership check.
func (h *ContactsHandler) Get(c *gin.Context) {
	contact, ok := h.loadContact(c, authz.ActionRead)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, contact)
}

// Update modifies a contact after the ownership check.
func (h *ContactsHandler) Update(c *gin.Context) {
	contact, ok := h.loadContact(c, authz.ActionUpdate)
	if !ok {
		return
	}
	var body contactRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.FirstName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "first_name is required"})
		return
	}

	updates := map[string]any{
		"first_name":    strings.TrimSpace(body.FirstName),
		"last_name":     strings.TrimSpace(body.LastName),
		"email":         strings.ToLower(strings.TrimSpace(body.Email)),
		"phone":         strings.TrimSpace(body.Phone),
		"company_id":    body.CompanyID,
		"custom_fields": body.CustomFields,
		"updated_at":    time.Now().UTC(),
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Contact{}).
		Where("id = ?", contact.ID).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update contact failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a contact after the ownership check.
func (h *ContactsHandler) Delete(c *gin.Context) {
	contact, ok := h.loadContact(c, authz.ActionDelete)
	if !ok {
		return
	}
	if errDelete := h.db.WithContext(c.Request.Context()).Delete(&models.Contact{}, contact.ID).Error; errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete contact failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loadContact fetches the addressed contact and applies the ownership layer.
// It writes the error reply itself when access is denied.
func (h *ContactsHandler) loadContact(c *gin.Context, action string) (models.Contact, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.Contact{}, false
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return models.Contact{}, false
	}

	var contact models.Contact
	if errFind := h.db.WithContext(c.Request.Context()).First(&contact, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
			return models.Contact{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.Contact{}, false
	}

	if allowed, reason := authz.CanAccessRecord(user.Role, user.ID, action, contact.OwnerID); !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": reason})
		return models.Contact{}, false
	}
	return contact, true
}
