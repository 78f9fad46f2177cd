package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/compass-crm/compasscrm/internal/authz"
	"github.com/compass-crm/compasscrm/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CompaniesHandler handles company CRUD endpoints. Companies are governed by
// the contact resource permission.
type CompaniesHandler struct {
	db *gorm.DB
}

// NewCompaniesHandler constructs a CompaniesHandler.
func NewCompaniesHandler(conn *gorm.DB) *CompaniesHandler {
	return &CompaniesHandler{db: conn}
}

// List returns companies visible to the current user.
func (h *CompaniesHandler) List(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	offset, limit := pagination(c)

	query := h.db.WithContext(c.Request.Context()).Model(&models.Company{})
	if authz.ScopeToOwner(user.Role, authz.ActionRead) {
		query = query.Where("owner_id = ?", user.ID)
	}

	var companies []models.Company
	if errFind := query.Order("name ASC").Offset(offset).Limit(limit).Find(&companies).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": companies})
}

// companyRequest defines the request body for creating or updating a company.
type companyRequest struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Industry string `json:"industry"`
}

// Create adds a company owned by the current user.
func (h *CompaniesHandler) Create(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body companyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	now := time.Now().UTC()
	company := models.Company{
		OwnerID:   user.ID,
		Name:      strings.TrimSpace(body.Name),
		Domain:    strings.ToLower(strings.TrimSpace(body.Domain)),
		Industry:  strings.TrimSpace(body.Industry),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&company).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create company failed"})
		return
	}
	c.JSON(http.StatusCreated, company)
}

// Get returns a single company after the ownership check.
func (h *CompaniesHandler) Get(c *gin.Context) {
	company, ok := h.loadCompany(c, authz.ActionRead)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, company)
}

// Update modifies a company after the ownership check.
func (h *CompaniesHandler) Update(c *gin.Context) {
	company, ok := h.loadCompany(c, authz.ActionUpdate)
	if !ok {
		return
	}
	var body companyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Company{}).
		Where("id = ?", company.ID).
		Updates(map[string]any{
			"name":       strings.TrimSpace(body.Name),
			"domain":     strings.ToLower(strings.TrimSpace(body.Domain)),
			"industry":   strings.TrimSpace(body.Industry),
			"updated_at": time.Now().UTC(),
		}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update company failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a company after the ownership check.
func (h *CompaniesHandler) Delete(c *gin.Context) {
	company, ok := h.loadCompany(c, authz.ActionDelete)
	if !ok {
		return
	}
	if errDelete := h.db.WithContext(c.Request.Context()).Delete(&models.Company{}, company.ID).Error; errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete company failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loadCompany fetches the addressed company and applies the ownership layer.
func (h *CompaniesHandler) loadCompany(c *gin.Context, action string) (models.Company, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.Company{}, false
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return models.Company{}, false
	}

	var company models.Company
	if errFind := h.db.WithContext(c.Request.Context()).First(&company, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "company not found"})
			return models.Company{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.Company{}, false
	}

	if allowed, reason := authz.CanAccessRecord(user.Role, user.ID, action, company.OwnerID); !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": reason})
		return models.Company{}, false
	}
	return company, true
}
