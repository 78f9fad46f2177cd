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

// DealsHandler handles deal CRUD endpoints.
type DealsHandler struct {
	db *gorm.DB
}

// NewDealsHandler constructs a DealsHandler.
func NewDealsHandler(conn *gorm.DB) *DealsHandler {
	return &DealsHandler{db: conn}
}

// List returns deals visible to the current user, optionally filtered by stage.
func (h *DealsHandler) List(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	offset, limit := pagination(c)

	query := h.db.WithContext(c.Request.Context()).Model(&models.Deal{})
	if authz.ScopeToOwner(user.Role, authz.ActionRead) {
		query = query.Where("owner_id = ?", user.ID)
	}
	if stage := strings.TrimSpace(c.Query("stage")); stage != "" {
		query = query.Where("stage = ?", stage)
	}

	var deals []models.Deal
	if errFind := query.Order("updated_at DESC").Offset(offset).Limit(limit).Find(&deals).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deals": deals})
}

// dealRequest defines the request body for creating or updating a deal.
type dealRequest struct {
	Title      string  `json:"title"`
	Stage      string  `json:"stage"`
	ValueCents int64   `json:"value_cents"`
	Currency   string  `json:"currency"`
	ContactID  *uint64 `json:"contact_id"`
	CompanyID  *uint64 `json:"company_id"`
}

// Create adds a deal owned by the current user.
func (h *DealsHandler) Create(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body dealRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	stage := body.Stage
	if stage == "" {
		stage = models.DealStageLead
	}
	if !validDealStage(stage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stage"})
		return
	}

	now := time.Now().UTC()
	deal := models.Deal{
		OwnerID:    user.ID,
		Title:      strings.TrimSpace(body.Title),
		Stage:      stage,
		ValueCents: body.ValueCents,
		Currency:   currencyOrDefault(body.Currency),
		ContactID:  body.ContactID,
		CompanyID:  body.CompanyID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if closedStage(stage) {
		deal.ClosedAt = &now
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&deal).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create deal failed"})
		return
	}
	c.JSON(http.StatusCreated, deal)
}

// Get returns a single deal after the ownership check.
func (h *DealsHandler) Get(c *gin.Context) {
	deal, ok := h.loadDeal(c, authz.ActionRead)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, deal)
}

// Update modifies a deal after the ownership check. Moving a deal into a
// closed stage stamps ClosedAt; reopening clears it.
func (h *DealsHandler) Update(c *gin.Context) {
	deal, ok := h.loadDeal(c, authz.ActionUpdate)
	if !ok {
		return
	}
	var body dealRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if body.Stage != "" && !validDealStage(body.Stage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stage"})
		return
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"title":       strings.TrimSpace(body.Title),
		"value_cents": body.ValueCents,
		"currency":    currencyOrDefault(body.Currency),
		"contact_id":  body.ContactID,
		"company_id":  body.CompanyID,
		"updated_at":  now,
	}
	if body.Stage != "" {
		updates["stage"] = body.Stage
		if closedStage(body.Stage) {
			updates["closed_at"] = now
		} else {
			updates["closed_at"] = nil
		}
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Deal{}).
		Where("id = ?", deal.ID).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update deal failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a deal after the ownership check.
func (h *DealsHandler) Delete(c *gin.Context) {
	deal, ok := h.loadDeal(c, authz.ActionDelete)
	if !ok {
		return
	}
	if errDelete := h.db.WithContext(c.Request.Context()).Delete(&models.Deal{}, deal.ID).Error; errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete deal failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loadDeal fetches the addressed deal and applies the ownership layer.
func (h *DealsHandler) loadDeal(c *gin.Context, action string) (models.Deal, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.Deal{}, false
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return models.Deal{}, false
	}

	var deal models.Deal
	if errFind := h.db.WithContext(c.Request.Context()).First(&deal, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "deal not found"})
			return models.Deal{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.Deal{}, false
	}

	if allowed, reason := authz.CanAccessRecord(user.Role, user.ID, action, deal.OwnerID); !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": reason})
		return models.Deal{}, false
	}
	return deal, true
}

// validDealStage reports whether the stage name is known.
func validDealStage(stage string) bool {
	switch stage {
	case models.DealStageLead, models.DealStageQualified, models.DealStageProposal,
		models.DealStageWon, models.DealStageLost:
		return true
	default:
		return false
	}
}

// closedStage reports whether the stage ends the deal.
func closedStage(stage string) bool {
	return stage == models.DealStageWon || stage == models.DealStageLost
}

// currencyOrDefault normalizes a currency code.
func currencyOrDefault(currency string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(currency))
	if trimmed == "" {
		return "USD"
	}
	return trimmed
}
