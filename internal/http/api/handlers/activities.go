package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/compass-crm/compasscrm/internal/authz"
	"github.com/compass-crm/compasscrm/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivitiesHandler handles activity log endpoints.
type ActivitiesHandler struct {
	db *gorm.DB
}

// NewActivitiesHandler constructs an ActivitiesHandler.
func NewActivitiesHandler(conn *gorm.DB) *ActivitiesHandler {
	return &ActivitiesHandler{db: conn}
}

// List returns activities visible to the current user, newest first.
func (h *ActivitiesHandler) List(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	offset, limit := pagination(c)

	query := h.db.WithContext(c.Request.Context()).Model(&models.Activity{})
	if authz.ScopeToOwner(user.Role, authz.ActionRead) {
		query = query.Where("owner_id = ?", user.ID)
	}
	if kind := strings.TrimSpace(c.Query("type")); kind != "" {
		query = query.Where("type = ?", kind)
	}
	if contactID, errParse := strconv.ParseUint(c.Query("contact_id"), 10, 64); errParse == nil {
		query = query.Where("contact_id = ?", contactID)
	}
	if dealID, errParse := strconv.ParseUint(c.Query("deal_id"), 10, 64); errParse == nil {
		query = query.Where("deal_id = ?", dealID)
	}

	var activities []models.Activity
	if errFind := query.Order("occurred_at DESC").Offset(offset).Limit(limit).Find(&activities).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

// activityRequest defines the request body for creating or updating an activity.
type activityRequest struct {
	Type       string         `json:"type"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body"`
	ContactID  *uint64        `json:"contact_id"`
	DealID     *uint64        `json:"deal_id"`
	Metadata   map[string]any `json:"metadata"`
	OccurredAt *time.Time     `json:"occurred_at"`
}

// Create records an activity owned by the current user.
func (h *ActivitiesHandler) Create(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body activityRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !validActivityType(body.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be call, email, meeting or note"})
		return
	}
	if strings.TrimSpace(body.Subject) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject is required"})
		return
	}

	metadata, errMeta := encodeMetadata(body.Metadata)
	if errMeta != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metadata"})
		return
	}

	now := time.Now().UTC()
	occurredAt := now
	if body.OccurredAt != nil {
		occurredAt = body.OccurredAt.UTC()
	}
	activity := models.Activity{
		OwnerID:    user.ID,
		Type:       body.Type,
		Subject:    strings.TrimSpace(body.Subject),
		Body:       body.Body,
		ContactID:  body.ContactID,
		DealID:     body.DealID,
		Metadata:   metadata,
		OccurredAt: occurredAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&activity).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create activity failed"})
		return
	}
	c.JSON(http.StatusCreated, activity)
}

// Get returns a single activity after the ownership check.
func (h *ActivitiesHandler) Get(c *gin.Context) {
	activity, ok := h.loadActivity(c, authz.ActionRead)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, activity)
}

// Update modifies an activity after the ownership check.
func (h *ActivitiesHandler) Update(c *gin.Context) {
	activity, ok := h.loadActivity(c, authz.ActionUpdate)
	if !ok {
		return
	}
	var body activityRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !validActivityType(body.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be call, email, meeting or note"})
		return
	}
	if strings.TrimSpace(body.Subject) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject is required"})
		return
	}

	updates := map[string]any{
		"type":       body.Type,
		"subject":    strings.TrimSpace(body.Subject),
		"body":       body.Body,
		"contact_id": body.ContactID,
		"deal_id":    body.DealID,
		"updated_at": time.Now().UTC(),
	}
	if body.Metadata != nil {
		metadata, errMeta := encodeMetadata(body.Metadata)
		if errMeta != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metadata"})
			return
		}
		updates["metadata"] = metadata
	}
	if body.OccurredAt != nil {
		updates["occurred_at"] = body.OccurredAt.UTC()
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Activity{}).
		Where("id = ?", activity.ID).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update activity failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes an activity after the ownership check.
func (h *ActivitiesHandler) Delete(c *gin.Context) {
	activity, ok := h.loadActivity(c, authz.ActionDelete)
	if !ok {
		return
	}
	if errDelete := h.db.WithContext(c.Request.Context()).Delete(&models.Activity{}, activity.ID).Error; errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete activity failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loadActivity fetches the addressed activity and applies the ownership layer.
func (h *ActivitiesHandler) loadActivity(c *gin.Context, action string) (models.Activity, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.Activity{}, false
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return models.Activity{}, false
	}

	var activity models.Activity
	if errFind := h.db.WithContext(c.Request.Context()).First(&activity, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "activity not found"})
			return models.Activity{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.Activity{}, false
	}

	if allowed, reason := authz.CanAccessRecord(user.Role, user.ID, action, activity.OwnerID); !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": reason})
		return models.Activity{}, false
	}
	return activity, true
}

func validActivityType(kind string) bool {
	switch kind {
	case models.ActivityTypeCall, models.ActivityTypeEmail, models.ActivityTypeMeeting, models.ActivityTypeNote:
		return true
	}
	return false
}

// encodeMetadata marshals the free-form metadata map into a JSON column value.
func encodeMetadata(metadata map[string]any) (datatypes.JSON, error) {
	if metadata == nil {
		return nil, nil
	}
	raw, errMarshal := json.Marshal(metadata)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(raw), nil
}
