package handlers

import (
	"net/http"
	"time"

	"github.com/compass-crm/compasscrm/internal/authz"
	"github.com/compass-crm/compasscrm/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DashboardHandler serves aggregate pipeline metrics.
type DashboardHandler struct {
	db *gorm.DB
}

// NewDashboardHandler constructs a DashboardHandler.
func NewDashboardHandler(conn *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: conn}
}

// Summary returns record counts and pipeline totals. Admins and managers see
// organization-wide numbers; access is denied to other roles.
func (h *DashboardHandler) Summary(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !authz.CanAccessAnalytics(user.Role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "analytics access requires a manager or admin role"})
		return
	}

	ctx := c.Request.Context()
	var contacts, companies, deals, openTasks int64
	if errCount := h.db.WithContext(ctx).Model(&models.Contact{}).Count(&contacts).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if errCount := h.db.WithContext(ctx).Model(&models.Company{}).Count(&companies).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if errCount := h.db.WithContext(ctx).Model(&models.Deal{}).Count(&deals).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if errCount := h.db.WithContext(ctx).Model(&models.Task{}).
		Where("status = ?", models.TaskStatusOpen).Count(&openTasks).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	type stageTotal struct {
		Stage      string `json:"stage"`
		Count      int64  `json:"count"`
		ValueCents int64  `json:"value_cents"`
	}
	var pipeline []stageTotal
	if errFind := h.db.WithContext(ctx).Model(&models.Deal{}).
		Select("stage, COUNT(*) AS count, COALESCE(SUM(value_cents), 0) AS value_cents").
		Group("stage").Scan(&pipeline).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var openValueCents int64
	row := h.db.WithContext(ctx).Model(&models.Deal{}).
		Select("COALESCE(SUM(value_cents), 0)").
		Where("stage NOT IN ?", []string{models.DealStageWon, models.DealStageLost}).
		Row()
	if errScan := row.Scan(&openValueCents); errScan != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	since := time.Now().UTC().Add(-30 * 24 * time.Hour)
	var recentActivities int64
	if errCount := h.db.WithContext(ctx).Model(&models.Activity{}).
		Where("occurred_at >= ?", since).Count(&recentActivities).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contacts":          contacts,
		"companies":         companies,
		"deals":             deals,
		"open_tasks":        openTasks,
		"open_value_cents":  openValueCents,
		"pipeline":          pipeline,
		"recent_activities": recentActivities,
	})
}
