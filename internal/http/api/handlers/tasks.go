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

// TasksHandler handles task CRUD endpoints.
type TasksHandler struct {
	db *gorm.DB
}

// NewTasksHandler constructs a TasksHandler.
func NewTasksHandler(conn *gorm.DB) *TasksHandler {
	return &TasksHandler{db: conn}
}

// List returns tasks visible to the current user, optionally filtered by status.
func (h *TasksHandler) List(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	offset, limit := pagination(c)

	query := h.db.WithContext(c.Request.Context()).Model(&models.Task{})
	if authz.ScopeToOwner(user.Role, authz.ActionRead) {
		query = query.Where("owner_id = ?", user.ID)
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		query = query.Where("status = ?", status)
	}

	var tasks []models.Task
	if errFind := query.Order("due_at ASC").Offset(offset).Limit(limit).Find(&tasks).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// taskRequest defines the request body for creating or updating a task.
type taskRequest struct {
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	DueAt     *time.Time `json:"due_at"`
	DealID    *uint64    `json:"deal_id"`
	ContactID *uint64    `json:"contact_id"`
}

// Create adds a task owned by the current user.
func (h *TasksHandler) Create(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body taskRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	status := body.Status
	if status == "" {
		status = models.TaskStatusOpen
	}
	if status != models.TaskStatusOpen && status != models.TaskStatusDone {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be open or done"})
		return
	}

	now := time.Now().UTC()
	task := models.Task{
		OwnerID:   user.ID,
		Title:     strings.TrimSpace(body.Title),
		Status:    status,
		DueAt:     body.DueAt,
		DealID:    body.DealID,
		ContactID: body.ContactID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&task).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create task failed"})
		return
	}
	c.JSON(http.StatusCreated, task)
}

// Get returns a single task after the ownership check.
func (h *TasksHandler) Get(c *gin.Context) {
	task, ok := h.loadTask(c, authz.ActionRead)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, task)
}

// Update modifies a task after the ownership check.
func (h *TasksHandler) Update(c *gin.Context) {
	task, ok := h.loadTask(c, authz.ActionUpdate)
	if !ok {
		return
	}
	var body taskRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if body.Status != "" && body.Status != models.TaskStatusOpen && body.Status != models.TaskStatusDone {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be open or done"})
		return
	}

	updates := map[string]any{
		"title":      strings.TrimSpace(body.Title),
		"due_at":     body.DueAt,
		"deal_id":    body.DealID,
		"contact_id": body.ContactID,
		"updated_at": time.Now().UTC(),
	}
	if body.Status != "" {
		updates["status"] = body.Status
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Task{}).
		Where("id = ?", task.ID).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update task failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a task after the ownership check.
func (h *TasksHandler) Delete(c *gin.Context) {
	task, ok := h.loadTask(c, authz.ActionDelete)
	if !ok {
		return
	}
	if errDelete := h.db.WithContext(c.Request.Context()).Delete(&models.Task{}, task.ID).Error; errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete task failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loadTask fetches the addressed task and applies the ownership layer.
func (h *TasksHandler) loadTask(c *gin.Context, action string) (models.Task, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.Task{}, false
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return models.Task{}, false
	}

	var task models.Task
	if errFind := h.db.WithContext(c.Request.Context()).First(&task, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return models.Task{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.Task{}, false
	}

	if allowed, reason := authz.CanAccessRecord(user.Role, user.ID, action, task.OwnerID); !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": reason})
		return models.Task{}, false
	}
	return task, true
}
