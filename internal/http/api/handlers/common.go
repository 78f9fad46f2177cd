package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/compass-crm/compasscrm/internal/models"
	"github.com/compass-crm/compasscrm/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// Context keys shared with the route middleware.
const (
	// ContextUserKey holds the authenticated models.User.
	ContextUserKey = "currentUser"
)

// CurrentUser returns the authenticated user from the request context.
func CurrentUser(c *gin.Context) (models.User, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := value.(models.User)
	return user, ok
}

// userKey formats a user ID as a rate limit identifier.
func userKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// respondRateLimited writes a 429 reply with a retry-after hint.
func respondRateLimited(c *gin.Context, result ratelimit.Result) {
	retryAfter := int(time.Until(result.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       "too many requests, try again later",
		"retry_after": retryAfter,
	})
}

// pagination reads page/page_size query parameters with sane bounds.
func pagination(c *gin.Context) (offset, limit int) {
	page, errPage := strconv.Atoi(c.DefaultQuery("page", "1"))
	if errPage != nil || page < 1 {
		page = 1
	}
	size, errSize := strconv.Atoi(c.DefaultQuery("page_size", "25"))
	if errSize != nil || size < 1 {
		size = 25
	}
	if size > 100 {
		size = 100
	}
	return (page - 1) * size, size
}
