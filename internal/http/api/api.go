// Package api wires the HTTP surface: public authentication routes,
// authenticated profile and two-factor routes, and permission-gated
// CRM record routes.
package api

import (
	"net/http"
	"strings"

	"github.com/compass-crm/compasscrm/internal/authz"
	"github.com/compass-crm/compasscrm/internal/config"
	"github.com/compass-crm/compasscrm/internal/http/api/handlers"
	"github.com/compass-crm/compasscrm/internal/mail"
	"github.com/compass-crm/compasscrm/internal/models"
	"github.com/compass-crm/compasscrm/internal/ratelimit"
	"github.com/compass-crm/compasscrm/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterRoutes registers every API route on the engine.
func RegisterRoutes(r *gin.Engine, conn *gorm.DB, cfg *config.Config, limiter *ratelimit.Limiter, mailer mail.Mailer) {
	if r == nil || conn == nil || cfg == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(conn)
	r.GET("/healthz", healthHandler.Healthz)

	v1 := r.Group("/v1")

	authHandler := handlers.NewAuthHandler(conn, cfg.JWT, limiter, mailer)
	v1.POST("/auth/signup", authHandler.Signup)
	v1.POST("/auth/signin", authHandler.Signin)
	v1.POST("/auth/signin/2fa", authHandler.SigninTwoFactor)
	v1.GET("/auth/verify-email", authHandler.VerifyEmail)
	v1.POST("/auth/resend-verification", authHandler.ResendVerification)
	v1.POST("/auth/forgot-password", authHandler.ForgotPassword)
	v1.POST("/auth/reset-password", authHandler.ResetPassword)

	authed := v1.Group("")
	authed.Use(sessionAuthMiddleware(conn, cfg.JWT))

	profileHandler := handlers.NewProfileHandler(conn)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile/password", profileHandler.ChangePassword)

	mfaHandler := handlers.NewMFAHandler(conn, limiter, cfg.TOTP.Issuer)
	authed.GET("/2fa/status", mfaHandler.Status)
	authed.POST("/2fa/prepare", mfaHandler.Prepare)
	authed.POST("/2fa/confirm", mfaHandler.Confirm)
	authed.POST("/2fa/disable", mfaHandler.Disable)
	authed.POST("/2fa/backup-codes/regenerate", mfaHandler.RegenerateBackupCodes)

	usersHandler := handlers.NewUsersHandler(conn)
	users := authed.Group("/users")
	users.GET("", requirePermission(authz.ResourceUser, authz.ActionRead), usersHandler.List)
	users.POST("", requirePermission(authz.ResourceUser, authz.ActionCreate), usersHandler.Create)
	users.PUT("/:id", requirePermission(authz.ResourceUser, authz.ActionUpdate), usersHandler.Update)
	users.DELETE("/:id", requirePermission(authz.ResourceUser, authz.ActionDelete), usersHandler.Delete)

	contactsHandler := handlers.NewContactsHandler(conn)
	contacts := authed.Group("/contacts")
	contacts.GET("", requirePermission(authz.ResourceContact, authz.ActionRead), contactsHandler.List)
	contacts.POST("", requirePermission(authz.ResourceContact, authz.ActionCreate), contactsHandler.Create)
	contacts.GET("/:id", requirePermission(authz.ResourceContact, authz.ActionRead), contactsHandler.Get)
	contacts.PUT("/:id", requirePermission(authz.ResourceContact, authz.ActionUpdate), contactsHandler.Update)
	contacts.DELETE("/:id", requirePermission(authz.ResourceContact, authz.ActionDelete), contactsHandler.Delete)

	// Companies share the contact resource permission.
	companiesHandler := handlers.NewCompaniesHandler(conn)
	companies := authed.Group("/companies")
	companies.GET("", requirePermission(authz.ResourceContact, authz.ActionRead), companiesHandler.List)
	companies.POST("", requirePermission(authz.ResourceContact, authz.ActionCreate), companiesHandler.Create)
	companies.GET("/:id", requirePermission(authz.ResourceContact, authz.ActionRead), companiesHandler.Get)
	companies.PUT("/:id", requirePermission(authz.ResourceContact, authz.ActionUpdate), companiesHandler.Update)
	companies.DELETE("/:id", requirePermission(authz.ResourceContact, authz.ActionDelete), companiesHandler.Delete)

	dealsHandler := handlers.NewDealsHandler(conn)
	deals := authed.Group("/deals")
	deals.GET("", requirePermission(authz.ResourceDeal, authz.ActionRead), dealsHandler.List)
	deals.POST("", requirePermission(authz.ResourceDeal, authz.ActionCreate), dealsHandler.Create)
	deals.GET("/:id", requirePermission(authz.ResourceDeal, authz.ActionRead), dealsHandler.Get)
	deals.PUT("/:id", requirePermission(authz.ResourceDeal, authz.ActionUpdate), dealsHandler.Update)
	deals.DELETE("/:id", requirePermission(authz.ResourceDeal, authz.ActionDelete), dealsHandler.Delete)

	tasksHandler := handlers.NewTasksHandler(conn)
	tasks := authed.Group("/tasks")
	tasks.GET("", requirePermission(authz.ResourceTask, authz.ActionRead), tasksHandler.List)
	tasks.POST("", requirePermission(authz.ResourceTask, authz.ActionCreate), tasksHandler.Create)
	tasks.GET("/:id", requirePermission(authz.ResourceTask, authz.ActionRead), tasksHandler.Get)
	tasks.PUT("/:id", requirePermission(authz.ResourceTask, authz.ActionUpdate), tasksHandler.Update)
	tasks.DELETE("/:id", requirePermission(authz.ResourceTask, authz.ActionDelete), tasksHandler.Delete)

	activitiesHandler := handlers.NewActivitiesHandler(conn)
	activities := authed.Group("/activities")
	activities.GET("", requirePermission(authz.ResourceActivity, authz.ActionRead), activitiesHandler.List)
	activities.POST("", requirePermission(authz.ResourceActivity, authz.ActionCreate), activitiesHandler.Create)
	activities.GET("/:id", requirePermission(authz.ResourceActivity, authz.ActionRead), activitiesHandler.Get)
	activities.PUT("/:id", requirePermission(authz.ResourceActivity, authz.ActionUpdate), activitiesHandler.Update)
	activities.DELETE("/:id", requirePermission(authz.ResourceActivity, authz.ActionDelete), activitiesHandler.Delete)

	dashboardHandler := handlers.NewDashboardHandler(conn)
	authed.GET("/dashboard/summary", dashboardHandler.Summary)
}

// sessionAuthMiddleware validates session JWTs and loads the user into context.
func sessionAuthMiddleware(conn *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseSessionToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := conn.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account inactive"})
			return
		}

		c.Set(handlers.ContextUserKey, user)
		c.Next()
	}
}

// requirePermission rejects requests whose role lacks the resource action.
func requirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := handlers.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !authz.HasPermission(user.Role, resource, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "your role does not permit " + action + " on " + resource,
			})
			return
		}
		c.Next()
	}
}
