package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/compass-crm/compasscrm/internal/config"
	dbpkg "github.com/compass-crm/compasscrm/internal/db"
	"github.com/compass-crm/compasscrm/internal/mail"
	"github.com/compass-crm/compasscrm/internal/models"
	"github.com/compass-crm/compasscrm/internal/ratelimit"
	"github.com/compass-crm/compasscrm/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, errOpen := dbpkg.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	cfg := &config.Config{
		JWT:  config.JWTConfig{Secret: "router-test-secret", Expiry: config.Duration{Duration: time.Hour}},
		TOTP: config.TOTPConfig{Issuer: "CompassCRM"},
	}
	engine := gin.New()
	RegisterRoutes(engine, conn, cfg, ratelimit.New(nil), mail.LogMailer{})
	return engine, conn, cfg
}

func seedRouterUser(t *testing.T, conn *gorm.DB, email, role string, active bool) models.User {
	t.Helper()
	now := time.Now().UTC()
	user := models.User{
		Name:            "Router User",
		Email:           email,
		Password:        "not-a-real-hash",
		Role:            role,
		Active:          active,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	return user
}

func sessionFor(t *testing.T, cfg *config.Config, user models.User) string {
	t.Helper()
	token, errToken := security.GenerateSessionToken(cfg.JWT.Secret, user.ID, user.Email, user.Name, user.Role, cfg.JWT.Expiry.Duration)
	if errToken != nil {
		t.Fatalf("generate session token: %v", errToken)
	}
	return token
}

func TestHealthzOpen(t *testing.T) {
	engine, _, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestAuthenticatedRoutesRejectMissingOrBadToken(t *testing.T) {
	engine, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/profile", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 with bad token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 with wrong scheme, got %d", w.Code)
	}
}

func TestAuthenticatedRouteLoadsUser(t *testing.T) {
	engine, conn, cfg := newTestRouter(t)
	user := seedRouterUser(t, conn, "rep@example.com", models.RoleRep, true)

	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req.Header.Set("Authorization", "Bearer "+sessionFor(t, cfg, user))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if resp.Email != user.Email || resp.Role != models.RoleRep {
		t.Fatalf("unexpected profile body=%s", w.Body.String())
	}
}

func TestPendingTwoFactorTokenNotAcceptedAsSession(t *testing.T) {
	engine, conn, cfg := newTestRouter(t)
	user := seedRouterUser(t, conn, "rep@example.com", models.RoleRep, true)
	if errUpdate := conn.Model(&models.User{}).Where("id = ?", user.ID).
		Update("two_factor_enabled", true).Error; errUpdate != nil {
		t.Fatalf("enable 2fa: %v", errUpdate)
	}

	// The token issued between the password step and the two-factor
	// challenge must never open an authenticated route.
	pending, errPending := security.GeneratePendingTwoFactorToken(cfg.JWT.Secret, user.ID)
	if errPending != nil {
		t.Fatalf("generate pending token: %v", errPending)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req.Header.Set("Authorization", "Bearer "+pending)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for pending token, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestSessionRejectedForInactiveAccount(t *testing.T) {
	engine, conn, cfg := newTestRouter(t)
	user := seedRouterUser(t, conn, "inactive@example.com", models.RoleRep, false)

	req := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	req.Header.Set("Authorization", "Bearer "+sessionFor(t, cfg, user))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for inactive account, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestPermissionMiddlewareBlocksByRole(t *testing.T) {
	engine, conn, cfg := newTestRouter(t)
	rep := seedRouterUser(t, conn, "rep@example.com", models.RoleRep, true)
	manager := seedRouterUser(t, conn, "manager@example.com", models.RoleManager, true)
	admin := seedRouterUser(t, conn, "admin@example.com", models.RoleAdmin, true)

	// Reps cannot list users.
	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req.Header.Set("Authorization", "Bearer "+sessionFor(t, cfg, rep))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for rep listing users, got %d body=%s", w.Code, w.Body.String())
	}

	// Managers can list but not delete users.
	req = httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req.Header.Set("Authorization", "Bearer "+sessionFor(t, cfg, manager))
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for manager listing users, got %d body=%s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/users/1", nil)
	req.Header.Set("Authorization", "Bearer "+sessionFor(t, cfg, manager))
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for manager deleting users, got %d body=%s", w.Code, w.Body.String())
	}

	// Reps cannot view the dashboard; admins can.
	req = httptest.NewRequest(http.MethodGet, "/v1/dashboard/summary", nil)
	req.Header.Set("Authorization", "Bearer "+sessionFor(t, cfg, rep))
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for rep dashboard, got %d body=%s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/dashboard/summary", nil)
	req.Header.Set("Authorization", "Bearer "+sessionFor(t, cfg, admin))
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for admin dashboard, got %d body=%s", w.Code, w.Body.String())
	}
}
