// Package app boots the CRM API server: configuration, logging,
// database, rate-limit store, mailer and routes.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/compass-crm/compasscrm/internal/config"
	"github.com/compass-crm/compasscrm/internal/db"
	"github.com/compass-crm/compasscrm/internal/http/api"
	"github.com/compass-crm/compasscrm/internal/logging"
	"github.com/compass-crm/compasscrm/internal/mail"
	"github.com/compass-crm/compasscrm/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// AppConfig holds command line inputs.
type AppConfig struct {
	ConfigPath string
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, appCfg AppConfig) error {
	cfg, err := config.Load(config.ResolveConfigPath(appCfg.ConfigPath))
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the API server with database-backed components.
func RunServer(ctx context.Context, appCfg AppConfig) error {
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging)

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	var rdb *redis.Client
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if errPing := rdb.Ping(ctx).Err(); errPing != nil {
			log.Warnf("redis unreachable, rate limiting disabled: %v", errPing)
		}
	} else {
		log.Warn("redis address not configured, rate limiting disabled")
	}
	limiter := ratelimit.New(rdb)

	var mailer mail.Mailer
	if strings.TrimSpace(cfg.SMTP.Host) != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTP)
	} else {
		log.Warn("smtp host not configured, emails will be logged instead of sent")
		mailer = mail.LogMailer{}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.RegisterRoutes(engine, conn, &cfg, limiter, mailer)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	log.Infof("listening on %s with config=%s", cfg.Server.Addr, configPath)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case errServe := <-errCh:
		if errServe == http.ErrServerClosed {
			return nil
		}
		return errServe
	}
}
