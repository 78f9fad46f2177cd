package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/compass-crm/compasscrm/internal/app"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	migrateOnly := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := app.AppConfig{ConfigPath: *configPath}

	if *migrateOnly {
		if err := app.Migrate(ctx, appCfg); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if err := app.RunServer(ctx, appCfg); err != nil {
		log.Fatalf("server: %v", err)
	}
}
