package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nusapay/qrisgate/app/repository"
	"github.com/nusapay/qrisgate/internal/pkg/cache"
	"github.com/nusapay/qrisgate/internal/pkg/database"
	"github.com/nusapay/qrisgate/internal/pkg/env"
	"github.com/nusapay/qrisgate/internal/pkg/mail"
	"github.com/nusapay/qrisgate/internal/pkg/payment"
	"github.com/nusapay/qrisgate/internal/pkg/router"
	"github.com/nusapay/qrisgate/internal/pkg/s3backup"
	"github.com/nusapay/qrisgate/internal/pkg/scheduler"
	"github.com/nusapay/qrisgate/internal/pkg/upstream"
	"github.com/nusapay/qrisgate/internal/pkg/webhook"
)

func main() {
	app, sched := NewApplication()
	sched.Start()
	startBackupLoop()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	sched.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("shutdown error: %v", err)
	}
}

func NewApplication() (*fiber.App, *scheduler.Scheduler) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	repos := repository.GetGlobalRepositories()
	service := payment.NewService(repos, upstream.NewClientFromEnv(), payment.NewPaidCache())
	dispatcher := webhook.NewDispatcher(repos, mail.NewAlertNotifier())
	sched := scheduler.New(repos, service, dispatcher)

	app := fiber.New(fiber.Config{
		AppName:   "qrisgate",
		BodyLimit: 1048576, // 1 MiB, invoice payloads are small
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, service)

	return app, sched
}

// startBackupLoop uploads periodic database snapshots when the backup
// target is configured.
func startBackupLoop() {
	cfg, err := s3backup.LoadConfig()
	if err != nil {
		log.Errorf("[S3Backup] invalid configuration: %v", err)
		return
	}
	if !cfg.Enabled {
		return
	}

	client, err := s3backup.NewClient(cfg)
	if err != nil {
		log.Errorf("[S3Backup] init failed: %v", err)
		return
	}

	interval := env.GetEnvDuration("S3_BACKUP_INTERVAL", 24*time.Hour)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := client.UploadSnapshot(time.Now()); err != nil {
				log.Errorf("[S3Backup] snapshot failed: %v", err)
				continue
			}
			if err := client.PruneOld(); err != nil {
				log.Errorf("[S3Backup] prune failed: %v", err)
			}
		}
	}()
}
