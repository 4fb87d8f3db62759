package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/aerostic/aerostic/app/repository"
	apiv1 "github.com/aerostic/aerostic/internal/api/v1"
	"github.com/aerostic/aerostic/internal/pkg/cache"
	"github.com/aerostic/aerostic/internal/pkg/database"
	"github.com/aerostic/aerostic/internal/pkg/env"
	"github.com/aerostic/aerostic/internal/pkg/jobqueue"
	"github.com/aerostic/aerostic/internal/pkg/metaapi"
	"github.com/aerostic/aerostic/internal/pkg/router"
	"github.com/aerostic/aerostic/internal/pkg/secrets"
	"github.com/aerostic/aerostic/internal/pkg/sysconfig"
	"github.com/aerostic/aerostic/internal/pkg/whatsapp"
)

func main() {
	app := NewApplication()

	// Graceful shutdown: drain the queue workers before the listener dies.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		jobqueue.GetManager().Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	factory := repository.NewFactory(database.GetDB())
	repository.SetGlobalFactory(factory)

	box, err := secrets.NewBox(env.GetEnv("ENCRYPTION_KEY", ""))
	if err != nil {
		log.Fatalf("encryption setup failed: %v", err)
	}

	config := sysconfig.NewDBProvider(factory.GetSettingRepository(), sysconfig.DefaultTTL)

	queue := jobqueue.GetManager().GetQueue()

	service := whatsapp.NewService(
		factory.GetWhatsAppAccountRepository(),
		whatsapp.NewCredentialStore(),
		box,
		config,
		queue,
		metaapi.NewClient(),
		whatsapp.NewSyncLocker(),
	)

	// The queue dispatches outbound messages through the service; the service
	// enqueues through the queue. Both directions are wired here.
	queue.SetDispatcher(service)
	jobqueue.GetManager().Start()

	basePath := findBasePath()

	app := fiber.New(fiber.Config{
		AppName: "aerostic",
	})

	app.Use(recover.New(), logger.New())

	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	router.InstallRouter(app, router.NewApiRouter(
		apiv1.NewAPIServer(service),
		apiv1.NewWebhookHandler(factory.GetWhatsAppAccountRepository(), config),
	))

	return app
}

func findBasePath() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/aerostic to project root
		"../../../", // Fallback
	}

	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			return path
		}
	}

	panic("Could not find project root directory")
}
