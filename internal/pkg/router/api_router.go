package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	apiv1 "github.com/aerostic/aerostic/internal/api/v1"
	"github.com/aerostic/aerostic/internal/pkg/cache"
	"github.com/aerostic/aerostic/internal/pkg/env"
	"github.com/aerostic/aerostic/internal/pkg/middleware"
)

type ApiRouter struct {
	server  *apiv1.APIServer
	webhook *apiv1.WebhookHandler
}

func NewApiRouter(server *apiv1.APIServer, webhook *apiv1.WebhookHandler) *ApiRouter {
	return &ApiRouter{server: server, webhook: webhook}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    newLimiterStorage(),
	}))

	v1 := api.Group("/v1")
	v1.Get("/ping", h.server.GetPing)

	// Webhook endpoints are called by the provider and authenticate through
	// the verify-token handshake, not the service token.
	v1.Get("/webhooks/whatsapp", h.webhook.Verify)
	v1.Post("/webhooks/whatsapp", h.webhook.Receive)

	wa := v1.Group("/whatsapp", middleware.ServiceTokenAuth())
	wa.Get("/config", h.server.GetConfig)

	tenant := wa.Group("", middleware.TenantContext())
	tenant.Get("/status", h.server.GetStatus)
	tenant.Get("/account", h.server.GetAccount)
	tenant.Get("/signup-url", h.server.GetSignupURL)
	tenant.Post("/connect", h.server.PostConnect)
	tenant.Post("/sync", h.server.PostSync)
	tenant.Post("/test-message", h.server.PostTestMessage)
	tenant.Delete("/account", h.server.DeleteAccount)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// instances. Connection details are derived from the shared cache client.
func newLimiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")

	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1, // Limiter state in its own database (cache uses DB 0)
		Reset:    false,
	})
}
