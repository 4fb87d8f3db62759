package apiv1

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/aerostic/aerostic/internal/pkg/metaapi"
	"github.com/aerostic/aerostic/internal/pkg/middleware"
	"github.com/aerostic/aerostic/internal/pkg/whatsapp"
)

// IntegrationService is the orchestrator surface the HTTP layer depends on.
type IntegrationService interface {
	GetStatus(tenantID string) (*whatsapp.Status, error)
	GetAccountDetails(tenantID string) (*whatsapp.AccountDetails, error)
	GetPublicConfig() *whatsapp.PublicConfig
	EmbeddedSignupURL(tenantID string) (string, error)
	ConnectFromOAuthCode(ctx context.Context, code, tenantID, providedWabaID, providedPhoneNumberID string) error
	SyncAccountFromMeta(ctx context.Context, tenantID string) (*whatsapp.SyncSummary, error)
	SendTestMessage(tenantID, to string) (*whatsapp.SendAck, error)
	Disconnect(tenantID string) error
}

// APIServer implements the v1 WhatsApp integration endpoints
type APIServer struct {
	service  IntegrationService
	validate *validator.Validate
}

// NewAPIServer creates a new API server instance
func NewAPIServer(service IntegrationService) *APIServer {
	return &APIServer{
		service:  service,
		validate: validator.New(),
	}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// GetStatus returns the tenant's connection summary
func (s *APIServer) GetStatus(c *fiber.Ctx) error {
	status, err := s.service.GetStatus(middleware.TenantID(c))
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(status)
}

// GetAccount returns the full account projection
func (s *APIServer) GetAccount(c *fiber.Ctx) error {
	details, err := s.service.GetAccountDetails(middleware.TenantID(c))
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(details)
}

// GetConfig returns the non-secret provider configuration for the
// embedded-signup frontend
func (s *APIServer) GetConfig(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(s.service.GetPublicConfig())
}

// GetSignupURL builds the embedded-signup OAuth dialog URL for the tenant
func (s *APIServer) GetSignupURL(c *fiber.Ctx) error {
	url, err := s.service.EmbeddedSignupURL(middleware.TenantID(c))
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": url})
}

// ConnectRequest completes the embedded-signup flow with the OAuth code.
// WABA and phone number ids are optional; missing ids are discovered through
// the provider.
type ConnectRequest struct {
	Code          string `json:"code" validate:"required"`
	WabaID        string `json:"wabaId"`
	PhoneNumberID string `json:"phoneNumberId"`
}

// PostConnect exchanges an OAuth code and stores the tenant's account
func (s *APIServer) PostConnect(c *fiber.Ctx) error {
	var req ConnectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}
	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, "Field 'code' is required")
	}

	tenantID := middleware.TenantID(c)
	if err := s.service.ConnectFromOAuthCode(c.UserContext(), req.Code, tenantID, req.WabaID, req.PhoneNumberID); err != nil {
		return s.serviceError(c, err)
	}

	status, err := s.service.GetStatus(tenantID)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(status)
}

// PostSync reconciles live provider state into the registry
func (s *APIServer) PostSync(c *fiber.Ctx) error {
	summary, err := s.service.SyncAccountFromMeta(c.UserContext(), middleware.TenantID(c))
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

// TestMessageRequest asks for a template test message to a single recipient
type TestMessageRequest struct {
	To string `json:"to" validate:"required,e164"`
}

// PostTestMessage enqueues a test template send for the tenant
func (s *APIServer) PostTestMessage(c *fiber.Ctx) error {
	var req TestMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}
	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, "Field 'to' must be a phone number in E.164 format")
	}

	ack, err := s.service.SendTestMessage(middleware.TenantID(c), req.To)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(ack)
}

// DeleteAccount disconnects the tenant's WhatsApp account
func (s *APIServer) DeleteAccount(c *fiber.Ctx) error {
	if err := s.service.Disconnect(middleware.TenantID(c)); err != nil {
		return s.serviceError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "WhatsApp account disconnected"})
}

// serviceError maps orchestrator errors onto HTTP responses. Expected states
// (not connected, sync already running) get specific statuses; everything else
// is a 500 with a generic body.
func (s *APIServer) serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, whatsapp.ErrNotConnected):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_connected",
			"message": "No WhatsApp account is connected for this tenant",
		})
	case errors.Is(err, whatsapp.ErrSyncInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "sync_in_progress",
			"message": "A sync for this tenant is already running",
		})
	}

	var confErr *whatsapp.ConfigurationError
	if errors.As(err, &confErr) {
		log.Errorf("[API] Missing configuration: %v", confErr)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   "configuration_missing",
			"message": "The integration is not configured: " + confErr.Key,
		})
	}

	var apiErr *metaapi.APIError
	if errors.As(err, &apiErr) {
		log.Errorf("[API] Provider error: %v", apiErr)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "provider_error",
			"message": apiErr.Message,
		})
	}

	log.Errorf("[API] Internal error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal_server_error",
		"message": "Something went wrong",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "bad_request",
		"message": message,
	})
}
