package apiv1

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/aerostic/aerostic/app/models"
	"github.com/aerostic/aerostic/app/repository"
	"github.com/aerostic/aerostic/internal/pkg/sysconfig"
)

// WebhookHandler receives provider callbacks: the one-time verification
// handshake and ongoing account/quality update events.
type WebhookHandler struct {
	accounts repository.WhatsAppAccountRepository
	config   sysconfig.Provider
}

// NewWebhookHandler creates a webhook handler instance
func NewWebhookHandler(accounts repository.WhatsAppAccountRepository, config sysconfig.Provider) *WebhookHandler {
	return &WebhookHandler{accounts: accounts, config: config}
}

// Verify answers the provider's GET handshake: echo hub.challenge when
// hub.verify_token matches the configured value, 403 otherwise.
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	expected := h.config.GetConfigValue(models.SettingMetaWebhookVerifyToken)
	if expected == "" {
		log.Error("[Webhook] Verify token is not configured, rejecting handshake")
		return c.SendStatus(fiber.StatusForbidden)
	}

	if mode != "subscribe" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		log.Warnf("[Webhook] Rejected handshake (mode=%s)", mode)
		return c.SendStatus(fiber.StatusForbidden)
	}

	log.Info("[Webhook] Handshake verified")
	return c.Status(fiber.StatusOK).SendString(challenge)
}

// webhookEvent is the subset of the provider's event envelope we act on.
type webhookEvent struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"` // WABA id
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Event              string `json:"event"`
				CurrentLimit       string `json:"current_limit"`
				Decision           string `json:"decision"`
				DisplayPhoneNumber string `json:"display_phone_number"`
				Metadata           struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Receive processes POSTed provider events. Always answers 200 so the
// provider does not re-deliver; failures are logged instead.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var event webhookEvent
	if err := c.BodyParser(&event); err != nil {
		log.Warnf("[Webhook] Unparseable event payload: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}

	if event.Object != "whatsapp_business_account" {
		return c.SendStatus(fiber.StatusOK)
	}

	for _, entry := range event.Entry {
		account, err := h.accounts.GetByWabaID(entry.ID)
		if err != nil {
			log.Errorf("[Webhook] Account lookup for WABA %s failed: %v", entry.ID, err)
			continue
		}
		if account == nil {
			log.Warnf("[Webhook] Event for unknown WABA %s ignored", entry.ID)
			continue
		}

		// Any delivered event proves the subscription works end to end.
		if !account.WebhookVerified && account.PhoneNumberID != "" {
			if err := h.accounts.SetWebhookVerified(account.PhoneNumberID, true); err != nil {
				log.Warnf("[Webhook] Failed to mark webhook verified for tenant %s: %v", account.TenantID, err)
			}
		}

		for _, change := range entry.Changes {
			h.applyChange(account.TenantID, change.Field, change.Value.Event, change.Value.Decision, change.Value.CurrentLimit)
		}
	}

	return c.SendStatus(fiber.StatusOK)
}

// applyChange flips the account between connected and degraded based on
// provider quality and review events. Disconnected is never produced here.
func (h *WebhookHandler) applyChange(tenantID, field, event, decision, currentLimit string) {
	fields := map[string]interface{}{}

	switch field {
	case "phone_number_quality_update":
		switch event {
		case "FLAGGED", "RESTRICTED":
			fields["status"] = models.AccountStatusDegraded
			fields["quality_rating"] = "RED"
		case "UNFLAGGED":
			fields["status"] = models.AccountStatusConnected
			fields["quality_rating"] = "GREEN"
		}
		if currentLimit != "" {
			fields["messaging_limit"] = currentLimit
		}
	case "account_review_update":
		switch decision {
		case "APPROVED":
			fields["status"] = models.AccountStatusConnected
		case "REJECTED":
			fields["status"] = models.AccountStatusDegraded
		}
	default:
		return
	}

	if len(fields) == 0 {
		return
	}

	if err := h.accounts.Patch(tenantID, fields); err != nil {
		log.Errorf("[Webhook] Failed to apply %s for tenant %s: %v", field, tenantID, err)
		return
	}
	log.Infof("[Webhook] Applied %s for tenant %s", field, tenantID)
}
