package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/aerostic/aerostic/app/models"
)

// defaultTokenLifetime is assumed when the provider omits expires_in for a
// long-lived token (Meta documents roughly 60 days).
const defaultTokenLifetime = 5184000 * time.Second

// ConnectFromOAuthCode completes the embedded-signup flow for a tenant: the
// authorization code is exchanged for a long-lived token, the granted WABA
// and phone number are discovered, and the account row is upserted with the
// encrypted token. The provider may hand the WABA/phone ids directly through
// the signup callback; discovery only runs for whatever is missing.
func (s *Service) ConnectFromOAuthCode(ctx context.Context, code, tenantID, providedWabaID, providedPhoneNumberID string) error {
	appID := s.config.GetConfigValue(models.SettingMetaAppID)
	if appID == "" {
		return &ConfigurationError{Key: models.SettingMetaAppID}
	}
	appSecret := s.config.GetConfigValue(models.SettingMetaAppSecret)
	if appSecret == "" {
		return &ConfigurationError{Key: models.SettingMetaAppSecret}
	}
	redirectURI := s.config.GetConfigValue(models.SettingMetaRedirectURI)
	if redirectURI == "" {
		return &ConfigurationError{Key: models.SettingMetaRedirectURI}
	}

	apiVersion := s.APIVersion()

	shortTok, err := s.meta.ExchangeCode(ctx, apiVersion, appID, appSecret, redirectURI, code)
	if err != nil {
		return fmt.Errorf("exchange oauth code: %w", err)
	}

	longTok, err := s.meta.ExchangeLongLivedToken(ctx, apiVersion, appID, appSecret, shortTok.AccessToken)
	if err != nil {
		return fmt.Errorf("exchange long-lived token: %w", err)
	}
	accessToken := longTok.AccessToken

	lifetime := defaultTokenLifetime
	if longTok.ExpiresIn > 0 {
		lifetime = time.Duration(longTok.ExpiresIn) * time.Second
	}
	expiresAt := s.now().Add(lifetime)

	wabaID := providedWabaID
	if wabaID == "" {
		// The embedded-signup token carries the granted WABA in its
		// granular scopes.
		debug, err := s.meta.DebugToken(ctx, apiVersion, appID, appSecret, accessToken)
		if err != nil {
			log.Warnf("[WhatsApp] debug_token for tenant %s failed: %v", tenantID, err)
		} else {
			for _, scope := range debug.GranularScopes {
				if scope.Scope == "whatsapp_business_management" && len(scope.TargetIDs) > 0 {
					wabaID = scope.TargetIDs[0]
					break
				}
			}
		}
	}
	if wabaID == "" {
		return errors.New("no WhatsApp Business Account granted by this signup")
	}

	phoneNumberID := providedPhoneNumberID
	displayPhoneNumber := ""
	if phoneNumberID == "" {
		phoneNumberID, displayPhoneNumber, err = s.meta.FirstPhoneNumber(ctx, apiVersion, wabaID, accessToken)
		if err != nil {
			return fmt.Errorf("discover phone number: %w", err)
		}
	}

	encryptedToken, err := s.box.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	account := &models.WhatsAppAccount{
		TenantID:           tenantID,
		WabaID:             wabaID,
		PhoneNumberID:      phoneNumberID,
		DisplayPhoneNumber: displayPhoneNumber,
		AccessToken:        encryptedToken,
		TokenExpiresAt:     &expiresAt,
		Status:             models.AccountStatusConnected,
		Mode:               models.AccountModeCoexistence,
	}
	if err := s.accounts.CreateOrUpdate(account); err != nil {
		return fmt.Errorf("store account for tenant %s: %w", tenantID, err)
	}

	s.creds.Invalidate(tenantID)

	log.Infof("[WhatsApp] Connected tenant %s (waba=%s, phone=%s)", tenantID, wabaID, phoneNumberID)
	return nil
}
