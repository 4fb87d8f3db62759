package whatsapp

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/aerostic/aerostic/app/models"
)

// SyncSummary reports the fields refreshed by a successful sync.
type SyncSummary struct {
	VerifiedName        string `json:"verifiedName"`
	DisplayPhoneNumber  string `json:"displayPhoneNumber"`
	QualityRating       string `json:"qualityRating"`
	MessagingLimit      string `json:"messagingLimit"`
	WabaName            string `json:"wabaName"`
	AccountReviewStatus string `json:"accountReviewStatus"`
	Status              string `json:"status"`
}

// SyncAccountFromMeta reconciles live provider state into the registry for
// one tenant. The update is all-or-nothing: if either provider read fails,
// no registry write happens and the cache entry is left untouched, so a torn
// phone-fresh/WABA-stale state is impossible.
func (s *Service) SyncAccountFromMeta(ctx context.Context, tenantID string) (*SyncSummary, error) {
	if !s.syncLock.TryLock(tenantID) {
		return nil, ErrSyncInProgress
	}
	defer s.syncLock.Unlock(tenantID)

	account, err := s.accounts.GetByTenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("load account for tenant %s: %w", tenantID, err)
	}
	if account == nil {
		return nil, ErrNotConnected
	}

	token, err := s.box.Decrypt(account.AccessToken)
	if err != nil {
		log.Errorf("[WhatsApp] stored access token for tenant %s is unreadable: %v", tenantID, err)
		return nil, err
	}

	apiVersion := s.APIVersion()

	phone, err := s.meta.GetPhoneNumber(ctx, apiVersion, account.PhoneNumberID, token)
	if err != nil {
		return nil, &SyncError{Stage: "phone_number", Err: err}
	}

	waba, err := s.meta.GetWABA(ctx, apiVersion, account.WabaID, token)
	if err != nil {
		return nil, &SyncError{Stage: "waba", Err: err}
	}

	status := statusForProviderState(phone.QualityRating, waba.AccountReviewStatus)
	now := s.now()

	err = s.accounts.Patch(tenantID, map[string]interface{}{
		"verified_name":        phone.VerifiedName,
		"display_phone_number": phone.DisplayPhoneNumber,
		"quality_rating":       phone.QualityRating,
		"messaging_limit":      phone.MessagingLimitTier,
		"status":               status,
		"last_synced_at":       now,
	})
	if err != nil {
		return nil, fmt.Errorf("apply sync for tenant %s: %w", tenantID, err)
	}

	// The token did not change, but cache entries should not outlive a sync
	// that touched the authoritative record.
	s.creds.Invalidate(tenantID)

	log.Infof("[WhatsApp] Synced account for tenant %s (quality=%s, review=%s)",
		tenantID, phone.QualityRating, waba.AccountReviewStatus)

	return &SyncSummary{
		VerifiedName:        phone.VerifiedName,
		DisplayPhoneNumber:  phone.DisplayPhoneNumber,
		QualityRating:       phone.QualityRating,
		MessagingLimit:      phone.MessagingLimitTier,
		WabaName:            waba.Name,
		AccountReviewStatus: waba.AccountReviewStatus,
		Status:              status,
	}, nil
}

// statusForProviderState maps provider quality and review signals onto the
// connected/degraded pair. Disconnected is never produced here; only an
// explicit disconnect removes an account.
func statusForProviderState(qualityRating, reviewStatus string) string {
	switch qualityRating {
	case "RED", "FLAGGED":
		return models.AccountStatusDegraded
	}
	switch reviewStatus {
	case "REJECTED", "SUSPENDED", "DISABLED":
		return models.AccountStatusDegraded
	}
	return models.AccountStatusConnected
}
