package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aerostic/aerostic/app/models"
)

// whatsAppAccountRepository implements the WhatsAppAccountRepository interface
type whatsAppAccountRepository struct {
	db *gorm.DB
}

// NewWhatsAppAccountRepository creates a new account repository instance
func NewWhatsAppAccountRepository(db *gorm.DB) WhatsAppAccountRepository {
	return &whatsAppAccountRepository{db: db}
}

// GetByTenant returns the tenant's account row, or (nil, nil) when the tenant
// has never connected. Absence is an expected state, not an error.
func (r *whatsAppAccountRepository) GetByTenant(tenantID string) (*models.WhatsAppAccount, error) {
	var account models.WhatsAppAccount
	err := r.db.Where("tenant_id = ?", tenantID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetByPhoneNumberID returns the account owning a provider phone number id.
// Used by the webhook receiver to map inbound events back to a tenant.
func (r *whatsAppAccountRepository) GetByPhoneNumberID(phoneNumberID string) (*models.WhatsAppAccount, error) {
	var account models.WhatsAppAccount
	err := r.db.Where("phone_number_id = ?", phoneNumberID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetByWabaID returns the account owning a WhatsApp Business Account id.
// Inbound webhook entries carry the WABA id, not the tenant id.
func (r *whatsAppAccountRepository) GetByWabaID(wabaID string) (*models.WhatsAppAccount, error) {
	var account models.WhatsAppAccount
	err := r.db.Where("waba_id = ?", wabaID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// CreateOrUpdate upserts the full account row keyed by tenant_id. The connect
// flow uses this; at most one row per tenant is guaranteed by the unique index.
func (r *whatsAppAccountRepository) CreateOrUpdate(account *models.WhatsAppAccount) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"business_id", "waba_id", "phone_number_id", "access_token",
			"display_phone_number", "verified_name", "quality_rating",
			"messaging_limit", "status", "mode", "token_expires_at",
		}),
	}).Create(account).Error
}

// Patch applies a partial update to the tenant's row. Missing rows are left
// alone so a sync racing a disconnect cannot resurrect an account.
func (r *whatsAppAccountRepository) Patch(tenantID string, fields map[string]interface{}) error {
	return r.db.Model(&models.WhatsAppAccount{}).
		Where("tenant_id = ?", tenantID).
		Updates(fields).Error
}

// Delete removes the tenant's row entirely. Absence of a row is the canonical
// "not connected" signal.
func (r *whatsAppAccountRepository) Delete(tenantID string) error {
	return r.db.Where("tenant_id = ?", tenantID).Delete(&models.WhatsAppAccount{}).Error
}

// IncrementMessageCount bumps the outbound message counter for a tenant
func (r *whatsAppAccountRepository) IncrementMessageCount(tenantID string) error {
	return r.db.Model(&models.WhatsAppAccount{}).
		Where("tenant_id = ?", tenantID).
		UpdateColumn("message_count", gorm.Expr("message_count + 1")).Error
}

// SetWebhookVerified records the webhook handshake outcome for the account
// that owns the given phone number id
func (r *whatsAppAccountRepository) SetWebhookVerified(phoneNumberID string, verified bool) error {
	return r.db.Model(&models.WhatsAppAccount{}).
		Where("phone_number_id = ?", phoneNumberID).
		Update("webhook_verified", verified).Error
}

// Count returns the number of connected account rows
func (r *whatsAppAccountRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.WhatsAppAccount{}).Count(&count).Error
	return count, err
}
