package models

import "time"

// Account lifecycle states. An account row only exists while a tenant is (or
// was) connected; a disconnect deletes the row, so "no row" is the canonical
// disconnected signal.
const (
	AccountStatusDisconnected = "disconnected"
	AccountStatusConnected    = "connected"
	AccountStatusDegraded     = "degraded"
)

// Operational modes reported at connection time.
const (
	AccountModeCoexistence = "coexistence"
	AccountModeSandbox     = "sandbox"
	AccountModeLive        = "live"
)

// WhatsAppAccount stores the per-tenant WhatsApp Business Platform linkage.
// AccessToken only ever holds the encrypted form produced by the secrets box;
// plaintext tokens exist transiently in memory and in the credential cache.
type WhatsAppAccount struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	TenantID           string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"tenant_id"`
	BusinessID         string     `gorm:"type:varchar(64)" json:"business_id"`
	WabaID             string     `gorm:"type:varchar(64);index" json:"waba_id"`
	PhoneNumberID      string     `gorm:"type:varchar(64);index" json:"phone_number_id"`
	AccessToken        string     `gorm:"type:text" json:"-"`
	DisplayPhoneNumber string     `gorm:"type:varchar(32)" json:"display_phone_number"`
	VerifiedName       string     `gorm:"type:varchar(255)" json:"verified_name"`
	QualityRating      string     `gorm:"type:varchar(32)" json:"quality_rating"`
	MessagingLimit     string     `gorm:"type:varchar(32)" json:"messaging_limit"`
	Status             string     `gorm:"type:varchar(20);not null;default:disconnected" json:"status"`
	Mode               string     `gorm:"type:varchar(20)" json:"mode"`
	WebhookVerified    bool       `gorm:"not null;default:false" json:"webhook_verified"`
	MessageCount       int64      `gorm:"not null;default:0" json:"message_count"`
	LastSyncedAt       *time.Time `gorm:"type:timestamp;default:null" json:"last_synced_at,omitempty"`
	TokenExpiresAt     *time.Time `gorm:"type:timestamp;default:null" json:"token_expires_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsConnected reports whether the account is in the connected state.
func (a *WhatsAppAccount) IsConnected() bool {
	return a.Status == AccountStatusConnected
}
