package models

import "time"

// Setting represents a system setting row. Provider configuration such as the
// Meta app id, redirect URI and API version lives here so operators can change
// it without a redeploy; env variables act as fallback defaults.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null;default:string" json:"type"` // string, boolean, integer, float
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known setting keys consumed by the WhatsApp integration layer.
const (
	SettingMetaAppID              = "meta.app_id"
	SettingMetaAppSecret          = "meta.app_secret"
	SettingMetaConfigID           = "meta.config_id"
	SettingMetaRedirectURI        = "meta.redirect_uri"
	SettingMetaAPIVersion         = "meta.api_version"
	SettingMetaWebhookVerifyToken = "meta.webhook_verify_token"
)
