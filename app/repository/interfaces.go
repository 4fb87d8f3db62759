package repository

import (
	"sync"

	"gorm.io/gorm"

	"github.com/aerostic/aerostic/app/models"
)

// WhatsAppAccountRepository defines the interface for per-tenant account
// records. The registry is the single source of truth; the credential cache
// is an optimization layered on top of it.
type WhatsAppAccountRepository interface {
	GetByTenant(tenantID string) (*models.WhatsAppAccount, error)
	GetByPhoneNumberID(phoneNumberID string) (*models.WhatsAppAccount, error)
	GetByWabaID(wabaID string) (*models.WhatsAppAccount, error)
	CreateOrUpdate(account *models.WhatsAppAccount) error
	// Patch updates only the supplied columns for a tenant's row. It is
	// idempotent and never creates a row.
	Patch(tenantID string, fields map[string]interface{}) error
	Delete(tenantID string) error
	IncrementMessageCount(tenantID string) error
	SetWebhookVerified(phoneNumberID string, verified bool) error
	Count() (int64, error)
}

// SettingRepository defines the interface for system settings
type SettingRepository interface {
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	WhatsAppAccount WhatsAppAccountRepository
	Setting         SettingRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		WhatsAppAccount: NewWhatsAppAccountRepository(db),
		Setting:         NewSettingRepository(db),
	}
}

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetWhatsAppAccountRepository returns the account repository instance
func (f *Factory) GetWhatsAppAccountRepository() WhatsAppAccountRepository {
	return f.GetRepositories().WhatsAppAccount
}

// GetSettingRepository returns the setting repository instance
func (f *Factory) GetSettingRepository() SettingRepository {
	return f.GetRepositories().Setting
}

var (
	globalFactory   *Factory
	globalFactoryMu sync.Mutex
)

// SetGlobalFactory installs the process-wide factory at startup
func SetGlobalFactory(f *Factory) {
	globalFactoryMu.Lock()
	defer globalFactoryMu.Unlock()
	globalFactory = f
}

// GetGlobalFactory returns the process-wide factory
func GetGlobalFactory() *Factory {
	globalFactoryMu.Lock()
	defer globalFactoryMu.Unlock()
	return globalFactory
}
