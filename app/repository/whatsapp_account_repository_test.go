package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aerostic/aerostic/app/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.WhatsAppAccount{}, &models.Setting{}))

	t.Cleanup(func() {
		db.Exec("DELETE FROM whats_app_accounts")
		db.Exec("DELETE FROM settings")
	})

	return db
}

func connectedAccount(tenantID string) *models.WhatsAppAccount {
	return &models.WhatsAppAccount{
		TenantID:           tenantID,
		BusinessID:         "biz-1",
		WabaID:             "waba-1",
		PhoneNumberID:      "phone-1",
		AccessToken:        "v1:aa:bb",
		DisplayPhoneNumber: "+49 151 1234567",
		VerifiedName:       "Acme GmbH",
		QualityRating:      "GREEN",
		MessagingLimit:     "TIER_1K",
		Status:             models.AccountStatusConnected,
		Mode:               models.AccountModeCoexistence,
	}
}

func TestWhatsAppAccountRepository_GetByTenant(t *testing.T) {
	db := newTestDB(t)
	repo := NewWhatsAppAccountRepository(db)

	// Absence is (nil, nil), never an error.
	account, err := repo.GetByTenant("missing")
	require.NoError(t, err)
	assert.Nil(t, account)

	require.NoError(t, repo.CreateOrUpdate(connectedAccount("tenant-1")))

	account, err = repo.GetByTenant("tenant-1")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "waba-1", account.WabaID)
	assert.Equal(t, models.AccountStatusConnected, account.Status)
}

func TestWhatsAppAccountRepository_CreateOrUpdateIsUpsert(t *testing.T) {
	db := newTestDB(t)
	repo := NewWhatsAppAccountRepository(db)

	require.NoError(t, repo.CreateOrUpdate(connectedAccount("tenant-1")))

	// Reconnecting the same tenant replaces the row instead of adding one.
	second := connectedAccount("tenant-1")
	second.WabaID = "waba-2"
	second.AccessToken = "v1:cc:dd"
	require.NoError(t, repo.CreateOrUpdate(second))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	account, err := repo.GetByTenant("tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "waba-2", account.WabaID)
	assert.Equal(t, "v1:cc:dd", account.AccessToken)
}

func TestWhatsAppAccountRepository_Patch(t *testing.T) {
	db := newTestDB(t)
	repo := NewWhatsAppAccountRepository(db)

	require.NoError(t, repo.CreateOrUpdate(connectedAccount("tenant-1")))

	syncedAt := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	err := repo.Patch("tenant-1", map[string]interface{}{
		"quality_rating": "YELLOW",
		"status":         models.AccountStatusDegraded,
		"last_synced_at": syncedAt,
	})
	require.NoError(t, err)

	account, err := repo.GetByTenant("tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "YELLOW", account.QualityRating)
	assert.Equal(t, models.AccountStatusDegraded, account.Status)
	require.NotNil(t, account.LastSyncedAt)
	assert.Equal(t, syncedAt.Unix(), account.LastSyncedAt.Unix())

	// Untouched fields survive.
	assert.Equal(t, "Acme GmbH", account.VerifiedName)
	assert.Equal(t, "v1:aa:bb", account.AccessToken)
}

func TestWhatsAppAccountRepository_PatchMissingTenantIsNoop(t *testing.T) {
	db := newTestDB(t)
	repo := NewWhatsAppAccountRepository(db)

	// A sync racing a disconnect must not resurrect a row.
	err := repo.Patch("gone", map[string]interface{}{"quality_rating": "RED"})
	require.NoError(t, err)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWhatsAppAccountRepository_Delete(t *testing.T) {
	db := newTestDB(t)
	repo := NewWhatsAppAccountRepository(db)

	require.NoError(t, repo.CreateOrUpdate(connectedAccount("tenant-1")))
	require.NoError(t, repo.CreateOrUpdate(connectedAccount("tenant-2")))

	require.NoError(t, repo.Delete("tenant-1"))

	account, err := repo.GetByTenant("tenant-1")
	require.NoError(t, err)
	assert.Nil(t, account)

	// Other tenants are unaffected.
	account, err = repo.GetByTenant("tenant-2")
	require.NoError(t, err)
	assert.NotNil(t, account)

	// Deleting an absent row is not an error.
	require.NoError(t, repo.Delete("tenant-1"))
}

func TestWhatsAppAccountRepository_IncrementMessageCount(t *testing.T) {
	db := newTestDB(t)
	repo := NewWhatsAppAccountRepository(db)

	require.NoError(t, repo.CreateOrUpdate(connectedAccount("tenant-1")))

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.IncrementMessageCount("tenant-1"))
	}

	account, err := repo.GetByTenant("tenant-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, account.MessageCount)
}

func TestWhatsAppAccountRepository_GetByPhoneNumberID(t *testing.T) {
	db := newTestDB(t)
	repo := NewWhatsAppAccountRepository(db)

	account, err := repo.GetByPhoneNumberID("missing")
	require.NoError(t, err)
	assert.Nil(t, account)

	require.NoError(t, repo.CreateOrUpdate(connectedAccount("tenant-1")))

	account, err = repo.GetByPhoneNumberID("phone-1")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "tenant-1", account.TenantID)
}

func TestWhatsAppAccountRepository_GetByWabaID(t *testing.T) {
	db := newTestDB(t)
	repo := NewWhatsAppAccountRepository(db)

	account, err := repo.GetByWabaID("missing")
	require.NoError(t, err)
	assert.Nil(t, account)

	require.NoError(t, repo.CreateOrUpdate(connectedAccount("tenant-1")))

	account, err = repo.GetByWabaID("waba-1")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "tenant-1", account.TenantID)
}

func TestWhatsAppAccountRepository_SetWebhookVerified(t *testing.T) {
	db := newTestDB(t)
	repo := NewWhatsAppAccountRepository(db)

	require.NoError(t, repo.CreateOrUpdate(connectedAccount("tenant-1")))

	require.NoError(t, repo.SetWebhookVerified("phone-1", true))

	account, err := repo.GetByTenant("tenant-1")
	require.NoError(t, err)
	assert.True(t, account.WebhookVerified)
}

func TestSettingRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettingRepository(db)

	// Missing keys read as empty, never as an error.
	value, err := repo.GetValue(models.SettingMetaAppID)
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, repo.SetValue(models.SettingMetaAppID, "app-123"))

	value, err = repo.GetValue(models.SettingMetaAppID)
	require.NoError(t, err)
	assert.Equal(t, "app-123", value)

	// SetValue overwrites.
	require.NoError(t, repo.SetValue(models.SettingMetaAppID, "app-456"))
	value, err = repo.GetValue(models.SettingMetaAppID)
	require.NoError(t, err)
	assert.Equal(t, "app-456", value)
}
