package whatsapp

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/aerostic/aerostic/internal/pkg/cache"
)

const (
	credentialKeyPrefix = "whatsapp:token:"
	syncLockKeyPrefix   = "whatsapp:synclock:"

	// CredentialTTL bounds how long decrypted credentials live in the shared
	// cache before the registry is consulted again.
	CredentialTTL = time.Hour

	syncLockTTL = 30 * time.Second
)

// CachedCredentials is the ephemeral, decrypted projection of an account used
// by send paths. The account registry always wins on conflict; entries are
// invalidated on sync and disconnect and expire on TTL otherwise.
type CachedCredentials struct {
	WabaID        string `json:"wabaId"`
	PhoneNumberID string `json:"phoneNumberId"`
	AccessToken   string `json:"accessToken"`
}

// CredentialStore is the shared TTL cache for decrypted tenant credentials.
// All operations are best-effort: a cache outage degrades to registry reads
// and must never fail the caller.
type CredentialStore interface {
	Get(tenantID string) (*CachedCredentials, bool)
	Set(tenantID string, creds *CachedCredentials, ttl time.Duration)
	Invalidate(tenantID string)
}

// SyncLocker serializes provider syncs per tenant so concurrent calls do not
// issue redundant Graph API reads.
type SyncLocker interface {
	TryLock(tenantID string) bool
	Unlock(tenantID string)
}

// redisCredentialStore backs CredentialStore with the shared Redis cache so
// every service instance observes a consistent view.
type redisCredentialStore struct{}

// NewCredentialStore returns the Redis-backed credential store.
func NewCredentialStore() CredentialStore {
	return &redisCredentialStore{}
}

func (s *redisCredentialStore) Get(tenantID string) (*CachedCredentials, bool) {
	raw, err := cache.Get(credentialKeyPrefix + tenantID)
	if err != nil {
		if !cache.IsMiss(err) {
			log.Warnf("[WhatsApp] credential cache read for tenant %s failed: %v", tenantID, err)
		}
		return nil, false
	}

	var creds CachedCredentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		log.Warnf("[WhatsApp] dropping unreadable credential cache entry for tenant %s: %v", tenantID, err)
		_ = cache.Delete(credentialKeyPrefix + tenantID)
		return nil, false
	}
	return &creds, true
}

// Set is fire-and-forget: cache population failure must not fail the lookup.
func (s *redisCredentialStore) Set(tenantID string, creds *CachedCredentials, ttl time.Duration) {
	data, err := json.Marshal(creds)
	if err != nil {
		log.Errorf("[WhatsApp] marshal credentials for tenant %s: %v", tenantID, err)
		return
	}
	if err := cache.Set(credentialKeyPrefix+tenantID, data, ttl); err != nil {
		log.Warnf("[WhatsApp] credential cache write for tenant %s failed: %v", tenantID, err)
	}
}

func (s *redisCredentialStore) Invalidate(tenantID string) {
	if err := cache.Delete(credentialKeyPrefix + tenantID); err != nil {
		log.Warnf("[WhatsApp] credential cache invalidation for tenant %s failed: %v", tenantID, err)
	}
}

// redisSyncLocker implements SyncLocker with a short-TTL SETNX key. When Redis
// is unavailable the lock degrades to a no-op; duplicate syncs are wasteful
// but idempotent.
type redisSyncLocker struct{}

// NewSyncLocker returns the Redis-backed per-tenant sync lock.
func NewSyncLocker() SyncLocker {
	return &redisSyncLocker{}
}

func (l *redisSyncLocker) TryLock(tenantID string) bool {
	ok, err := cache.SetNX(syncLockKeyPrefix+tenantID, "1", syncLockTTL)
	if err != nil {
		log.Warnf("[WhatsApp] sync lock for tenant %s unavailable, proceeding unlocked: %v", tenantID, err)
		return true
	}
	return ok
}

func (l *redisSyncLocker) Unlock(tenantID string) {
	if err := cache.Delete(syncLockKeyPrefix + tenantID); err != nil {
		log.Warnf("[WhatsApp] sync unlock for tenant %s failed: %v", tenantID, err)
	}
}
