package sysconfig

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/aerostic/aerostic/app/repository"
	"github.com/aerostic/aerostic/internal/pkg/env"
)

// DefaultTTL bounds how long a fetched config value is served from memory
// before the settings table is consulted again.
const DefaultTTL = 5 * time.Minute

// Provider exposes operator-managed configuration values. The settings store
// is treated as slow and occasionally unavailable, so values are cached by the
// provider rather than re-fetched per call.
type Provider interface {
	GetConfigValue(key string) string
}

type cachedValue struct {
	value     string
	fetchedAt time.Time
}

// DBProvider reads configuration from the settings table with an env-variable
// fallback, caching each value for a fixed TTL. It is safe for concurrent use.
type DBProvider struct {
	settings repository.SettingRepository
	ttl      time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	values map[string]cachedValue
}

// NewDBProvider creates a provider over the given setting repository.
func NewDBProvider(settings repository.SettingRepository, ttl time.Duration) *DBProvider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DBProvider{
		settings: settings,
		ttl:      ttl,
		now:      time.Now,
		values:   make(map[string]cachedValue),
	}
}

// GetConfigValue returns the configured value for key, or "" when unset.
// Lookup order: in-memory cache, settings table, environment fallback. A
// settings store outage degrades to the env fallback and the stale cache
// entry (if any) instead of failing the caller.
func (p *DBProvider) GetConfigValue(key string) string {
	p.mu.RLock()
	cached, ok := p.values[key]
	p.mu.RUnlock()
	if ok && p.now().Sub(cached.fetchedAt) < p.ttl {
		return cached.value
	}

	value, err := p.settings.GetValue(key)
	if err != nil {
		log.Warnf("[SysConfig] settings lookup for %s failed: %v", key, err)
		if ok {
			return cached.value
		}
		return envFallback(key)
	}
	if value == "" {
		value = envFallback(key)
	}

	p.mu.Lock()
	p.values[key] = cachedValue{value: value, fetchedAt: p.now()}
	p.mu.Unlock()

	return value
}

// Invalidate drops the cached entry for key so the next read hits the store.
func (p *DBProvider) Invalidate(key string) {
	p.mu.Lock()
	delete(p.values, key)
	p.mu.Unlock()
}

// envFallback maps a settings key like "meta.app_id" to the env variable
// "META_APP_ID".
func envFallback(key string) string {
	envKey := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	return env.GetEnv(envKey, "")
}
