package sysconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings struct {
	values map[string]string
	err    error
	calls  int
}

func (f *fakeSettings) GetValue(key string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.values[key], nil
}

func (f *fakeSettings) SetValue(key, value string) error {
	f.values[key] = value
	return nil
}

func TestGetConfigValue_ReadsThroughAndCaches(t *testing.T) {
	settings := &fakeSettings{values: map[string]string{"meta.app_id": "12345"}}
	p := NewDBProvider(settings, time.Minute)

	assert.Equal(t, "12345", p.GetConfigValue("meta.app_id"))
	assert.Equal(t, "12345", p.GetConfigValue("meta.app_id"))
	assert.Equal(t, 1, settings.calls, "second read must be served from cache")
}

func TestGetConfigValue_TTLExpiry(t *testing.T) {
	settings := &fakeSettings{values: map[string]string{"meta.app_id": "12345"}}
	p := NewDBProvider(settings, time.Minute)

	current := time.Unix(1700000000, 0)
	p.now = func() time.Time { return current }

	require.Equal(t, "12345", p.GetConfigValue("meta.app_id"))
	require.Equal(t, 1, settings.calls)

	// Within TTL: cached.
	current = current.Add(30 * time.Second)
	require.Equal(t, "12345", p.GetConfigValue("meta.app_id"))
	require.Equal(t, 1, settings.calls)

	// Past TTL: refetched, picking up the new value.
	settings.values["meta.app_id"] = "67890"
	current = current.Add(2 * time.Minute)
	assert.Equal(t, "67890", p.GetConfigValue("meta.app_id"))
	assert.Equal(t, 2, settings.calls)
}

func TestGetConfigValue_EnvFallback(t *testing.T) {
	settings := &fakeSettings{values: map[string]string{}}
	p := NewDBProvider(settings, time.Minute)

	t.Setenv("META_REDIRECT_URI", "https://app.example.com/meta/callback")
	assert.Equal(t, "https://app.example.com/meta/callback", p.GetConfigValue("meta.redirect_uri"))
}

func TestGetConfigValue_StoreOutageServesStaleValue(t *testing.T) {
	settings := &fakeSettings{values: map[string]string{"meta.app_id": "12345"}}
	p := NewDBProvider(settings, time.Nanosecond)

	require.Equal(t, "12345", p.GetConfigValue("meta.app_id"))

	settings.err = errors.New("connection refused")
	time.Sleep(time.Millisecond)
	assert.Equal(t, "12345", p.GetConfigValue("meta.app_id"),
		"store outage must degrade to the stale cached value")
}

func TestInvalidate(t *testing.T) {
	settings := &fakeSettings{values: map[string]string{"meta.api_version": "v21.0"}}
	p := NewDBProvider(settings, time.Hour)

	require.Equal(t, "v21.0", p.GetConfigValue("meta.api_version"))
	settings.values["meta.api_version"] = "v22.0"

	p.Invalidate("meta.api_version")
	assert.Equal(t, "v22.0", p.GetConfigValue("meta.api_version"))
}
