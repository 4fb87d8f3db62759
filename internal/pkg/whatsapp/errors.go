package whatsapp

import (
	"errors"
	"fmt"
)

// ErrNotConnected signals that the tenant has no account record. This is an
// expected state ("please connect WhatsApp"), not a failure, and is never
// logged as an error.
var ErrNotConnected = errors.New("whatsapp account not connected")

// ErrSyncInProgress signals that another sync for the same tenant currently
// holds the per-tenant sync lock. Callers may simply retry later; the running
// sync will produce the same provider truth.
var ErrSyncInProgress = errors.New("account sync already in progress")

// ConfigurationError indicates required operator configuration is missing.
// The calling request cannot proceed until an operator fixes the settings.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Key)
}

// SyncError wraps a provider or network failure during account sync. The
// cause is preserved verbatim so operators can diagnose provider-side issues.
type SyncError struct {
	Stage string // "phone_number" or "waba"
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("provider sync failed at %s: %v", e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
