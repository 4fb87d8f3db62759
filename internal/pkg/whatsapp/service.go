package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/aerostic/aerostic/app/models"
	"github.com/aerostic/aerostic/app/repository"
	"github.com/aerostic/aerostic/internal/pkg/jobqueue"
	"github.com/aerostic/aerostic/internal/pkg/metaapi"
	"github.com/aerostic/aerostic/internal/pkg/secrets"
	"github.com/aerostic/aerostic/internal/pkg/sysconfig"
)

// testMessageTemplate is the pre-approved template used by SendTestMessage.
const testMessageTemplate = "hello_world"

// MetaClient is the subset of the Graph API client the service depends on.
type MetaClient interface {
	GetPhoneNumber(ctx context.Context, apiVersion, phoneNumberID, accessToken string) (*metaapi.PhoneNumberInfo, error)
	GetWABA(ctx context.Context, apiVersion, wabaID, accessToken string) (*metaapi.WABAInfo, error)
	SendMessage(ctx context.Context, apiVersion, phoneNumberID, accessToken string, payload json.RawMessage) (*metaapi.SendResponse, error)
	ExchangeCode(ctx context.Context, apiVersion, appID, appSecret, redirectURI, code string) (*metaapi.TokenResponse, error)
	ExchangeLongLivedToken(ctx context.Context, apiVersion, appID, appSecret, shortToken string) (*metaapi.TokenResponse, error)
	DebugToken(ctx context.Context, apiVersion, appID, appSecret, inputToken string) (*metaapi.DebugTokenData, error)
	FirstPhoneNumber(ctx context.Context, apiVersion, wabaID, accessToken string) (id, displayNumber string, err error)
	DialogURL(apiVersion, appID, redirectURI, state string) string
}

// Encryptor seals and opens secrets at rest.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Enqueuer hands a job to the durable dispatch queue. Any queue satisfying
// at-least-once delivery with per-job retry/backoff metadata is a valid
// implementation.
type Enqueuer interface {
	EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}, opts jobqueue.Options) (*jobqueue.Job, error)
}

// Service orchestrates the WhatsApp Business Platform integration for all
// tenants. It is stateless with respect to in-process memory: all mutable
// state lives in the account registry and the shared credential cache, so it
// may be invoked concurrently without locks.
type Service struct {
	accounts repository.WhatsAppAccountRepository
	creds    CredentialStore
	box      Encryptor
	config   sysconfig.Provider
	queue    Enqueuer
	meta     MetaClient
	syncLock SyncLocker
	now      func() time.Time
}

// NewService wires the integration service from its dependencies. Assembled
// once at process startup.
func NewService(
	accounts repository.WhatsAppAccountRepository,
	creds CredentialStore,
	box Encryptor,
	config sysconfig.Provider,
	queue Enqueuer,
	meta MetaClient,
	syncLock SyncLocker,
) *Service {
	return &Service{
		accounts: accounts,
		creds:    creds,
		box:      box,
		config:   config,
		queue:    queue,
		meta:     meta,
		syncLock: syncLock,
		now:      time.Now,
	}
}

// Status is the connection summary exposed to callers. Connected is strictly
// "status == connected"; a missing account yields the zero value.
type Status struct {
	Connected     bool   `json:"connected"`
	Mode          string `json:"mode,omitempty"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	WabaID        string `json:"wabaId,omitempty"`
	QualityRating string `json:"qualityRating,omitempty"`
}

// AccountDetails is the full account projection.
type AccountDetails struct {
	BusinessID         string     `json:"businessId"`
	WabaID             string     `json:"wabaId"`
	PhoneNumberID      string     `json:"phoneNumberId"`
	DisplayPhoneNumber string     `json:"displayPhoneNumber"`
	VerifiedName       string     `json:"verifiedName"`
	QualityRating      string     `json:"qualityRating"`
	MessagingLimit     string     `json:"messagingLimit"`
	Status             string     `json:"status"`
	Mode               string     `json:"mode"`
	WebhookVerified    bool       `json:"webhookVerified"`
	MessageCount       int64      `json:"messageCount"`
	LastSyncedAt       *time.Time `json:"lastSyncedAt,omitempty"`
	TokenExpiresAt     *time.Time `json:"tokenExpiresAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// PublicConfig carries the values the embedded-signup frontend needs.
type PublicConfig struct {
	AppID       string `json:"appId"`
	ConfigID    string `json:"configId"`
	RedirectURI string `json:"redirectUri"`
}

// SendAck acknowledges that a message was durably enqueued. Delivery happens
// asynchronously through the dispatch queue.
type SendAck struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// APIVersion returns the Graph API version to use for all provider calls.
// Centrally configured, hardcoded fallback; never fails.
func (s *Service) APIVersion() string {
	if v := s.config.GetConfigValue(models.SettingMetaAPIVersion); v != "" {
		return v
	}
	return metaapi.DefaultAPIVersion
}

// EmbeddedSignupURL builds the OAuth dialog URL for a tenant. The tenant id
// rides in `state` so the provider callback can be correlated back without
// server-side session state.
func (s *Service) EmbeddedSignupURL(tenantID string) (string, error) {
	appID := s.config.GetConfigValue(models.SettingMetaAppID)
	if appID == "" {
		return "", &ConfigurationError{Key: models.SettingMetaAppID}
	}
	redirectURI := s.config.GetConfigValue(models.SettingMetaRedirectURI)
	if redirectURI == "" {
		return "", &ConfigurationError{Key: models.SettingMetaRedirectURI}
	}

	return s.meta.DialogURL(s.APIVersion(), appID, redirectURI, tenantID), nil
}

// GetPublicConfig exposes the non-secret provider configuration.
func (s *Service) GetPublicConfig() *PublicConfig {
	return &PublicConfig{
		AppID:       s.config.GetConfigValue(models.SettingMetaAppID),
		ConfigID:    s.config.GetConfigValue(models.SettingMetaConfigID),
		RedirectURI: s.config.GetConfigValue(models.SettingMetaRedirectURI),
	}
}

// GetCredentials resolves the tenant's decrypted credentials, cache first.
// Returns (nil, nil) when the tenant has no connected account -- callers must
// treat absence as a normal state, never an error.
func (s *Service) GetCredentials(tenantID string) (*CachedCredentials, error) {
	if cached, ok := s.creds.Get(tenantID); ok {
		return cached, nil
	}

	account, err := s.accounts.GetByTenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("load account for tenant %s: %w", tenantID, err)
	}
	if account == nil {
		return nil, nil
	}

	token, err := s.box.Decrypt(account.AccessToken)
	if err != nil {
		// Corruption of a stored token must surface loudly, never silently.
		log.Errorf("[WhatsApp] stored access token for tenant %s is unreadable: %v", tenantID, err)
		return nil, err
	}

	creds := &CachedCredentials{
		WabaID:        account.WabaID,
		PhoneNumberID: account.PhoneNumberID,
		AccessToken:   token,
	}

	// Cache population is best-effort; a failed write must not fail the lookup.
	s.creds.Set(tenantID, creds, CredentialTTL)

	return creds, nil
}

// GetStatus derives the connection summary purely from the registry.
func (s *Service) GetStatus(tenantID string) (*Status, error) {
	account, err := s.accounts.GetByTenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("load account for tenant %s: %w", tenantID, err)
	}
	if account == nil {
		return &Status{Connected: false}, nil
	}

	return &Status{
		Connected:     account.IsConnected(),
		Mode:          account.Mode,
		PhoneNumber:   account.DisplayPhoneNumber,
		WabaID:        account.WabaID,
		QualityRating: account.QualityRating,
	}, nil
}

// GetAccountDetails returns the full account projection.
func (s *Service) GetAccountDetails(tenantID string) (*AccountDetails, error) {
	account, err := s.accounts.GetByTenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("load account for tenant %s: %w", tenantID, err)
	}
	if account == nil {
		return nil, ErrNotConnected
	}

	qualityRating := account.QualityRating
	if qualityRating == "" {
		qualityRating = "UNKNOWN"
	}
	messagingLimit := account.MessagingLimit
	if messagingLimit == "" {
		messagingLimit = "UNKNOWN"
	}

	return &AccountDetails{
		BusinessID:         account.BusinessID,
		WabaID:             account.WabaID,
		PhoneNumberID:      account.PhoneNumberID,
		DisplayPhoneNumber: account.DisplayPhoneNumber,
		VerifiedName:       account.VerifiedName,
		QualityRating:      qualityRating,
		MessagingLimit:     messagingLimit,
		Status:             account.Status,
		Mode:               account.Mode,
		WebhookVerified:    account.WebhookVerified,
		MessageCount:       account.MessageCount,
		LastSyncedAt:       account.LastSyncedAt,
		TokenExpiresAt:     account.TokenExpiresAt,
		CreatedAt:          account.CreatedAt,
	}, nil
}

// Disconnect deletes the account record; absence of a row is the canonical
// disconnected state. The cache entry is invalidated as a required side
// effect rather than waiting out the TTL.
func (s *Service) Disconnect(tenantID string) error {
	if err := s.accounts.Delete(tenantID); err != nil {
		return fmt.Errorf("delete account for tenant %s: %w", tenantID, err)
	}
	s.creds.Invalidate(tenantID)
	return nil
}

// SendTestMessage enqueues a fixed template send for the tenant. It returns
// as soon as the job is durable -- this path never blocks on provider I/O.
func (s *Service) SendTestMessage(tenantID, to string) (*SendAck, error) {
	creds, err := s.GetCredentials(tenantID)
	if err != nil {
		return nil, err
	}
	if creds == nil || creds.AccessToken == "" {
		return nil, ErrNotConnected
	}

	payload, err := json.Marshal(map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]interface{}{
			"name":     testMessageTemplate,
			"language": map[string]string{"code": "en_US"},
		},
	})
	if err != nil {
		return nil, err
	}

	// Enqueue with minimal data; the worker re-resolves credentials at
	// dispatch time because the token may rotate while the job waits.
	jobPayload := jobqueue.SendMessageJobPayload{
		TenantID: tenantID,
		To:       to,
		Payload:  payload,
	}
	job, err := s.queue.EnqueueJob(jobqueue.JobTypeSendMessage, jobPayload.ToMap(), jobqueue.Options{
		MaxAttempts: 5,
		BackoffBase: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue test message for tenant %s: %w", tenantID, err)
	}

	return &SendAck{JobID: job.ID, Message: "Message enqueued for delivery"}, nil
}

// DispatchMessage performs the worker-side provider call for a queued job:
// re-resolve credentials (cache or registry), post to the messages edge and
// record the delivery. Errors propagate so the queue can retry.
func (s *Service) DispatchMessage(ctx context.Context, tenantID, to string, payload json.RawMessage) error {
	creds, err := s.GetCredentials(tenantID)
	if err != nil {
		return err
	}
	if creds == nil || creds.AccessToken == "" || creds.PhoneNumberID == "" {
		return fmt.Errorf("%w: tenant %s", ErrNotConnected, tenantID)
	}

	resp, err := s.meta.SendMessage(ctx, s.APIVersion(), creds.PhoneNumberID, creds.AccessToken, payload)
	if err != nil {
		return err
	}

	log.Infof("[WhatsApp] Message sent for tenant %s to %s: %s", tenantID, to, resp.MessageID())
	if err := s.accounts.IncrementMessageCount(tenantID); err != nil {
		log.Warnf("[WhatsApp] failed to bump message count for tenant %s: %v", tenantID, err)
	}
	return nil
}

// IsCorruptedSecret reports whether err stems from an unreadable stored token.
func IsCorruptedSecret(err error) bool {
	return errors.Is(err, secrets.ErrCorruptedSecret)
}
