package apiv1

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerostic/aerostic/internal/pkg/metaapi"
	"github.com/aerostic/aerostic/internal/pkg/middleware"
	"github.com/aerostic/aerostic/internal/pkg/whatsapp"
)

type fakeService struct {
	status     *whatsapp.Status
	statusErr  error
	details    *whatsapp.AccountDetails
	detailsErr error
	summary    *whatsapp.SyncSummary
	syncErr    error
	ack        *whatsapp.SendAck
	sendErr    error
	connectErr error

	sentTo       string
	disconnected []string
}

func (f *fakeService) GetStatus(tenantID string) (*whatsapp.Status, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.status != nil {
		return f.status, nil
	}
	return &whatsapp.Status{}, nil
}

func (f *fakeService) GetAccountDetails(tenantID string) (*whatsapp.AccountDetails, error) {
	return f.details, f.detailsErr
}

func (f *fakeService) GetPublicConfig() *whatsapp.PublicConfig {
	return &whatsapp.PublicConfig{AppID: "app-123", RedirectURI: "https://app.example.com/cb"}
}

func (f *fakeService) EmbeddedSignupURL(tenantID string) (string, error) {
	return "https://www.facebook.com/v21.0/dialog/oauth?state=" + tenantID, nil
}

func (f *fakeService) ConnectFromOAuthCode(ctx context.Context, code, tenantID, providedWabaID, providedPhoneNumberID string) error {
	return f.connectErr
}

func (f *fakeService) SyncAccountFromMeta(ctx context.Context, tenantID string) (*whatsapp.SyncSummary, error) {
	return f.summary, f.syncErr
}

func (f *fakeService) SendTestMessage(tenantID, to string) (*whatsapp.SendAck, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sentTo = to
	return f.ack, nil
}

func (f *fakeService) Disconnect(tenantID string) error {
	f.disconnected = append(f.disconnected, tenantID)
	return nil
}

func newTestApp(service IntegrationService) *fiber.App {
	app := fiber.New()
	server := NewAPIServer(service)

	wa := app.Group("/whatsapp", middleware.TenantContext())
	wa.Get("/status", server.GetStatus)
	wa.Get("/account", server.GetAccount)
	wa.Get("/signup-url", server.GetSignupURL)
	wa.Post("/connect", server.PostConnect)
	wa.Post("/sync", server.PostSync)
	wa.Post("/test-message", server.PostTestMessage)
	wa.Delete("/account", server.DeleteAccount)
	app.Get("/config", server.GetConfig)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(middleware.TenantIDHeader, "tenant-1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func TestGetStatus(t *testing.T) {
	service := &fakeService{status: &whatsapp.Status{
		Connected:   true,
		Mode:        "coexistence",
		PhoneNumber: "+49 151 1234567",
		WabaID:      "waba-1",
	}}
	app := newTestApp(service)

	code, body := doRequest(t, app, "GET", "/whatsapp/status", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "waba-1", body["wabaId"])
}

func TestGetAccount_NotConnected(t *testing.T) {
	service := &fakeService{detailsErr: whatsapp.ErrNotConnected}
	app := newTestApp(service)

	code, body := doRequest(t, app, "GET", "/whatsapp/account", "")
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.Equal(t, "not_connected", body["error"])
}

func TestPostSync_ErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedCode  int
		expectedError string
	}{
		{"Sync already running", whatsapp.ErrSyncInProgress, fiber.StatusConflict, "sync_in_progress"},
		{"Not connected", whatsapp.ErrNotConnected, fiber.StatusNotFound, "not_connected"},
		{
			"Missing configuration",
			&whatsapp.ConfigurationError{Key: "meta.app_id"},
			fiber.StatusServiceUnavailable,
			"configuration_missing",
		},
		{
			"Provider failure",
			&whatsapp.SyncError{Stage: "waba", Err: &metaapi.APIError{Status: 500, Message: "boom"}},
			fiber.StatusBadGateway,
			"provider_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeService{syncErr: tt.err})
			code, body := doRequest(t, app, "POST", "/whatsapp/sync", "")
			assert.Equal(t, tt.expectedCode, code)
			assert.Equal(t, tt.expectedError, body["error"])
		})
	}
}

func TestPostTestMessage(t *testing.T) {
	service := &fakeService{ack: &whatsapp.SendAck{JobID: "job-1", Message: "Message enqueued for delivery"}}
	app := newTestApp(service)

	code, body := doRequest(t, app, "POST", "/whatsapp/test-message", `{"to":"+4915112345678"}`)
	assert.Equal(t, fiber.StatusAccepted, code)
	assert.Equal(t, "job-1", body["jobId"])
	assert.Equal(t, "+4915112345678", service.sentTo)
}

func TestPostTestMessage_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"Missing to", `{}`},
		{"Not E164", `{"to":"0151 1234567"}`},
		{"Invalid JSON", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeService{})
			code, body := doRequest(t, app, "POST", "/whatsapp/test-message", tt.body)
			assert.Equal(t, fiber.StatusBadRequest, code)
			assert.Equal(t, "bad_request", body["error"])
		})
	}
}

func TestPostTestMessage_NotConnected(t *testing.T) {
	app := newTestApp(&fakeService{sendErr: whatsapp.ErrNotConnected})

	code, body := doRequest(t, app, "POST", "/whatsapp/test-message", `{"to":"+4915112345678"}`)
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.Equal(t, "not_connected", body["error"])
}

func TestPostConnect_RequiresCode(t *testing.T) {
	app := newTestApp(&fakeService{})

	code, body := doRequest(t, app, "POST", "/whatsapp/connect", `{"wabaId":"waba-1"}`)
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.Equal(t, "bad_request", body["error"])
}

func TestPostConnect(t *testing.T) {
	service := &fakeService{status: &whatsapp.Status{Connected: true}}
	app := newTestApp(service)

	code, body := doRequest(t, app, "POST", "/whatsapp/connect", `{"code":"auth-code"}`)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, true, body["connected"])
}

func TestDeleteAccount(t *testing.T) {
	service := &fakeService{}
	app := newTestApp(service)

	code, _ := doRequest(t, app, "DELETE", "/whatsapp/account", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, []string{"tenant-1"}, service.disconnected)
}

func TestGetSignupURL(t *testing.T) {
	app := newTestApp(&fakeService{})

	code, body := doRequest(t, app, "GET", "/whatsapp/signup-url", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, body["url"], "state=tenant-1")
}

func TestGetConfig(t *testing.T) {
	app := newTestApp(&fakeService{})

	req := httptest.NewRequest("GET", "/config", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "app-123", body["appId"])
}
