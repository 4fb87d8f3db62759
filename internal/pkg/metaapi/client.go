package metaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGraphBaseURL  = "https://graph.facebook.com"
	defaultDialogBaseURL = "https://www.facebook.com"

	// DefaultAPIVersion is the Graph API version used when the config
	// provider has no override.
	DefaultAPIVersion = "v21.0"
)

// APIError carries a non-2xx Graph API response verbatim so operators can
// diagnose provider-side failures without this layer translating them away.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error: status=%d code=%d message=%s", e.Status, e.Code, e.Message)
}

// Client is a thin HTTP client for the Meta Graph API. It performs no retries
// itself; the dispatch queue owns retry policy for sends and callers own it
// for reads.
type Client struct {
	GraphBaseURL  string
	DialogBaseURL string

	HTTPClient *http.Client
}

// NewClient creates a Graph API client with production endpoints.
func NewClient() *Client {
	return &Client{
		GraphBaseURL:  defaultGraphBaseURL,
		DialogBaseURL: defaultDialogBaseURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PhoneNumberInfo is the phone-number metadata refreshed by account sync.
type PhoneNumberInfo struct {
	VerifiedName       string `json:"verified_name"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	QualityRating      string `json:"quality_rating"`
	MessagingLimitTier string `json:"messaging_limit_tier"`
}

// WABAInfo is the WhatsApp Business Account metadata refreshed by account sync.
type WABAInfo struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	TimezoneID               string `json:"timezone_id"`
	MessageTemplateNamespace string `json:"message_template_namespace"`
	AccountReviewStatus      string `json:"account_review_status"`
}

// TokenResponse is the result of an OAuth code or token exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// DebugTokenData describes a token as reported by the debug_token endpoint.
type DebugTokenData struct {
	AppID          string `json:"app_id"`
	IsValid        bool   `json:"is_valid"`
	GranularScopes []struct {
		Scope     string   `json:"scope"`
		TargetIDs []string `json:"target_ids"`
	} `json:"granular_scopes"`
}

// SendResponse is the result of a message send.
type SendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the provider-assigned id of the first accepted message.
func (r *SendResponse) MessageID() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// GetPhoneNumber fetches phone-number metadata for a sync pass.
func (c *Client) GetPhoneNumber(ctx context.Context, apiVersion, phoneNumberID, accessToken string) (*PhoneNumberInfo, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.GraphBaseURL, apiVersion, phoneNumberID)
	query := url.Values{}
	query.Set("fields", "verified_name,display_phone_number,quality_rating,messaging_limit_tier")
	query.Set("access_token", accessToken)

	var out PhoneNumberInfo
	if err := c.getJSON(ctx, endpoint+"?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetWABA fetches WhatsApp Business Account metadata for a sync pass.
func (c *Client) GetWABA(ctx context.Context, apiVersion, wabaID, accessToken string) (*WABAInfo, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.GraphBaseURL, apiVersion, wabaID)
	query := url.Values{}
	query.Set("fields", "id,name,timezone_id,message_template_namespace,account_review_status")
	query.Set("access_token", accessToken)

	var out WABAInfo
	if err := c.getJSON(ctx, endpoint+"?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage posts a message payload to the phone number's messages edge.
func (c *Client) SendMessage(ctx context.Context, apiVersion, phoneNumberID, accessToken string, payload json.RawMessage) (*SendResponse, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.GraphBaseURL, apiVersion, phoneNumberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	var out SendResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	if len(out.Messages) == 0 {
		return nil, errors.New("graph api accepted the send but returned no message id")
	}
	return &out, nil
}

// ExchangeCode exchanges an embedded-signup authorization code for a
// short-lived user access token.
func (c *Client) ExchangeCode(ctx context.Context, apiVersion, appID, appSecret, redirectURI, code string) (*TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oauth code is required")
	}

	endpoint := fmt.Sprintf("%s/%s/oauth/access_token", c.GraphBaseURL, apiVersion)
	query := url.Values{}
	query.Set("client_id", appID)
	query.Set("client_secret", appSecret)
	query.Set("redirect_uri", redirectURI)
	query.Set("code", code)

	var out TokenResponse
	if err := c.getJSON(ctx, endpoint+"?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("token exchange returned empty access_token")
	}
	return &out, nil
}

// ExchangeLongLivedToken trades a short-lived token for a long-lived one.
func (c *Client) ExchangeLongLivedToken(ctx context.Context, apiVersion, appID, appSecret, shortToken string) (*TokenResponse, error) {
	endpoint := fmt.Sprintf("%s/%s/oauth/access_token", c.GraphBaseURL, apiVersion)
	query := url.Values{}
	query.Set("grant_type", "fb_exchange_token")
	query.Set("client_id", appID)
	query.Set("client_secret", appSecret)
	query.Set("fb_exchange_token", shortToken)

	var out TokenResponse
	if err := c.getJSON(ctx, endpoint+"?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("token exchange returned empty access_token")
	}
	return &out, nil
}

// DebugToken inspects a user token using app credentials. The embedded-signup
// flow uses the granular scopes here to discover the WABA the user granted.
func (c *Client) DebugToken(ctx context.Context, apiVersion, appID, appSecret, inputToken string) (*DebugTokenData, error) {
	endpoint := fmt.Sprintf("%s/%s/debug_token", c.GraphBaseURL, apiVersion)
	query := url.Values{}
	query.Set("input_token", inputToken)
	query.Set("access_token", appID+"|"+appSecret)

	var out struct {
		Data DebugTokenData `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint+"?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// FirstPhoneNumber fetches the first phone number registered on a WABA.
func (c *Client) FirstPhoneNumber(ctx context.Context, apiVersion, wabaID, accessToken string) (id, displayNumber string, err error) {
	endpoint := fmt.Sprintf("%s/%s/%s/phone_numbers", c.GraphBaseURL, apiVersion, wabaID)
	query := url.Values{}
	query.Set("access_token", accessToken)

	var out struct {
		Data []struct {
			ID                 string `json:"id"`
			DisplayPhoneNumber string `json:"display_phone_number"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, endpoint+"?"+query.Encode(), &out); err != nil {
		return "", "", err
	}
	if len(out.Data) == 0 {
		return "", "", errors.New("no phone number registered on this WABA")
	}
	return out.Data[0].ID, out.Data[0].DisplayPhoneNumber, nil
}

// DialogURL builds the embedded-signup OAuth dialog URL. `state` carries the
// tenant id so the provider callback can be correlated without server-side
// session state.
func (c *Client) DialogURL(apiVersion, appID, redirectURI, state string) string {
	query := url.Values{}
	query.Set("client_id", appID)
	query.Set("redirect_uri", redirectURI)
	query.Set("scope", "whatsapp_business_management,whatsapp_business_messaging,business_management")
	query.Set("response_type", "code")
	query.Set("state", state)
	return fmt.Sprintf("%s/%s/dialog/oauth?%s", c.DialogBaseURL, apiVersion, query.Encode())
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode graph api response: %w", err)
	}
	return nil
}

func parseAPIError(status int, body []byte) error {
	var wrapped struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Message != "" {
		return &APIError{Status: status, Code: wrapped.Error.Code, Message: wrapped.Error.Message}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
}
