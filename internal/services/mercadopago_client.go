package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"

	"shelter_app_echo/internal/config"
)

const providerMercadoPago = "mercadopago"

// MercadoPagoAPI is the subset of the Mercado Pago API the payment core uses.
// Every call takes the access token explicitly; no client keeps a credential.
type MercadoPagoAPI interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*MercadoPagoToken, error)
	RefreshToken(ctx context.Context, refreshToken string) (*MercadoPagoToken, error)
	CreatePreference(ctx context.Context, accessToken string, pref MercadoPagoPreference) (*MercadoPagoPreferenceResponse, error)
	GetPayment(ctx context.Context, accessToken, paymentID string) (*MercadoPagoPayment, error)
	GetUser(ctx context.Context, accessToken string) (*MercadoPagoUser, error)
}

// MercadoPagoToken is the result of an authorization code exchange or refresh
type MercadoPagoToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	PublicKey    string
	LiveMode     bool
}

type MercadoPagoItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	CurrencyID string  `json:"currency_id"`
	UnitPrice  float64 `json:"unit_price"`
}

type MercadoPagoPayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type MercadoPagoBackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// MercadoPagoPreference is the checkout preference sent to /checkout/preferences
type MercadoPagoPreference struct {
	Items             []MercadoPagoItem   `json:"items"`
	Payer             *MercadoPagoPayer   `json:"payer,omitempty"`
	BackURLs          MercadoPagoBackURLs `json:"back_urls"`
	AutoReturn        string              `json:"auto_return,omitempty"`
	NotificationURL   string              `json:"notification_url"`
	ExternalReference string              `json:"external_reference"`
	Metadata          map[string]string   `json:"metadata,omitempty"`
}

type MercadoPagoPreferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// MercadoPagoPayment is a payment as returned by GET /v1/payments/{id}
type MercadoPagoPayment struct {
	ID                FlexibleID      `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CurrencyID        string          `json:"currency_id"`
	ExternalReference string          `json:"external_reference"`
	Order             *struct {
		ID FlexibleID `json:"id"`
	} `json:"order"`
	Payer struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"payer"`
	Metadata map[string]interface{} `json:"metadata"`
}

type MercadoPagoUser struct {
	ID       FlexibleID `json:"id"`
	Nickname string     `json:"nickname"`
	Email    string     `json:"email"`
}

// MercadoPagoClient talks to the Mercado Pago REST and OAuth endpoints
type MercadoPagoClient struct {
	cfg        config.MercadoPagoConfig
	httpClient *http.Client
}

func NewMercadoPagoClient(cfg config.MercadoPagoConfig, timeout time.Duration) *MercadoPagoClient {
	return &MercadoPagoClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *MercadoPagoClient) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.cfg.AuthBaseURL + "/authorization",
			TokenURL:  c.cfg.APIBaseURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizeURL builds the consent URL a shelter admin is redirected to
func (c *MercadoPagoClient) AuthorizeURL(state string) string {
	return c.oauthConfig().AuthCodeURL(state, oauth2.SetAuthURLParam("platform_id", "mp"))
}

func (c *MercadoPagoClient) ExchangeCode(ctx context.Context, code string) (*MercadoPagoToken, error) {
	if !c.cfg.OAuthConfigured() {
		return nil, ErrPlatformNotConfigured
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauthConfig().Exchange(ctx, code)
	if err != nil {
		return nil, wrapOAuthError(err)
	}
	return tokenFromOAuth(tok), nil
}

// RefreshToken trades a refresh token for a new access token
func (c *MercadoPagoClient) RefreshToken(ctx context.Context, refreshToken string) (*MercadoPagoToken, error) {
	if !c.cfg.OAuthConfigured() {
		return nil, ErrPlatformNotConfigured
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token stored", ErrProviderRejected)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	// an empty access token forces the source to hit the token endpoint
	src := c.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, wrapOAuthError(err)
	}
	return tokenFromOAuth(tok), nil
}

func (c *MercadoPagoClient) CreatePreference(ctx context.Context, accessToken string, pref MercadoPagoPreference) (*MercadoPagoPreferenceResponse, error) {
	var resp MercadoPagoPreferenceResponse
	if err := providerRequest(ctx, c.httpClient, providerMercadoPago, http.MethodPost, c.cfg.APIBaseURL+"/checkout/preferences", accessToken, pref, &resp); err != nil {
		return nil, err
	}
	if resp.InitPoint == "" && resp.SandboxInitPoint == "" {
		return nil, fmt.Errorf("%w: preference %q has no checkout url", ErrProviderRejected, resp.ID)
	}
	return &resp, nil
}

func (c *MercadoPagoClient) GetPayment(ctx context.Context, accessToken, paymentID string) (*MercadoPagoPayment, error) {
	var payment MercadoPagoPayment
	endpoint := c.cfg.APIBaseURL + "/v1/payments/" + url.PathEscape(paymentID)
	if err := providerRequest(ctx, c.httpClient, providerMercadoPago, http.MethodGet, endpoint, accessToken, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *MercadoPagoClient) GetUser(ctx context.Context, accessToken string) (*MercadoPagoUser, error) {
	var user MercadoPagoUser
	if err := providerRequest(ctx, c.httpClient, providerMercadoPago, http.MethodGet, c.cfg.APIBaseURL+"/users/me", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func tokenFromOAuth(tok *oauth2.Token) *MercadoPagoToken {
	out := &MercadoPagoToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	switch v := tok.Extra("user_id").(type) {
	case float64:
		out.UserID = strconv.FormatInt(int64(v), 10)
	case string:
		out.UserID = v
	}
	if v, ok := tok.Extra("public_key").(string); ok {
		out.PublicKey = v
	}
	if v, ok := tok.Extra("live_mode").(bool); ok {
		out.LiveMode = v
	}
	return out
}

// OAuthFailureReason classifies a failed code exchange for the settings page
type OAuthFailureReason string

const (
	OAuthFailureRedirectURIMismatch OAuthFailureReason = "redirect_uri_mismatch"
	OAuthFailureInvalidClient       OAuthFailureReason = "invalid_client"
	OAuthFailureInvalidGrant        OAuthFailureReason = "invalid_grant"
	OAuthFailureSandboxCredentials  OAuthFailureReason = "sandbox_credentials"
	OAuthFailureUnknown             OAuthFailureReason = "unknown"
)

// OAuthError wraps a token endpoint failure together with its classification
type OAuthError struct {
	Reason OAuthFailureReason
	Err    error
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("mercadopago oauth (%s): %v", e.Reason, e.Err)
}

func (e *OAuthError) Unwrap() error { return e.Err }

func wrapOAuthError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &OAuthError{Reason: OAuthFailureUnknown, Err: fmt.Errorf("%w: %v", ErrProviderUnavailable, err)}
	}

	detail := strings.ToLower(re.ErrorDescription + " " + string(re.Body))
	reason := OAuthFailureUnknown
	switch {
	case strings.Contains(detail, "redirect_uri") || strings.Contains(detail, "redirect uri"):
		reason = OAuthFailureRedirectURIMismatch
	case re.ErrorCode == "invalid_client" || strings.Contains(detail, "invalid_client") || strings.Contains(detail, "client_secret"):
		reason = OAuthFailureInvalidClient
	case re.ErrorCode == "invalid_grant" || strings.Contains(detail, "invalid_grant"):
		reason = OAuthFailureInvalidGrant
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	return &OAuthError{
		Reason: reason,
		Err:    &ProviderError{Provider: providerMercadoPago, StatusCode: status, Body: string(re.Body)},
	}
}

// ExternalReference is embedded in every preference so the webhook can
// recover the owning shelter without a lookup
type ExternalReference struct {
	TenantID       string `json:"tenantId"`
	TargetEntityID string `json:"targetEntityId,omitempty"`
}

func (r ExternalReference) Encode() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// ParseExternalReference decodes a reference; unparseable input yields ok=false
func ParseExternalReference(raw string) (ExternalReference, bool) {
	var ref ExternalReference
	if strings.TrimSpace(raw) == "" {
		return ref, false
	}
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return ExternalReference{}, false
	}
	return ref, ref.TenantID != ""
}
