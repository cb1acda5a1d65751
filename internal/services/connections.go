package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shelter_app_echo/internal/config"
	"shelter_app_echo/internal/models"
)

const oauthStateTTL = 10 * time.Minute

// OAuthState is carried through the Mercado Pago authorize redirect
type OAuthState struct {
	TenantID string `json:"tenantId"`
	Nonce    string `json:"nonce,omitempty"`
}

func (s OAuthState) Encode() string {
	data, _ := json.Marshal(s)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeOAuthState accepts both URL-safe and standard base64, padded or not
func DecodeOAuthState(raw string) (OAuthState, error) {
	var state OAuthState
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return state, fmt.Errorf("%w: empty", ErrInvalidState)
	}

	var data []byte
	var err error
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.StdEncoding} {
		if data, err = enc.DecodeString(raw); err == nil {
			break
		}
	}
	if err != nil {
		return state, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if strings.TrimSpace(state.TenantID) == "" {
		return state, fmt.Errorf("%w: missing tenant", ErrInvalidState)
	}
	return state, nil
}

// PagoparConnectRequest is what a shelter submits to connect Pagopar
type PagoparConnectRequest struct {
	ShelterID    string
	PublicKey    string
	PrivateKey   string
	CommerceName string
}

// MercadoPagoConnection describes a shelter's Mercado Pago link without secrets
type MercadoPagoConnection struct {
	Connected        bool       `json:"connected"`
	UserID           string     `json:"userId,omitempty"`
	Nickname         string     `json:"nickname,omitempty"`
	Email            string     `json:"email,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	OAuthAvailable   bool       `json:"oauthAvailable"`
	PlatformFallback bool       `json:"platformFallback"`
}

// PagoparConnection describes a shelter's Pagopar link without the private key
type PagoparConnection struct {
	Connected    bool   `json:"connected"`
	PublicKey    string `json:"publicKey,omitempty"`
	CommerceName string `json:"commerceName,omitempty"`
	WebhookURL   string `json:"webhookUrl"`
}

type ConnectionStatus struct {
	ShelterID   string                `json:"shelterId"`
	MercadoPago MercadoPagoConnection `json:"mercadopago"`
	Pagopar     PagoparConnection     `json:"pagopar"`
}

// Connections manages how shelters link and unlink their provider accounts
type Connections struct {
	appURL   string
	mpCfg    config.MercadoPagoConfig
	store    *CredentialStore
	mp       MercadoPagoAPI
	states   StateStore
	platform *PlatformCredential
	logger   *zap.Logger
}

// NewConnections builds the service. states may be nil when Redis is absent.
func NewConnections(appURL string, mpCfg config.MercadoPagoConfig, store *CredentialStore, mp MercadoPagoAPI, states StateStore, platform *PlatformCredential, logger *zap.Logger) *Connections {
	return &Connections{
		appURL:   strings.TrimRight(appURL, "/"),
		mpCfg:    mpCfg,
		store:    store,
		mp:       mp,
		states:   states,
		platform: platform,
		logger:   logger,
	}
}

func (c *Connections) PagoparWebhookURL() string {
	return c.appURL + "/webhooks/pagopar"
}

// BeginMercadoPagoConnect returns the authorize URL the shelter admin is sent to
func (c *Connections) BeginMercadoPagoConnect(ctx context.Context, shelterID string) (string, error) {
	if !c.mpCfg.OAuthConfigured() {
		return "", fmt.Errorf("%w: mercadopago client id/secret", ErrPlatformNotConfigured)
	}

	state := OAuthState{TenantID: shelterID, Nonce: uuid.NewString()}
	if c.states != nil {
		if err := c.states.SaveState(ctx, state.Nonce, shelterID, oauthStateTTL); err != nil {
			return "", fmt.Errorf("save oauth state: %w", err)
		}
	} else {
		c.logger.Warn("no state store configured, oauth state nonce will not be checked", zap.String("shelter_id", shelterID))
	}
	return c.mp.AuthorizeURL(state.Encode()), nil
}

// VerifyState decodes the callback state and consumes its nonce
func (c *Connections) VerifyState(ctx context.Context, raw string) (string, error) {
	state, err := DecodeOAuthState(raw)
	if err != nil {
		return "", err
	}
	if c.states == nil {
		return state.TenantID, nil
	}
	if state.Nonce == "" {
		return "", fmt.Errorf("%w: missing nonce", ErrInvalidState)
	}

	shelterID, found, err := c.states.ConsumeState(ctx, state.Nonce)
	if err != nil {
		return "", fmt.Errorf("consume oauth state: %w", err)
	}
	if !found || shelterID != state.TenantID {
		return "", fmt.Errorf("%w: unknown or expired nonce", ErrInvalidState)
	}
	return state.TenantID, nil
}

// CompleteMercadoPagoConnect exchanges the authorization code and stores the
// resulting credential for the shelter
func (c *Connections) CompleteMercadoPagoConnect(ctx context.Context, shelterID, code string) (*models.ShelterMercadoPagoCredential, error) {
	if !c.mpCfg.OAuthConfigured() {
		return nil, fmt.Errorf("%w: mercadopago client id/secret", ErrPlatformNotConfigured)
	}

	log := c.logger.With(zap.String("shelter_id", shelterID))

	tok, err := c.mp.ExchangeCode(ctx, code)
	if err != nil {
		log.Warn("mercadopago code exchange failed", zap.Error(err))
		return nil, err
	}
	if strings.HasPrefix(tok.AccessToken, "TEST-") && !c.mpCfg.AllowSandbox {
		log.Warn("mercadopago returned sandbox credentials")
		return nil, &OAuthError{Reason: OAuthFailureSandboxCredentials, Err: fmt.Errorf("%w: sandbox access token", ErrProviderRejected)}
	}

	cred := &models.ShelterMercadoPagoCredential{
		ShelterID:    shelterID,
		MPUserID:     tok.UserID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
		PublicKey:    optionalString(tok.PublicKey),
	}

	// account details are cosmetic; the connection stands without them
	if user, err := c.mp.GetUser(ctx, tok.AccessToken); err != nil {
		log.Warn("could not load mercadopago account details", zap.Error(err))
	} else {
		if cred.MPUserID == "" {
			cred.MPUserID = user.ID.String()
		}
		cred.Nickname = optionalString(user.Nickname)
		cred.Email = optionalString(user.Email)
	}

	if err := c.store.UpsertMercadoPago(ctx, cred); err != nil {
		return nil, err
	}
	log.Info("mercadopago account connected", zap.String("mp_user_id", cred.MPUserID), zap.Time("expires_at", cred.ExpiresAt))
	return cred, nil
}

func (c *Connections) DisconnectMercadoPago(ctx context.Context, shelterID string) error {
	if err := c.store.DeleteMercadoPago(ctx, shelterID); err != nil {
		return err
	}
	c.logger.Info("mercadopago account disconnected", zap.String("shelter_id", shelterID))
	return nil
}

// ConnectPagopar stores the shelter's Pagopar keys and returns the webhook
// URL the shelter must register in the Pagopar commerce panel
func (c *Connections) ConnectPagopar(ctx context.Context, req PagoparConnectRequest) (*PagoparConnection, error) {
	req.PublicKey = strings.TrimSpace(req.PublicKey)
	req.PrivateKey = strings.TrimSpace(req.PrivateKey)
	if req.ShelterID == "" || req.PublicKey == "" || req.PrivateKey == "" {
		return nil, fmt.Errorf("%w: public and private key are required", ErrInvalidRequest)
	}

	cred := &models.ShelterPagoparCredential{
		ShelterID:    req.ShelterID,
		PublicKey:    req.PublicKey,
		PrivateKey:   req.PrivateKey,
		CommerceName: optionalString(strings.TrimSpace(req.CommerceName)),
		IsActive:     true,
		WebhookURL:   c.PagoparWebhookURL(),
	}
	if err := c.store.UpsertPagopar(ctx, cred); err != nil {
		return nil, err
	}
	c.logger.Info("pagopar account connected", zap.String("shelter_id", req.ShelterID))

	return &PagoparConnection{
		Connected:    true,
		PublicKey:    cred.PublicKey,
		CommerceName: req.CommerceName,
		WebhookURL:   cred.WebhookURL,
	}, nil
}

func (c *Connections) DisconnectPagopar(ctx context.Context, shelterID string) error {
	if err := c.store.DeletePagopar(ctx, shelterID); err != nil {
		return err
	}
	c.logger.Info("pagopar account disconnected", zap.String("shelter_id", shelterID))
	return nil
}

// Status reports both provider connections for a shelter
func (c *Connections) Status(ctx context.Context, shelterID string) (*ConnectionStatus, error) {
	status := &ConnectionStatus{
		ShelterID: shelterID,
		MercadoPago: MercadoPagoConnection{
			OAuthAvailable:   c.mpCfg.OAuthConfigured(),
			PlatformFallback: c.platform != nil,
		},
		Pagopar: PagoparConnection{WebhookURL: c.PagoparWebhookURL()},
	}

	mp, err := c.store.GetMercadoPago(ctx, shelterID)
	if err != nil {
		return nil, err
	}
	if mp != nil {
		expires := mp.ExpiresAt
		status.MercadoPago.Connected = true
		status.MercadoPago.UserID = mp.MPUserID
		status.MercadoPago.ExpiresAt = &expires
		if mp.Nickname != nil {
			status.MercadoPago.Nickname = *mp.Nickname
		}
		if mp.Email != nil {
			status.MercadoPago.Email = *mp.Email
		}
	}

	pp, err := c.store.GetPagopar(ctx, shelterID)
	if err != nil {
		return nil, err
	}
	if pp != nil {
		status.Pagopar.Connected = true
		status.Pagopar.PublicKey = pp.PublicKey
		if pp.CommerceName != nil {
			status.Pagopar.CommerceName = *pp.CommerceName
		}
	}
	return status, nil
}
