package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"shelter_app_echo/internal/services"
)

// Connection error codes passed back to the settings page
const (
	connectErrOAuthDenied         = "oauth_denied"
	connectErrInvalidCallback     = "invalid_callback"
	connectErrInvalidState        = "invalid_state"
	connectErrUnauthorized        = "unauthorized"
	connectErrConfig              = "config_error"
	connectErrTokenExchangeFailed = "token_exchange_failed"
)

// ConnectHandler links and unlinks shelter provider accounts
type ConnectHandler struct {
	connections *services.Connections
	authz       services.ShelterAuthorizer
	logger      *zap.Logger
}

func NewConnectHandler(connections *services.Connections, authz services.ShelterAuthorizer, logger *zap.Logger) *ConnectHandler {
	return &ConnectHandler{connections: connections, authz: authz, logger: logger}
}

func redirectWithError(c echo.Context, shelterID, code string, reason services.OAuthFailureReason) error {
	params := url.Values{"error": {code}}
	if reason != "" {
		params.Set("reason", string(reason))
	}
	return c.Redirect(http.StatusFound, settingsURL(shelterID, params))
}

// MercadoPagoConnect sends the admin to Mercado Pago's authorization page
func (h *ConnectHandler) MercadoPagoConnect(c echo.Context) error {
	shelterID := c.Param("shelterID")
	authURL, err := h.connections.BeginMercadoPagoConnect(c.Request().Context(), shelterID)
	if err != nil {
		if errors.Is(err, services.ErrPlatformNotConfigured) {
			return redirectWithError(c, shelterID, connectErrConfig, "")
		}
		return err
	}
	return c.Redirect(http.StatusFound, authURL)
}

// MercadoPagoCallback completes the OAuth flow. The shelter comes from the
// state parameter, so access is checked here rather than by route middleware.
func (h *ConnectHandler) MercadoPagoCallback(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.QueryParam("code")
	rawState := c.QueryParam("state")

	// best-effort destination for early failures; trusted only after VerifyState
	destination := ""
	if state, err := services.DecodeOAuthState(rawState); err == nil {
		destination = state.TenantID
	}

	if c.QueryParam("error") != "" {
		h.logger.Info("mercadopago authorization denied",
			zap.String("error", c.QueryParam("error")),
			zap.String("shelter_id", destination))
		return redirectWithError(c, destination, connectErrOAuthDenied, "")
	}
	if code == "" || rawState == "" {
		return redirectWithError(c, destination, connectErrInvalidCallback, "")
	}

	shelterID, err := h.connections.VerifyState(ctx, rawState)
	if err != nil {
		h.logger.Warn("rejected mercadopago oauth state", zap.Error(err))
		return redirectWithError(c, "", connectErrInvalidState, "")
	}

	userUID := getStringFromContext(c, "userUID")
	allowed := false
	if h.authz != nil {
		allowed, err = h.authz.CanManageShelter(ctx, userUID, shelterID)
		if err != nil {
			return err
		}
	}
	if !allowed {
		h.logger.Warn("oauth callback by user without shelter access",
			zap.String("shelter_id", shelterID),
			zap.String("user_uid", userUID))
		return redirectWithError(c, shelterID, connectErrUnauthorized, "")
	}

	if _, err := h.connections.CompleteMercadoPagoConnect(ctx, shelterID, code); err != nil {
		if errors.Is(err, services.ErrPlatformNotConfigured) {
			return redirectWithError(c, shelterID, connectErrConfig, "")
		}
		reason := services.OAuthFailureUnknown
		var oauthErr *services.OAuthError
		if errors.As(err, &oauthErr) {
			reason = oauthErr.Reason
		}
		return redirectWithError(c, shelterID, connectErrTokenExchangeFailed, reason)
	}

	return c.Redirect(http.StatusFound, settingsURL(shelterID, url.Values{"connected": {"mercadopago"}}))
}

type pagoparConnectRequest struct {
	PublicKey    string `json:"publicKey" form:"publicKey"`
	PrivateKey   string `json:"privateKey" form:"privateKey"`
	CommerceName string `json:"commerceName" form:"commerceName"`
}

// PagoparConnect stores the shelter's Pagopar keys
func (h *ConnectHandler) PagoparConnect(c echo.Context) error {
	shelterID := c.Param("shelterID")

	var req pagoparConnectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	conn, err := h.connections.ConnectPagopar(c.Request().Context(), services.PagoparConnectRequest{
		ShelterID:    shelterID,
		PublicKey:    req.PublicKey,
		PrivateKey:   req.PrivateKey,
		CommerceName: req.CommerceName,
	})
	if err != nil {
		return err
	}

	if isFormPost(c) {
		return c.Redirect(http.StatusSeeOther, settingsURL(shelterID, url.Values{"connected": {"pagopar"}}))
	}
	return c.JSON(http.StatusOK, conn)
}

// MercadoPagoDisconnect removes the shelter's Mercado Pago tokens
func (h *ConnectHandler) MercadoPagoDisconnect(c echo.Context) error {
	shelterID := c.Param("shelterID")
	if err := h.connections.DisconnectMercadoPago(c.Request().Context(), shelterID); err != nil {
		return err
	}
	return h.disconnected(c, shelterID, "mercadopago")
}

// PagoparDisconnect removes the shelter's Pagopar keys
func (h *ConnectHandler) PagoparDisconnect(c echo.Context) error {
	shelterID := c.Param("shelterID")
	if err := h.connections.DisconnectPagopar(c.Request().Context(), shelterID); err != nil {
		return err
	}
	return h.disconnected(c, shelterID, "pagopar")
}

func (h *ConnectHandler) disconnected(c echo.Context, shelterID, provider string) error {
	if isFormPost(c) {
		return c.Redirect(http.StatusSeeOther, settingsURL(shelterID, url.Values{"disconnected": {provider}}))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "disconnected", "provider": provider})
}
