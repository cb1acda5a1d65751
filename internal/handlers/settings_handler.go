package handlers

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"shelter_app_echo/internal/services"
)

// SettingsHandler shows a shelter's payment connections
type SettingsHandler struct {
	connections *services.Connections
}

func NewSettingsHandler(connections *services.Connections) *SettingsHandler {
	return &SettingsHandler{connections: connections}
}

// PaymentStatus returns both provider connections as JSON
func (h *SettingsHandler) PaymentStatus(c echo.Context) error {
	status, err := h.connections.Status(c.Request().Context(), c.Param("shelterID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

// PaymentSettingsPage renders the settings page, including the outcome of
// the last connect attempt
func (h *SettingsHandler) PaymentSettingsPage(c echo.Context) error {
	status, err := h.connections.Status(c.Request().Context(), c.Param("shelterID"))
	if err != nil {
		return err
	}

	notice, isError := settingsNotice(c.QueryParams())
	return c.Render(http.StatusOK, "payment_settings.html", map[string]interface{}{
		"Title":         "Pagos",
		"Status":        status,
		"Notice":        notice,
		"NoticeIsError": isError,
	})
}

var tokenExchangeRemediation = map[services.OAuthFailureReason]string{
	services.OAuthFailureRedirectURIMismatch: "La URL de redirección no está registrada en la aplicación de Mercado Pago. Verificá la Redirect URL configurada en el panel de desarrolladores.",
	services.OAuthFailureInvalidClient:       "El client secret de la aplicación de Mercado Pago es incorrecto. Revisá MERCADOPAGO_CLIENT_SECRET.",
	services.OAuthFailureInvalidGrant:        "El código de autorización expiró o ya fue usado. Volvé a conectar la cuenta.",
	services.OAuthFailureSandboxCredentials:  "Las credenciales recibidas son de prueba (sandbox), no de producción. Conectá una cuenta real de Mercado Pago.",
	services.OAuthFailureUnknown:             "Mercado Pago rechazó el intercambio de credenciales. Intentá de nuevo en unos minutos.",
}

var connectRemediation = map[string]string{
	connectErrOAuthDenied:     "Cancelaste la autorización en Mercado Pago. Podés volver a intentarlo cuando quieras.",
	connectErrInvalidCallback: "Mercado Pago devolvió una respuesta incompleta. Volvé a iniciar la conexión.",
	connectErrInvalidState:    "La solicitud de conexión expiró o no es válida. Volvé a iniciar la conexión.",
	connectErrUnauthorized:    "No tenés permisos para administrar los pagos de este refugio.",
	connectErrConfig:          "La aplicación de Mercado Pago de la plataforma no está configurada. Contactá al administrador.",
}

var connectSuccess = map[string]string{
	"mercadopago": "Mercado Pago",
	"pagopar":     "Pagopar",
}

// settingsNotice turns the connect flow's query flags into a message
func settingsNotice(q url.Values) (string, bool) {
	if code := q.Get("error"); code != "" {
		if code == connectErrTokenExchangeFailed {
			reason := services.OAuthFailureReason(q.Get("reason"))
			if msg, ok := tokenExchangeRemediation[reason]; ok {
				return msg, true
			}
			return tokenExchangeRemediation[services.OAuthFailureUnknown], true
		}
		if msg, ok := connectRemediation[code]; ok {
			return msg, true
		}
		return "No se pudo completar la operación.", true
	}
	if name, ok := connectSuccess[q.Get("connected")]; ok {
		return name + " conectado correctamente.", false
	}
	if name, ok := connectSuccess[q.Get("disconnected")]; ok {
		return name + " desconectado.", false
	}
	return "", false
}
