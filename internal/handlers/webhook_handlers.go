package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"shelter_app_echo/internal/models"
	"shelter_app_echo/internal/services"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives provider notifications. Mercado Pago is always
// acknowledged so it stops retrying; Pagopar gets its resultado echoed back.
type WebhookHandler struct {
	mercadopago *services.MercadoPagoWebhooks
	pagopar     *services.PagoparWebhooks
	recorder    *services.CallbackRecorder
	logger      *zap.Logger
}

func NewWebhookHandler(mercadopago *services.MercadoPagoWebhooks, pagopar *services.PagoparWebhooks, recorder *services.CallbackRecorder, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{mercadopago: mercadopago, pagopar: pagopar, recorder: recorder, logger: logger}
}

var mercadoPagoAck = map[string]bool{"received": true}

// Ping answers provider verification requests
func (h *WebhookHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// MercadoPagoWebhook handles POST /webhooks/mercadopago
func (h *WebhookHandler) MercadoPagoWebhook(c echo.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in mercadopago webhook", zap.Any("panic", r), zap.Stack("stack"))
			err = c.JSON(http.StatusOK, mercadoPagoAck)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Could not read body")
	}

	var n services.MercadoPagoNotification
	if len(body) > 0 {
		if err := json.Unmarshal(body, &n); err != nil {
			h.logger.Warn("malformed mercadopago webhook", zap.Error(err))
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		}
	}

	// IPN style notifications carry everything in the query string
	if n.Type == "" && n.Topic == "" {
		n.Type = c.QueryParam("type")
		n.Topic = c.QueryParam("topic")
	}
	if n.Data.ID == "" {
		id := c.QueryParam("data.id")
		if id == "" {
			id = c.QueryParam("id")
		}
		n.Data.ID = services.FlexibleID(id)
	}

	ctx := c.Request().Context()
	result, procErr := h.mercadopago.Process(ctx, n, c.QueryParam("shelter"))
	if procErr != nil {
		h.logger.Error("mercadopago webhook processing failed",
			zap.String("external_payment_id", result.ExternalPaymentID),
			zap.Error(procErr))
	}
	if h.recorder != nil {
		h.recorder.Record(ctx, models.PaymentProviderMercadoPago, result, body)
	}

	return c.JSON(http.StatusOK, mercadoPagoAck)
}

type pagoparWebhookPayload struct {
	Respuesta bool            `json:"respuesta"`
	Resultado json.RawMessage `json:"resultado"`
}

// PagoparWebhook handles POST /webhooks/pagopar. Pagopar expects the
// resultado array back; a bad token gets a 401 and nothing is written.
func (h *WebhookHandler) PagoparWebhook(c echo.Context) (err error) {
	var resultado json.RawMessage
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in pagopar webhook", zap.Any("panic", r), zap.Stack("stack"))
			err = h.echoResultado(c, resultado)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Could not read body")
	}

	var payload pagoparWebhookPayload
	var results []services.PagoparResult
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("malformed pagopar webhook", zap.Error(err))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
	}
	resultado = payload.Resultado
	if err := json.Unmarshal(payload.Resultado, &results); err != nil {
		h.logger.Warn("malformed pagopar resultado", zap.Error(err))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid resultado"})
	}

	ctx := c.Request().Context()
	processed, procErr := h.pagopar.ProcessAll(ctx, results)
	if h.recorder != nil {
		for _, result := range processed {
			h.recorder.Record(ctx, models.PaymentProviderPagopar, result, body)
		}
	}
	if errors.Is(procErr, services.ErrInvalidWebhookToken) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
	}
	if procErr != nil {
		h.logger.Error("pagopar webhook processing failed", zap.Error(procErr))
	}

	return h.echoResultado(c, resultado)
}

func (h *WebhookHandler) echoResultado(c echo.Context, resultado json.RawMessage) error {
	if len(resultado) == 0 {
		resultado = json.RawMessage("[]")
	}
	return c.JSONBlob(http.StatusOK, resultado)
}
