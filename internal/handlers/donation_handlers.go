package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"shelter_app_echo/internal/models"
	"shelter_app_echo/internal/services"
)

// maxIntentBody caps the public donation request body
const maxIntentBody = 16 << 10

// DonationHandler serves the donor-facing endpoints
type DonationHandler struct {
	initiator *services.DonationInitiator
	sync      *services.PagoparSync
	ledger    *services.Ledger
	logger    *zap.Logger
}

func NewDonationHandler(initiator *services.DonationInitiator, sync *services.PagoparSync, ledger *services.Ledger, logger *zap.Logger) *DonationHandler {
	return &DonationHandler{initiator: initiator, sync: sync, ledger: ledger, logger: logger}
}

type donationRequest struct {
	TenantID       string          `json:"tenantId"`
	TargetEntityID string          `json:"targetEntityId"`
	Amount         json.RawMessage `json:"amount"`
	Currency       string          `json:"currency"`
	DonorName      string          `json:"donorName"`
	DonorEmail     string          `json:"donorEmail"`
	DonorPhone     string          `json:"donorPhone"`
	DonorDocument  string          `json:"donorDocument"`
	PaymentMethod  string          `json:"paymentMethod"`
}

// CreateMercadoPagoDonation handles POST /donations/mercadopago
func (h *DonationHandler) CreateMercadoPagoDonation(c echo.Context) error {
	return h.createIntent(c, models.PaymentProviderMercadoPago)
}

// CreatePagoparDonation handles POST /donations/pagopar
func (h *DonationHandler) CreatePagoparDonation(c echo.Context) error {
	return h.createIntent(c, models.PaymentProviderPagopar)
}

func (h *DonationHandler) createIntent(c echo.Context, provider models.PaymentProvider) error {
	var req donationRequest
	if err := json.NewDecoder(io.LimitReader(c.Request().Body, maxIntentBody)).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" && provider == models.PaymentProviderPagopar {
		currency = "PYG"
	}
	amount, err := parseAmountField(req.Amount, currency)
	if err != nil {
		return err
	}

	result, err := h.initiator.CreateDonationIntent(c.Request().Context(), provider, services.DonationIntent{
		ShelterID: req.TenantID,
		AnimalID:  req.TargetEntityID,
		Amount:    amount,
		Currency:  currency,
		Donor: services.DonorInfo{
			Name:     req.DonorName,
			Email:    req.DonorEmail,
			Phone:    req.DonorPhone,
			Document: req.DonorDocument,
		},
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

var resultOutcomes = map[string]string{
	"success": "Donación recibida",
	"pending": "Donación pendiente",
	"failure": "Donación no completada",
}

// DonationResult renders the page donors land on after checkout
func (h *DonationHandler) DonationResult(c echo.Context) error {
	outcome := c.Param("outcome")
	title, ok := resultOutcomes[outcome]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Page not found")
	}

	reference := c.QueryParam("payment_id")
	if reference == "" {
		reference = c.QueryParam("hash")
	}

	return c.Render(http.StatusOK, "donation_result.html", map[string]interface{}{
		"Title":     title,
		"Outcome":   outcome,
		"Reference": reference,
	})
}

// PagoparStatus handles GET /donations/pagopar/:hash/status. It asks Pagopar
// first and falls back to the stored status when Pagopar cannot answer.
func (h *DonationHandler) PagoparStatus(c echo.Context) error {
	hash := strings.TrimSpace(c.Param("hash"))
	if hash == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid order hash")
	}

	ctx := c.Request().Context()
	donation, err := h.sync.SyncOrder(ctx, hash)
	if err != nil {
		if errors.Is(err, services.ErrDonationNotFound) {
			return err
		}
		h.logger.Warn("pagopar status check failed, using stored status", zap.String("external_payment_id", hash), zap.Error(err))

		donation, err = h.ledger.FindByExternalID(ctx, hash)
		if err != nil {
			return err
		}
		if donation == nil || donation.PaymentMethod != models.PaymentMethodPagopar {
			return services.ErrDonationNotFound
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"externalRef": hash,
		"status":      donation.Status,
		"amount":      donation.Amount,
		"currency":    donation.Currency,
	})
}
