package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shelter_app_echo/internal/models"
)

const pagoparCurrency = "PYG"

// DonationIntent is a donor's request to pay a shelter
type DonationIntent struct {
	ShelterID string
	AnimalID  string
	Amount    decimal.Decimal
	Currency  string
	Donor     DonorInfo
	// PaymentMethod optionally preselects a Pagopar payment method (forma_pago)
	PaymentMethod string
}

// IntentResult tells the caller where to send the donor
type IntentResult struct {
	RedirectURL string `json:"redirectUrl"`
	ExternalRef string `json:"externalRef,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
}

// DonationInitiator creates payable checkouts on the providers
type DonationInitiator struct {
	appURL   string
	tokens   *TokenManager
	platform *PlatformCredential
	mp       MercadoPagoAPI
	store    *CredentialStore
	pagopar  PagoparAPI
	ledger   *Ledger
	logger   *zap.Logger
	now      func() time.Time

	// orderNonce separates orders created in the same millisecond
	orderNonce func() uint32
}

func NewDonationInitiator(appURL string, tokens *TokenManager, platform *PlatformCredential, mp MercadoPagoAPI, store *CredentialStore, pagopar PagoparAPI, ledger *Ledger, logger *zap.Logger, now func() time.Time) *DonationInitiator {
	if now == nil {
		now = time.Now
	}
	return &DonationInitiator{
		appURL:   strings.TrimRight(appURL, "/"),
		tokens:   tokens,
		platform: platform,
		mp:       mp,
		store:    store,
		pagopar:  pagopar,
		ledger:   ledger,
		logger:   logger,
		now:      now,

		orderNonce: func() uint32 { return uuid.New().ID() },
	}
}

// pagoparOrderID is the creation time in milliseconds followed by six
// random digits
func pagoparOrderID(now time.Time, nonce uint32) string {
	return fmt.Sprintf("%d%06d", now.UnixMilli(), nonce%1000000)
}

// CreateDonationIntent dispatches to the provider's checkout flow
func (d *DonationInitiator) CreateDonationIntent(ctx context.Context, provider models.PaymentProvider, in DonationIntent) (*IntentResult, error) {
	switch provider {
	case models.PaymentProviderMercadoPago:
		return d.CreateMercadoPagoIntent(ctx, in)
	case models.PaymentProviderPagopar:
		return d.CreatePagoparIntent(ctx, in)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

// CreateMercadoPagoIntent creates a checkout preference with the shelter's
// credential, or the platform credential when the shelter has none. No
// donation row is written; the webhook creates it.
func (d *DonationInitiator) CreateMercadoPagoIntent(ctx context.Context, in DonationIntent) (*IntentResult, error) {
	if err := validateIntent(&in); err != nil {
		return nil, err
	}
	if in.Currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInvalidRequest)
	}

	accessToken := ""
	cred, err := d.tokens.ResolveValidCredential(ctx, in.ShelterID)
	if err != nil {
		return nil, err
	}
	if cred != nil {
		accessToken = cred.AccessToken
	} else if d.platform != nil {
		d.logger.Info("shelter has no mercadopago account, using platform credential", zap.String("shelter_id", in.ShelterID))
		accessToken = d.platform.AccessToken
	} else {
		return nil, fmt.Errorf("%w: mercadopago for shelter %s", ErrProviderNotConfigured, in.ShelterID)
	}

	title := "Donación"
	if in.AnimalID != "" {
		title = "Donación para animal " + in.AnimalID
	}

	pref := MercadoPagoPreference{
		Items: []MercadoPagoItem{{
			ID:         "donation-" + in.ShelterID,
			Title:      title,
			Quantity:   1,
			CurrencyID: in.Currency,
			// already rounded to minor units, so the float is exact enough for JSON
			UnitPrice: in.Amount.InexactFloat64(),
		}},
		BackURLs: MercadoPagoBackURLs{
			Success: d.appURL + "/donations/result/success",
			Failure: d.appURL + "/donations/result/failure",
			Pending: d.appURL + "/donations/result/pending",
		},
		AutoReturn:        "approved",
		NotificationURL:   d.appURL + "/webhooks/mercadopago?shelter=" + url.QueryEscape(in.ShelterID),
		ExternalReference: ExternalReference{TenantID: in.ShelterID, TargetEntityID: in.AnimalID}.Encode(),
		Metadata: map[string]string{
			"shelter_id":  in.ShelterID,
			"donor_name":  in.Donor.Name,
			"donor_email": in.Donor.Email,
		},
	}
	if in.Donor.Name != "" || in.Donor.Email != "" {
		pref.Payer = &MercadoPagoPayer{Name: in.Donor.Name, Email: in.Donor.Email}
	}

	resp, err := d.mp.CreatePreference(ctx, accessToken, pref)
	if err != nil {
		d.logger.Error("mercadopago preference creation failed", zap.String("shelter_id", in.ShelterID), zap.Error(err))
		return nil, fmt.Errorf("create mercadopago preference: %w", err)
	}

	redirect := resp.InitPoint
	if redirect == "" {
		redirect = resp.SandboxInitPoint
	}
	d.logger.Info("mercadopago preference created",
		zap.String("shelter_id", in.ShelterID),
		zap.String("preference_id", resp.ID),
		zap.String("amount", in.Amount.String()))

	return &IntentResult{RedirectURL: redirect, ExternalRef: resp.ID}, nil
}

// CreatePagoparIntent starts a Pagopar transaction and records a pending
// donation keyed by the returned order hash before the donor is redirected.
func (d *DonationInitiator) CreatePagoparIntent(ctx context.Context, in DonationIntent) (*IntentResult, error) {
	if in.Currency == "" {
		in.Currency = pagoparCurrency
	}
	if !strings.EqualFold(in.Currency, pagoparCurrency) {
		return nil, fmt.Errorf("%w: pagopar only accepts %s", ErrInvalidRequest, pagoparCurrency)
	}
	if err := validateIntent(&in); err != nil {
		return nil, err
	}
	donor := in.Donor
	if donor.Name == "" || donor.Email == "" || donor.Phone == "" || donor.Document == "" {
		return nil, fmt.Errorf("%w: pagopar requires name, email, phone and document", ErrInvalidDonor)
	}

	cred, err := d.store.GetPagopar(ctx, in.ShelterID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, fmt.Errorf("%w: pagopar for shelter %s", ErrProviderNotConfigured, in.ShelterID)
	}

	now := d.now()
	orderID := pagoparOrderID(now, d.orderNonce())
	description := "Donación"
	if in.AnimalID != "" {
		description = "Donación para animal " + in.AnimalID
	}

	tx := PagoparTransaction{
		Token:       PagoparOrderToken(cred.PrivateKey, orderID, in.Amount),
		PublicKey:   cred.PublicKey,
		TotalAmount: in.Amount.InexactFloat64(),
		OrderType:   "VENTA-COMERCIO",
		Items: []PagoparItem{{
			City:        "1",
			Name:        description,
			Quantity:    1,
			Category:    "909",
			PublicKey:   cred.PublicKey,
			Description: description,
			ProductID:   "1",
			TotalPrice:  in.Amount.InexactFloat64(),
		}},
		PaymentDeadline: now.Add(48 * time.Hour).In(asuncion()).Format("2006-01-02 15:04:05"),
		OrderID:         orderID,
		Description:     description,
		Buyer: PagoparBuyer{
			Name:         donor.Name,
			Email:        donor.Email,
			Phone:        donor.Phone,
			Document:     donor.Document,
			DocumentType: "CI",
		},
	}

	res, err := d.pagopar.InitiateTransaction(ctx, tx)
	if err != nil {
		d.logger.Error("pagopar transaction creation failed", zap.String("shelter_id", in.ShelterID), zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("create pagopar transaction: %w", err)
	}

	// Pagopar has no reference field, so the row must exist before its webhook arrives
	_, err = d.ledger.CreatePending(ctx, Reconciliation{
		ExternalPaymentID:     res.Hash,
		ExternalTransactionID: orderID,
		ShelterID:             in.ShelterID,
		AnimalID:              in.AnimalID,
		Amount:                in.Amount,
		Currency:              pagoparCurrency,
		Method:                models.PaymentMethodPagopar,
		Donor:                 donor,
	})
	if err != nil {
		d.logger.Error("failed to record pending pagopar donation", zap.String("hash", res.Hash), zap.Error(err))
		return nil, err
	}

	d.logger.Info("pagopar transaction created",
		zap.String("shelter_id", in.ShelterID),
		zap.String("external_payment_id", res.Hash),
		zap.String("order_id", orderID),
		zap.String("amount", in.Amount.String()))

	return &IntentResult{
		RedirectURL: d.pagopar.CheckoutURL(res.Hash, in.PaymentMethod),
		ExternalRef: res.Hash,
		OrderID:     orderID,
	}, nil
}

func validateIntent(in *DonationIntent) error {
	in.ShelterID = strings.TrimSpace(in.ShelterID)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.ShelterID == "" {
		return fmt.Errorf("%w: shelter id is required", ErrInvalidRequest)
	}
	amount, err := ValidateAmount(in.Amount, in.Currency)
	if err != nil {
		return err
	}
	in.Amount = amount
	return nil
}

func asuncion() *time.Location {
	loc, err := time.LoadLocation("America/Asuncion")
	if err != nil {
		return time.UTC
	}
	return loc
}
