package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"shelter_app_echo/internal/models"
)

// WebhookResult summarises how one webhook notification was handled
type WebhookResult struct {
	Outcome           models.CallbackOutcome
	ExternalPaymentID string
	ShelterID         string
	Status            models.DonationStatus
	Detail            string
}

// MercadoPagoNotification is the webhook body Mercado Pago posts.
// Legacy IPN calls use Topic instead of Type.
type MercadoPagoNotification struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID FlexibleID `json:"id"`
	} `json:"data"`
}

func (n MercadoPagoNotification) kind() string {
	if n.Type != "" {
		return n.Type
	}
	return n.Topic
}

// MercadoPagoWebhooks verifies Mercado Pago notifications by re-fetching the
// payment with a trusted credential and reconciles it into the ledger.
// Mercado Pago does not sign webhook bodies; a payment nobody of ours can
// fetch is never written to the ledger.
type MercadoPagoWebhooks struct {
	cascade *CredentialCascade
	ledger  *Ledger
	logger  *zap.Logger
}

func NewMercadoPagoWebhooks(cascade *CredentialCascade, ledger *Ledger, logger *zap.Logger) *MercadoPagoWebhooks {
	return &MercadoPagoWebhooks{cascade: cascade, ledger: ledger, logger: logger}
}

// Process handles one notification. hint is the shelter id carried on the
// notification URL, if any; it only decides which credential is tried first.
func (w *MercadoPagoWebhooks) Process(ctx context.Context, n MercadoPagoNotification, hint string) (WebhookResult, error) {
	paymentID := n.Data.ID.String()
	result := WebhookResult{ExternalPaymentID: paymentID}

	if kind := n.kind(); kind != "payment" {
		result.Outcome = models.CallbackOutcomeIgnored
		result.Detail = fmt.Sprintf("notification type %q", kind)
		return result, nil
	}
	if paymentID == "" {
		result.Outcome = models.CallbackOutcomeIgnored
		result.Detail = "missing payment id"
		return result, nil
	}

	log := w.logger.With(zap.String("external_payment_id", paymentID), zap.String("hint", hint))

	payment, cand, err := w.cascade.FetchPayment(ctx, paymentID, strings.TrimSpace(hint))
	if err != nil {
		if errors.Is(err, ErrPaymentUnverifiable) {
			log.Warn("ignoring unverifiable mercadopago notification")
			result.Outcome = models.CallbackOutcomeUnverifiable
			result.Detail = err.Error()
			return result, nil
		}
		result.Outcome = models.CallbackOutcomeError
		result.Detail = err.Error()
		return result, err
	}

	ref, refOK := ParseExternalReference(payment.ExternalReference)
	shelterID := ""
	if cand.OwnedByShelter() {
		// the account that can see the payment owns it, whatever the reference says
		shelterID = cand.ShelterID
		if refOK && ref.TenantID != shelterID {
			log.Warn("external reference names a different shelter than the fetching account",
				zap.String("reference_shelter_id", ref.TenantID),
				zap.String("shelter_id", shelterID))
		}
	} else if refOK {
		shelterID = ref.TenantID
	}
	if shelterID == "" {
		log.Warn("mercadopago payment has no shelter reference", zap.String("external_reference", payment.ExternalReference))
		result.Outcome = models.CallbackOutcomeIgnored
		result.Detail = "payment carries no shelter reference"
		return result, nil
	}
	result.ShelterID = shelterID

	animalID := ""
	if refOK && ref.TenantID == shelterID {
		animalID = ref.TargetEntityID
	}

	status, known := MercadoPagoStatus(payment.Status).DonationStatus()
	if !known {
		log.Warn("unmapped mercadopago status, recording as pending", zap.String("status", payment.Status))
	}
	result.Status = status

	transactionID := ""
	if payment.Order != nil {
		transactionID = payment.Order.ID.String()
	}

	err = w.ledger.Reconcile(ctx, Reconciliation{
		ExternalPaymentID:     paymentID,
		ExternalTransactionID: transactionID,
		ShelterID:             shelterID,
		AnimalID:              animalID,
		Amount:                RoundAmount(payment.TransactionAmount, payment.CurrencyID),
		Currency:              payment.CurrencyID,
		Method:                models.PaymentMethodMercadoPago,
		Status:                status,
		Donor:                 mercadoPagoDonor(payment),
	})
	if err != nil {
		result.Outcome = models.CallbackOutcomeError
		result.Detail = err.Error()
		return result, err
	}

	log.Info("mercadopago payment reconciled",
		zap.String("shelter_id", shelterID),
		zap.String("provider_status", payment.Status),
		zap.String("status", string(status)),
		zap.String("source", string(cand.Source)))
	result.Outcome = models.CallbackOutcomeReconciled
	return result, nil
}

func mercadoPagoDonor(p *MercadoPagoPayment) DonorInfo {
	donor := DonorInfo{
		Name:  strings.TrimSpace(p.Payer.FirstName + " " + p.Payer.LastName),
		Email: p.Payer.Email,
	}
	if name, ok := p.Metadata["donor_name"].(string); ok && name != "" {
		donor.Name = name
	}
	if email, ok := p.Metadata["donor_email"].(string); ok && email != "" {
		donor.Email = email
	}
	return donor
}

// PagoparWebhooks verifies Pagopar callbacks with the shelter's private key
// and applies them to the pending row created at checkout time.
type PagoparWebhooks struct {
	store  *CredentialStore
	ledger *Ledger
	logger *zap.Logger
}

func NewPagoparWebhooks(store *CredentialStore, ledger *Ledger, logger *zap.Logger) *PagoparWebhooks {
	return &PagoparWebhooks{store: store, ledger: ledger, logger: logger}
}

// Process handles one resultado entry. A token mismatch returns
// ErrInvalidWebhookToken and leaves the ledger untouched.
func (w *PagoparWebhooks) Process(ctx context.Context, r PagoparResult) (WebhookResult, error) {
	results, err := w.ProcessAll(ctx, []PagoparResult{r})
	return results[0], err
}

// ProcessAll verifies every entry of a resultado array before applying any
// of them. One token mismatch rejects the whole call and nothing is written.
func (w *PagoparWebhooks) ProcessAll(ctx context.Context, entries []PagoparResult) ([]WebhookResult, error) {
	results := make([]WebhookResult, len(entries))
	verified := make([]*models.Donation, len(entries))
	var errs []error
	rejected := false
	for i, r := range entries {
		donation, result, err := w.verify(ctx, r)
		results[i], verified[i] = result, donation
		if errors.Is(err, ErrInvalidWebhookToken) {
			rejected = true
		} else if err != nil {
			errs = append(errs, err)
		}
	}

	if rejected {
		for i := range results {
			if verified[i] != nil {
				results[i].Outcome = models.CallbackOutcomeRejected
				results[i].Detail = "another entry failed the token check"
			}
		}
		return results, ErrInvalidWebhookToken
	}

	for i, r := range entries {
		if verified[i] == nil {
			continue
		}
		result, err := w.apply(ctx, r, verified[i], results[i])
		results[i] = result
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// verify finds the pending row for an entry and checks its token. The
// donation is returned only when the entry should be applied.
func (w *PagoparWebhooks) verify(ctx context.Context, r PagoparResult) (*models.Donation, WebhookResult, error) {
	hash := strings.TrimSpace(r.HashPedido)
	result := WebhookResult{ExternalPaymentID: hash}
	if hash == "" {
		result.Outcome = models.CallbackOutcomeIgnored
		result.Detail = "missing hash_pedido"
		return nil, result, nil
	}

	log := w.logger.With(zap.String("external_payment_id", hash))

	donation, err := w.ledger.FindByExternalID(ctx, hash)
	if err != nil {
		result.Outcome = models.CallbackOutcomeError
		result.Detail = err.Error()
		return nil, result, err
	}
	if donation == nil {
		log.Warn("pagopar webhook for unknown order")
		result.Outcome = models.CallbackOutcomeUnknownOrder
		return nil, result, nil
	}
	result.ShelterID = donation.ShelterID

	cred, err := w.store.GetPagopar(ctx, donation.ShelterID)
	if err != nil {
		result.Outcome = models.CallbackOutcomeError
		result.Detail = err.Error()
		return nil, result, err
	}
	if cred == nil {
		log.Warn("pagopar webhook for shelter without pagopar credential", zap.String("shelter_id", donation.ShelterID))
		result.Outcome = models.CallbackOutcomeIgnored
		result.Detail = "shelter has no pagopar credential"
		return nil, result, nil
	}

	expected := PagoparWebhookToken(cred.PrivateKey, hash)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(r.Token)), []byte(expected)) != 1 {
		log.Warn("pagopar webhook token mismatch", zap.String("shelter_id", donation.ShelterID))
		result.Outcome = models.CallbackOutcomeRejected
		result.Detail = "token mismatch"
		return nil, result, ErrInvalidWebhookToken
	}
	return donation, result, nil
}

func (w *PagoparWebhooks) apply(ctx context.Context, r PagoparResult, donation *models.Donation, result WebhookResult) (WebhookResult, error) {
	hash := result.ExternalPaymentID
	log := w.logger.With(zap.String("external_payment_id", hash))

	status := PagoparDonationStatus(r)
	result.Status = status

	err := w.ledger.Reconcile(ctx, Reconciliation{
		ExternalPaymentID:     hash,
		ExternalTransactionID: r.NumeroPedido.String(),
		ShelterID:             donation.ShelterID,
		Amount:                RoundAmount(r.Monto, pagoparCurrency),
		Currency:              donation.Currency,
		Method:                models.PaymentMethodPagopar,
		Status:                status,
	})
	if err != nil {
		result.Outcome = models.CallbackOutcomeError
		result.Detail = err.Error()
		return result, err
	}

	log.Info("pagopar order reconciled",
		zap.String("shelter_id", donation.ShelterID),
		zap.Bool("pagado", r.Pagado),
		zap.Bool("cancelado", r.Cancelado),
		zap.String("forma_pago", r.FormaPago),
		zap.String("status", string(status)))
	result.Outcome = models.CallbackOutcomeReconciled
	return result, nil
}
