package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shelter_app_echo/internal/models"
)

// ErrDonationNotFound is returned when no donation has the given external id
var ErrDonationNotFound = errors.New("payments: donation not found")

// PagoparSync pulls order state from Pagopar's order query endpoint, for
// donors returning from checkout and for operators sweeping stale orders.
type PagoparSync struct {
	store   *CredentialStore
	ledger  *Ledger
	pagopar PagoparAPI
	logger  *zap.Logger
	now     func() time.Time
}

func NewPagoparSync(store *CredentialStore, ledger *Ledger, pagopar PagoparAPI, logger *zap.Logger, now func() time.Time) *PagoparSync {
	if now == nil {
		now = time.Now
	}
	return &PagoparSync{store: store, ledger: ledger, pagopar: pagopar, logger: logger, now: now}
}

// SyncOrder queries one order and reconciles its state
func (s *PagoparSync) SyncOrder(ctx context.Context, hash string) (*models.Donation, error) {
	donation, err := s.ledger.FindByExternalID(ctx, hash)
	if err != nil {
		return nil, err
	}
	if donation == nil || donation.PaymentMethod != models.PaymentMethodPagopar {
		return nil, fmt.Errorf("%w: %s", ErrDonationNotFound, hash)
	}

	cred, err := s.store.GetPagopar(ctx, donation.ShelterID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, fmt.Errorf("%w: pagopar for shelter %s", ErrProviderNotConfigured, donation.ShelterID)
	}

	order, err := s.pagopar.QueryOrder(ctx, cred.PublicKey, cred.PrivateKey, hash)
	if err != nil {
		return nil, fmt.Errorf("query pagopar order %s: %w", hash, err)
	}
	if order.Result.HashPedido != "" && order.Result.HashPedido != hash {
		return nil, fmt.Errorf("%w: pagopar answered for order %s", ErrProviderRejected, order.Result.HashPedido)
	}

	status := PagoparDonationStatus(order.Result)
	err = s.ledger.Reconcile(ctx, Reconciliation{
		ExternalPaymentID:     hash,
		ExternalTransactionID: order.Result.NumeroPedido.String(),
		ShelterID:             donation.ShelterID,
		Amount:                RoundAmount(order.Result.Monto, pagoparCurrency),
		Currency:              donation.Currency,
		Method:                models.PaymentMethodPagopar,
		Status:                status,
	})
	if err != nil {
		return nil, err
	}

	if status != donation.Status {
		s.logger.Info("pagopar order status changed",
			zap.String("external_payment_id", hash),
			zap.String("from", string(donation.Status)),
			zap.String("to", string(status)))
	}
	return s.ledger.FindByExternalID(ctx, hash)
}

// SyncSummary counts the work done by SyncPending
type SyncSummary struct {
	Checked int
	Changed int
	Failed  int
}

// SyncPending syncs every pending Pagopar donation older than minAge.
// An empty shelterID covers all shelters.
func (s *PagoparSync) SyncPending(ctx context.Context, minAge time.Duration, shelterID string) (SyncSummary, error) {
	var summary SyncSummary

	pending, err := s.ledger.ListPending(ctx, models.PaymentMethodPagopar, s.now().Add(-minAge), shelterID)
	if err != nil {
		return summary, err
	}

	for _, donation := range pending {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Checked++

		updated, err := s.SyncOrder(ctx, *donation.ExternalPaymentID)
		if err != nil {
			summary.Failed++
			s.logger.Warn("pagopar order sync failed",
				zap.String("external_payment_id", *donation.ExternalPaymentID),
				zap.Error(err))
			continue
		}
		if updated != nil && updated.Status != donation.Status {
			summary.Changed++
		}
	}
	return summary, nil
}
