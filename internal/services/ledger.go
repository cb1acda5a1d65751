package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shelter_app_echo/internal/models"
)

// DonorInfo is optional donor contact data. Empty fields are stored as NULL.
type DonorInfo struct {
	Name     string
	Email    string
	Phone    string
	Document string
}

// Reconciliation is one observed provider state for an external payment
type Reconciliation struct {
	ExternalPaymentID     string
	ExternalTransactionID string
	ShelterID             string
	AnimalID              string
	Amount                decimal.Decimal
	Currency              string
	Method                models.PaymentMethod
	Status                models.DonationStatus
	Donor                 DonorInfo
}

// Ledger owns the donation table for provider-originated donations
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedger(db *gorm.DB, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{db: db, now: now}
}

// Reconcile applies r as a single upsert keyed by external_payment_id.
// An existing row only gets status, amount, transaction id and updated_at;
// donor and creation fields are written on insert only. Repeated or
// out-of-order deliveries resolve as last write wins.
func (l *Ledger) Reconcile(ctx context.Context, r Reconciliation) error {
	if strings.TrimSpace(r.ExternalPaymentID) == "" {
		return fmt.Errorf("%w: external payment id is required", ErrInvalidRequest)
	}

	donation := l.newDonation(r)
	updateColumns := []string{"status", "updated_at"}
	if r.Amount.IsPositive() {
		updateColumns = append(updateColumns, "amount")
	}
	if r.ExternalTransactionID != "" {
		updateColumns = append(updateColumns, "external_transaction_id")
	}

	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_payment_id"}},
		DoUpdates: clause.AssignmentColumns(updateColumns),
	}).Create(donation).Error
	if err != nil {
		return fmt.Errorf("reconcile donation %s: %w", r.ExternalPaymentID, err)
	}
	return nil
}

// CreatePending inserts a pending row ahead of payment. An existing row with
// the same external id is left untouched.
func (l *Ledger) CreatePending(ctx context.Context, r Reconciliation) (*models.Donation, error) {
	r.Status = models.DonationStatusPending
	donation := l.newDonation(r)
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_payment_id"}},
		DoNothing: true,
	}).Create(donation).Error
	if err != nil {
		return nil, fmt.Errorf("create pending donation %s: %w", r.ExternalPaymentID, err)
	}
	return l.FindByExternalID(ctx, r.ExternalPaymentID)
}

// FindByExternalID returns the donation for a provider id, or nil
func (l *Ledger) FindByExternalID(ctx context.Context, externalPaymentID string) (*models.Donation, error) {
	var donation models.Donation
	err := l.db.WithContext(ctx).Where("external_payment_id = ?", externalPaymentID).First(&donation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find donation %s: %w", externalPaymentID, err)
	}
	return &donation, nil
}

// ListPending returns pending donations of a payment method created before cutoff.
// An empty shelterID lists all shelters.
func (l *Ledger) ListPending(ctx context.Context, method models.PaymentMethod, cutoff time.Time, shelterID string) ([]models.Donation, error) {
	query := l.db.WithContext(ctx).
		Where("payment_method = ? AND status = ? AND created_at <= ?", method, models.DonationStatusPending, cutoff).
		Where("external_payment_id IS NOT NULL")
	if shelterID != "" {
		query = query.Where("shelter_id = ?", shelterID)
	}

	var donations []models.Donation
	if err := query.Order("created_at asc").Find(&donations).Error; err != nil {
		return nil, fmt.Errorf("list pending donations: %w", err)
	}
	return donations, nil
}

func (l *Ledger) newDonation(r Reconciliation) *models.Donation {
	now := l.now()
	return &models.Donation{
		CreatedAt:             now,
		UpdatedAt:             now,
		ShelterID:             r.ShelterID,
		AnimalID:              optionalString(r.AnimalID),
		Amount:                r.Amount,
		Currency:              strings.ToUpper(r.Currency),
		PaymentMethod:         r.Method,
		Status:                r.Status,
		DonorName:             optionalString(r.Donor.Name),
		DonorEmail:            optionalString(r.Donor.Email),
		DonorPhone:            optionalString(r.Donor.Phone),
		Date:                  datatypes.Date(now),
		ExternalPaymentID:     optionalString(r.ExternalPaymentID),
		ExternalTransactionID: optionalString(r.ExternalTransactionID),
	}
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
