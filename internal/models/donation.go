package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentMethod is how a donation was paid
type PaymentMethod string

const (
	PaymentMethodMercadoPago  PaymentMethod = "mercadopago"
	PaymentMethodPagopar      PaymentMethod = "pagopar"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodOther        PaymentMethod = "other"
)

// DonationStatus is the internal, provider independent payment state
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusCompleted DonationStatus = "completed"
	DonationStatusFailed    DonationStatus = "failed"
	DonationStatusRefunded  DonationStatus = "refunded"
)

// Donation is one row of the donation ledger.
// Rows created by a payment provider are identified by ExternalPaymentID;
// offline donations (cash, bank transfer) leave it NULL.
type Donation struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ShelterID      string          `gorm:"type:varchar(64);index;not null" json:"shelter_id"`
	AnimalID       *string         `gorm:"type:varchar(64);index" json:"animal_id,omitempty"`
	Amount         decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency       string          `gorm:"type:varchar(3);not null" json:"currency"`
	PaymentMethod  PaymentMethod   `gorm:"type:varchar(20);not null" json:"payment_method"`
	Status         DonationStatus  `gorm:"type:varchar(20);index;not null" json:"status"`
	DonorName      *string         `gorm:"type:varchar(255)" json:"donor_name,omitempty"`
	DonorEmail     *string         `gorm:"type:varchar(255)" json:"donor_email,omitempty"`
	DonorPhone     *string         `gorm:"type:varchar(50)" json:"donor_phone,omitempty"`
	Date           datatypes.Date  `json:"date"`

	ExternalPaymentID     *string `gorm:"type:varchar(191);uniqueIndex" json:"external_payment_id,omitempty"`
	ExternalTransactionID *string `gorm:"type:varchar(191)" json:"external_transaction_id,omitempty"`
}
