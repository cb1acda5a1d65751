package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentProvider string

const (
	PaymentProviderMercadoPago PaymentProvider = "mercadopago"
	PaymentProviderPagopar     PaymentProvider = "pagopar"
)

// CallbackOutcome records what happened to a received webhook
type CallbackOutcome string

const (
	CallbackOutcomeReconciled   CallbackOutcome = "reconciled"
	CallbackOutcomeIgnored      CallbackOutcome = "ignored"
	CallbackOutcomeUnverifiable CallbackOutcome = "unverifiable"
	CallbackOutcomeRejected     CallbackOutcome = "rejected"
	CallbackOutcomeUnknownOrder CallbackOutcome = "unknown_order"
	CallbackOutcomeError        CallbackOutcome = "error"
)

// PaymentCallbackHistory is an audit row for every webhook call received
type PaymentCallbackHistory struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Provider          PaymentProvider `gorm:"type:varchar(50);not null;index" json:"provider"`
	ExternalPaymentID string          `gorm:"type:varchar(191);index" json:"external_payment_id"`
	ShelterID         string          `gorm:"type:varchar(64)" json:"shelter_id"`
	Outcome           CallbackOutcome `gorm:"type:varchar(30);not null" json:"outcome"`
	Detail            string          `gorm:"type:text" json:"detail"`
	Metadata          datatypes.JSON  `json:"metadata"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}
