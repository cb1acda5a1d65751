package services

import "shelter_app_echo/internal/models"

// MercadoPagoStatus is the closed set of payment statuses Mercado Pago documents
type MercadoPagoStatus string

const (
	MercadoPagoStatusPending     MercadoPagoStatus = "pending"
	MercadoPagoStatusApproved    MercadoPagoStatus = "approved"
	MercadoPagoStatusAuthorized  MercadoPagoStatus = "authorized"
	MercadoPagoStatusInProcess   MercadoPagoStatus = "in_process"
	MercadoPagoStatusInMediation MercadoPagoStatus = "in_mediation"
	MercadoPagoStatusRejected    MercadoPagoStatus = "rejected"
	MercadoPagoStatusCancelled   MercadoPagoStatus = "cancelled"
	MercadoPagoStatusRefunded    MercadoPagoStatus = "refunded"
	MercadoPagoStatusChargedBack MercadoPagoStatus = "charged_back"
)

// DonationStatus maps the provider status onto the ledger status.
// known is false for statuses outside the documented set; those land in
// pending so that nothing is marked paid on a guess.
func (s MercadoPagoStatus) DonationStatus() (status models.DonationStatus, known bool) {
	switch s {
	case MercadoPagoStatusApproved:
		return models.DonationStatusCompleted, true
	case MercadoPagoStatusRefunded, MercadoPagoStatusChargedBack:
		return models.DonationStatusRefunded, true
	case MercadoPagoStatusRejected, MercadoPagoStatusCancelled:
		return models.DonationStatusFailed, true
	case MercadoPagoStatusPending, MercadoPagoStatusAuthorized, MercadoPagoStatusInProcess, MercadoPagoStatusInMediation:
		return models.DonationStatusPending, true
	}
	return models.DonationStatusPending, false
}

// PagoparDonationStatus maps the pagado/cancelado flags of an order.
// pagado wins if both are set.
func PagoparDonationStatus(r PagoparResult) models.DonationStatus {
	switch {
	case r.Pagado:
		return models.DonationStatusCompleted
	case r.Cancelado:
		return models.DonationStatusFailed
	default:
		return models.DonationStatusPending
	}
}
