package services

import (
	"testing"

	"shelter_app_echo/internal/models"
)

func TestMercadoPagoStatusMapping(t *testing.T) {
	tests := []struct {
		status    string
		want      models.DonationStatus
		wantKnown bool
	}{
		{"approved", models.DonationStatusCompleted, true},
		{"pending", models.DonationStatusPending, true},
		{"authorized", models.DonationStatusPending, true},
		{"in_process", models.DonationStatusPending, true},
		{"in_mediation", models.DonationStatusPending, true},
		{"rejected", models.DonationStatusFailed, true},
		{"cancelled", models.DonationStatusFailed, true},
		{"refunded", models.DonationStatusRefunded, true},
		{"charged_back", models.DonationStatusRefunded, true},
		{"something_new", models.DonationStatusPending, false},
		{"", models.DonationStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got, known := MercadoPagoStatus(tt.status).DonationStatus()
			if got != tt.want || known != tt.wantKnown {
				t.Errorf("DonationStatus(%q) = (%s, %v); want (%s, %v)", tt.status, got, known, tt.want, tt.wantKnown)
			}
		})
	}
}

func TestPagoparDonationStatus(t *testing.T) {
	tests := []struct {
		name      string
		pagado    bool
		cancelado bool
		want      models.DonationStatus
	}{
		{"paid", true, false, models.DonationStatusCompleted},
		{"cancelled", false, true, models.DonationStatusFailed},
		{"neither", false, false, models.DonationStatusPending},
		{"both flags", true, true, models.DonationStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PagoparDonationStatus(PagoparResult{Pagado: tt.pagado, Cancelado: tt.cancelado})
			if got != tt.want {
				t.Errorf("PagoparDonationStatus = %s; want %s", got, tt.want)
			}
		})
	}
}
