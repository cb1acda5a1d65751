package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"shelter_app_echo/internal/models"
)

// CallbackRecorder writes the webhook audit trail. Failures are logged only.
type CallbackRecorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewCallbackRecorder(db *gorm.DB, logger *zap.Logger) *CallbackRecorder {
	return &CallbackRecorder{db: db, logger: logger}
}

func (r *CallbackRecorder) Record(ctx context.Context, provider models.PaymentProvider, result WebhookResult, payload []byte) {
	var metadata datatypes.JSON
	if json.Valid(payload) {
		metadata = datatypes.JSON(payload)
	} else if len(payload) > 0 {
		quoted, _ := json.Marshal(string(payload))
		metadata = datatypes.JSON(quoted)
	}

	entry := models.PaymentCallbackHistory{
		Provider:          provider,
		ExternalPaymentID: result.ExternalPaymentID,
		ShelterID:         result.ShelterID,
		Outcome:           result.Outcome,
		Detail:            result.Detail,
		Metadata:          metadata,
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		r.logger.Error("failed to record payment callback",
			zap.String("provider", string(provider)),
			zap.String("external_payment_id", result.ExternalPaymentID),
			zap.Error(err))
	}
}
