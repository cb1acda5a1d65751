package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shelter_app_echo/internal/models"
)

// CredentialStore persists per-shelter provider credentials.
// Writes are single-row upserts keyed by shelter_id.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// GetMercadoPago returns the shelter's credential, or nil if none is stored
func (s *CredentialStore) GetMercadoPago(ctx context.Context, shelterID string) (*models.ShelterMercadoPagoCredential, error) {
	var cred models.ShelterMercadoPagoCredential
	err := s.db.WithContext(ctx).Where("shelter_id = ?", shelterID).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load mercadopago credential for %s: %w", shelterID, err)
	}
	return &cred, nil
}

// ListMercadoPago returns every stored credential, ordered by shelter
func (s *CredentialStore) ListMercadoPago(ctx context.Context) ([]models.ShelterMercadoPagoCredential, error) {
	var creds []models.ShelterMercadoPagoCredential
	if err := s.db.WithContext(ctx).Order("shelter_id asc").Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("list mercadopago credentials: %w", err)
	}
	return creds, nil
}

func (s *CredentialStore) UpsertMercadoPago(ctx context.Context, cred *models.ShelterMercadoPagoCredential) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shelter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"mp_user_id", "access_token", "refresh_token", "expires_at",
			"public_key", "nickname", "email", "updated_at",
		}),
	}).Create(cred).Error
	if err != nil {
		return fmt.Errorf("upsert mercadopago credential for %s: %w", cred.ShelterID, err)
	}
	return nil
}

// UpdateMercadoPagoTokens stores the result of a token refresh
func (s *CredentialStore) UpdateMercadoPagoTokens(ctx context.Context, shelterID string, tok *MercadoPagoToken, now time.Time) error {
	updates := map[string]interface{}{
		"access_token": tok.AccessToken,
		"expires_at":   tok.ExpiresAt,
		"updated_at":   now,
	}
	if tok.RefreshToken != "" {
		updates["refresh_token"] = tok.RefreshToken
	}
	err := s.db.WithContext(ctx).Model(&models.ShelterMercadoPagoCredential{}).
		Where("shelter_id = ?", shelterID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("update mercadopago tokens for %s: %w", shelterID, err)
	}
	return nil
}

func (s *CredentialStore) DeleteMercadoPago(ctx context.Context, shelterID string) error {
	if err := s.db.WithContext(ctx).Where("shelter_id = ?", shelterID).Delete(&models.ShelterMercadoPagoCredential{}).Error; err != nil {
		return fmt.Errorf("delete mercadopago credential for %s: %w", shelterID, err)
	}
	return nil
}

// GetPagopar returns the shelter's active Pagopar keys, or nil
func (s *CredentialStore) GetPagopar(ctx context.Context, shelterID string) (*models.ShelterPagoparCredential, error) {
	var cred models.ShelterPagoparCredential
	err := s.db.WithContext(ctx).Where("shelter_id = ? AND is_active = ?", shelterID, true).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load pagopar credential for %s: %w", shelterID, err)
	}
	return &cred, nil
}

func (s *CredentialStore) UpsertPagopar(ctx context.Context, cred *models.ShelterPagoparCredential) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shelter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"public_key", "private_key", "commerce_name", "is_active", "webhook_url", "updated_at",
		}),
	}).Create(cred).Error
	if err != nil {
		return fmt.Errorf("upsert pagopar credential for %s: %w", cred.ShelterID, err)
	}
	return nil
}

func (s *CredentialStore) DeletePagopar(ctx context.Context, shelterID string) error {
	if err := s.db.WithContext(ctx).Where("shelter_id = ?", shelterID).Delete(&models.ShelterPagoparCredential{}).Error; err != nil {
		return fmt.Errorf("delete pagopar credential for %s: %w", shelterID, err)
	}
	return nil
}
