package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"shelter_app_echo/internal/models"
)

// ShelterAuthorizer decides whether a signed-in user may manage a shelter's
// payment settings
type ShelterAuthorizer interface {
	CanManageShelter(ctx context.Context, userUID, shelterID string) (bool, error)
}

// MembershipAuthorizer grants access to users listed in shelter_members
type MembershipAuthorizer struct {
	db *gorm.DB
}

func NewMembershipAuthorizer(db *gorm.DB) *MembershipAuthorizer {
	return &MembershipAuthorizer{db: db}
}

func (a *MembershipAuthorizer) CanManageShelter(ctx context.Context, userUID, shelterID string) (bool, error) {
	if userUID == "" || shelterID == "" {
		return false, nil
	}
	var count int64
	err := a.db.WithContext(ctx).Model(&models.ShelterMember{}).
		Where("user_uid = ? AND shelter_id = ?", userUID, shelterID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check shelter membership: %w", err)
	}
	return count > 0, nil
}
