package models

import (
	"time"

	"gorm.io/gorm"
)

// ShelterMember links a signed-in user to a shelter they may administer.
// The table belongs to the surrounding application; payments only reads it.
type ShelterMember struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ShelterID string `gorm:"type:varchar(64);index:idx_shelter_members_user_shelter,unique,priority:2" json:"shelter_id"`
	UserUID   string `gorm:"type:varchar(128);index:idx_shelter_members_user_shelter,unique,priority:1" json:"user_uid"`
	Role      string `gorm:"type:varchar(30);default:'admin'" json:"role"`
}
