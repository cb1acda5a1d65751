package models

import "time"

// ShelterPagoparCredential holds a shelter's static Pagopar commerce keys.
// PrivateKey never leaves the server.
type ShelterPagoparCredential struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ShelterID    string  `gorm:"type:varchar(64);uniqueIndex;not null" json:"shelter_id"`
	PublicKey    string  `gorm:"type:varchar(255);not null" json:"public_key"`
	PrivateKey   string  `gorm:"type:varchar(255);not null" json:"-"`
	CommerceName *string `gorm:"type:varchar(255)" json:"commerce_name,omitempty"`
	IsActive     bool    `gorm:"default:true" json:"is_active"`
	WebhookURL   string  `gorm:"type:varchar(500)" json:"webhook_url"`
}
