package models

import "time"

// ShelterMercadoPagoCredential holds the OAuth tokens a shelter granted the
// platform on its Mercado Pago account. One row per shelter.
type ShelterMercadoPagoCredential struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ShelterID    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"shelter_id"`
	MPUserID     string    `gorm:"column:mp_user_id;type:varchar(64)" json:"mp_user_id"`
	AccessToken  string    `gorm:"type:text;not null" json:"-"`
	RefreshToken string    `gorm:"type:text" json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	PublicKey    *string   `gorm:"type:varchar(255)" json:"public_key,omitempty"`
	Nickname     *string   `gorm:"type:varchar(255)" json:"nickname,omitempty"`
	Email        *string   `gorm:"type:varchar(255)" json:"email,omitempty"`
}

// ExpiresWithin reports whether the access token expires in less than d from now
func (c ShelterMercadoPagoCredential) ExpiresWithin(now time.Time, d time.Duration) bool {
	return c.ExpiresAt.Sub(now) < d
}
