package models

import "time"

// UserProfile holds application-level flags for an identity issued by the
// auth provider. The user id is the provider's subject claim.
type UserProfile struct {
	UserID     string    `gorm:"size:64;primaryKey" json:"user_id"`
	Email      string    `gorm:"size:255;default:''" json:"email"`
	IsAppAdmin bool      `gorm:"default:false" json:"is_app_admin"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
