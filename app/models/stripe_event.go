package models

import "time"

// StripeEvent is the append-only audit log of verified webhook deliveries.
// Redeliveries of the same provider event produce additional rows.
type StripeEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	StripeEventID   string     `gorm:"size:191;not null;default:'';index" json:"stripe_event_id"`
	Type            string     `gorm:"size:100;not null;index" json:"type"`
	Payload         string     `gorm:"not null" json:"payload"`
	ReceivedAt      time.Time  `gorm:"not null;index" json:"received_at"`
	ProcessedAt     *time.Time `gorm:"default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"size:1000;not null;default:''" json:"processing_error"`
}
