package models

import "time"

// BillingMetricsDaily is a once-per-day snapshot of subscription metrics.
type BillingMetricsDaily struct {
	Day               time.Time `gorm:"primaryKey" json:"day"`
	MRRCents          int64     `gorm:"not null;default:0" json:"mrr_cents"`
	ActiveSubscribers int64     `gorm:"not null;default:0" json:"active_subscribers"`
	Trials            int64     `gorm:"not null;default:0" json:"trials"`
	ChurnRate         float64   `gorm:"not null;default:0" json:"churn_rate"`
	ARPACents         int64     `gorm:"not null;default:0" json:"arpa_cents"`
	NewSubs           int64     `gorm:"not null;default:0" json:"new_subs"`
	Cancels           int64     `gorm:"not null;default:0" json:"cancels"`
}

// TableName keeps the singular "daily" suffix used by the schema.
func (BillingMetricsDaily) TableName() string {
	return "billing_metrics_daily"
}
