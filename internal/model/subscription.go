package model

const (
	SubscriptionActive   = "ACTIVE"
	SubscriptionTrialing = "TRIALING"
)

type SubscriptionSnapshot struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

// Expired reports whether the period has ended; a zero end means open ended.
func (s *SubscriptionSnapshot) Expired(now int64) bool {
	return s.CurrentPeriodEnd > 0 && s.CurrentPeriodEnd <= now
}
