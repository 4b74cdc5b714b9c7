package models

import "time"

// Service is a bookable offering of a provider. The saga reads it once per
// session and never mutates it.
type Service struct {
	ID         string        `bson:"id" json:"id"`
	ProviderID string        `bson:"providerId" json:"providerId"`
	Title      string        `bson:"title" json:"title"`
	Duration   time.Duration `bson:"duration" json:"duration"`
	Price      float64       `bson:"price" json:"price"`
	Currency   string        `bson:"currency" json:"currency"`
	Kind       string        `bson:"kind" json:"kind"` // e.g. "session", "workshop", "retreat"
}

// RequiresPayment reports whether a booking for this service goes through the payment gateway.
func (s Service) RequiresPayment() bool {
	return s.Price > 0
}
