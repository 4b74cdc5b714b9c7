package models

import "time"

// SagaDraft is the durable record of one booking session: enough to resume
// the wizard or compensate a pending booking after a reload or crash.
type SagaDraft struct {
	SessionID          string    `json:"sessionId"`
	Step               string    `json:"step"`
	Service            *Service  `json:"service,omitempty"`
	Slot               *Slot     `json:"slot,omitempty"`
	Availability       []Slot    `json:"availability,omitempty"`
	BookingID          string    `json:"bookingId,omitempty"`
	Booking            *Booking  `json:"booking,omitempty"`
	ClientSecret       string    `json:"clientSecret,omitempty"`
	PaymentSetupFailed bool      `json:"paymentSetupFailed,omitempty"`
	ReleasedBookingID  string    `json:"releasedBookingId,omitempty"`
	Attempt            int       `json:"attempt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}
