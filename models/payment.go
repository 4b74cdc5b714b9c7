package models

// PaymentIntent is the gateway's handle for a charge tied 1:1 to a booking.
// It is never persisted by the booking saga.
type PaymentIntent struct {
	ID           string  `json:"id"`
	BookingID    string  `json:"bookingId"`
	ClientSecret string  `json:"clientSecret"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
}

// ExpirePendingPayload is the body of the pending-booking reclamation task.
type ExpirePendingPayload struct {
	BookingID string `json:"bookingId"`
}
