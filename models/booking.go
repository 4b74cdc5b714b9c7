package models

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingFailed    BookingStatus = "FAILED"
)

// Terminal reports whether no further lifecycle transition is expected.
func (s BookingStatus) Terminal() bool {
	return s == BookingConfirmed || s == BookingCancelled || s == BookingFailed
}

// ContactDetails are the patient fields captured by the detail step.
type ContactDetails struct {
	Name  string  `bson:"name" json:"name"`
	Email string  `bson:"email" json:"email"`
	Phone *string `bson:"phone,omitempty" json:"phone,omitempty"`
	Notes *string `bson:"notes,omitempty" json:"notes,omitempty"`
}

// Booking represents a reservation of one spot in a slot.
type Booking struct {
	ID             string         `bson:"id" json:"id"`
	ServiceID      string         `bson:"serviceId" json:"serviceId"`
	SlotID         string         `bson:"slotId" json:"slotId"`
	SlotStart      time.Time      `bson:"slotStart" json:"slotStart"`
	SlotEnd        time.Time      `bson:"slotEnd" json:"slotEnd"`
	Timezone       string         `bson:"timezone" json:"timezone"` // IANA zone of the submitting client
	Contact        ContactDetails `bson:"contact" json:"contact"`
	Status         BookingStatus  `bson:"status" json:"status"`
	Amount         float64        `bson:"amount" json:"amount"`
	Currency       string         `bson:"currency" json:"currency"`
	IdempotencyKey string         `bson:"idempotencyKey,omitempty" json:"-"`
	CreatedAt      time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// CreateBookingRequest is the commit-point payload sent to the booking store.
// SlotStart must be RFC3339 with an explicit offset or "Z".
type CreateBookingRequest struct {
	ServiceID string         `json:"serviceId"`
	SlotID    string         `json:"slotId"`
	SlotStart string         `json:"slotStart"`
	Timezone  string         `json:"timezone"`
	Contact   ContactDetails `json:"contact"`

	// IdempotencyKey identifies one submission attempt of one session, so a
	// resubmission after an ambiguous failure does not reserve a second spot.
	IdempotencyKey string `json:"idempotencyKey"`
}

// ParseSlotStart parses a commit-point timestamp. Timestamps without an
// explicit offset are rejected.
func ParseSlotStart(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, WrapSagaError(ErrValidation, "slot start must carry an explicit UTC offset", err)
	}
	return t, nil
}
