package models

import "time"

// Slot is a bookable interval for a service with finite capacity.
// SpotsBooked is owned by the availability ledger; readers treat it as advisory.
type Slot struct {
	ID          string    `bson:"id" json:"id"`
	ServiceID   string    `bson:"serviceId" json:"serviceId"`
	Start       time.Time `bson:"start" json:"start"`
	End         time.Time `bson:"end" json:"end"`
	SpotsTotal  int       `bson:"spotsTotal" json:"spotsTotal"`
	SpotsBooked int       `bson:"spotsBooked" json:"spotsBooked"`
	BookingIDs  []string  `bson:"bookingIds,omitempty" json:"-"`
}

// SpotsLeft is the remaining capacity at the time the slot was read.
func (s Slot) SpotsLeft() int {
	return s.SpotsTotal - s.SpotsBooked
}
