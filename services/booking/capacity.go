package booking

import "kuraos/models"

// Availability is the advisory display class of a slot. The ledger makes the
// real accept/reject decision at commit time.
type Availability string

const (
	AvailabilityFull    Availability = "FULL"
	AvailabilityLimited Availability = "LIMITED"
	AvailabilityOpen    Availability = "OPEN"
)

// Classify buckets a slot by remaining spots. FULL slots must not be selectable.
func Classify(slot models.Slot) Availability {
	left := slot.SpotsLeft()
	switch {
	case left <= 0:
		return AvailabilityFull
	case left >= slot.SpotsTotal:
		return AvailabilityOpen
	default:
		return AvailabilityLimited
	}
}

// SlotOption is a slot as presented to the client.
type SlotOption struct {
	models.Slot
	SpotsLeft    int          `json:"spotsLeft"`
	Availability Availability `json:"availability"`
	Selectable   bool         `json:"selectable"`
}

func toSlotOptions(slots []models.Slot) []SlotOption {
	options := make([]SlotOption, 0, len(slots))
	for _, s := range slots {
		class := Classify(s)
		options = append(options, SlotOption{
			Slot:         s,
			SpotsLeft:    max(s.SpotsLeft(), 0),
			Availability: class,
			Selectable:   class != AvailabilityFull,
		})
	}
	return options
}
