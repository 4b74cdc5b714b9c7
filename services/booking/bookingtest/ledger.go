// Package bookingtest provides in-memory collaborators for exercising the
// booking saga without MongoDB, Redis or Stripe.
package bookingtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kuraos/models"
)

// Ledger is an in-memory service catalog, availability ledger and booking
// store. CreateBooking checks and increments capacity under one lock, the same
// guarantee the Mongo store gets from its conditional update.
type Ledger struct {
	mu       sync.Mutex
	services map[string]models.Service
	slots    map[string]*models.Slot
	bookings map[string]*models.Booking
	seq      int

	// Injected failures; each is returned once and then cleared.
	CreateErr  error
	CancelErr  error
	ListErr    error
	ConfirmErr error

	// AfterCreate runs after a booking is stored, before CreateBooking returns.
	// Tests use it to simulate a response lost on the way back.
	AfterCreate func(*models.Booking) error

	// FreeAsPending stores zero-price bookings as PENDING, leaving their
	// confirmation to MarkConfirmed.
	FreeAsPending bool

	CreateCalls int
	CancelCalls int
	Now         func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		services: make(map[string]models.Service),
		slots:    make(map[string]*models.Slot),
		bookings: make(map[string]*models.Booking),
		Now:      time.Now,
	}
}

func (l *Ledger) AddService(s models.Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services[s.ID] = s
}

func (l *Ledger) AddSlot(s models.Slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := s
	l.slots[s.ID] = &cp
}

// Slot returns the ledger's current view of a slot.
func (l *Ledger) Slot(id string) models.Slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, found := l.slots[id]; found {
		return *s
	}
	return models.Slot{}
}

// Booking returns a copy of a stored booking.
func (l *Ledger) Booking(id string) (models.Booking, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, found := l.bookings[id]
	if !found {
		return models.Booking{}, false
	}
	return *b, true
}

// Bookings returns every stored booking with the given status.
func (l *Ledger) Bookings(status models.BookingStatus) []models.Booking {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Booking
	for _, b := range l.bookings {
		if b.Status == status {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Ledger) ListServices(ctx context.Context, providerID string) ([]models.Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Service
	for _, s := range l.services {
		if providerID == "" || s.ProviderID == providerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *Ledger) GetService(ctx context.Context, serviceID string) (*models.Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, found := l.services[serviceID]
	if !found {
		return nil, models.NewSagaError(models.ErrServiceNotFound, "service not found")
	}
	return &s, nil
}

func (l *Ledger) ListSlots(ctx context.Context, serviceID string, from, to time.Time) ([]models.Slot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := take(&l.ListErr); err != nil {
		return nil, err
	}
	var out []models.Slot
	for _, s := range l.slots {
		if s.ServiceID != serviceID || s.Start.Before(from) || !s.Start.Before(to) {
			continue
		}
		cp := *s
		cp.BookingIDs = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (l *Ledger) CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error) {
	booking, err := l.create(req)
	if err != nil {
		return nil, err
	}
	if l.AfterCreate != nil {
		if err := l.AfterCreate(booking); err != nil {
			return nil, err
		}
	}
	return booking, nil
}

func (l *Ledger) create(req models.CreateBookingRequest) (*models.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.CreateCalls++
	if err := take(&l.CreateErr); err != nil {
		return nil, err
	}

	start, err := models.ParseSlotStart(req.SlotStart)
	if err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		for _, b := range l.bookings {
			live := b.Status == models.BookingPending || b.Status == models.BookingConfirmed
			if b.IdempotencyKey == req.IdempotencyKey && live {
				cp := *b
				return &cp, nil
			}
		}
	}

	service, found := l.services[req.ServiceID]
	if !found {
		return nil, models.NewSagaError(models.ErrServiceNotFound, "service not found")
	}
	slot, found := l.slots[req.SlotID]
	if !found || slot.ServiceID != req.ServiceID {
		return nil, models.NewSagaError(models.ErrValidation, "slot does not belong to service")
	}
	if !slot.Start.Equal(start) {
		return nil, models.NewSagaError(models.ErrValidation, "slot start does not match the slot")
	}
	if slot.SpotsBooked >= slot.SpotsTotal {
		return nil, models.NewSagaError(models.ErrSlotUnavailable, "this slot was just booked by someone else")
	}

	l.seq++
	now := l.Now()
	status := models.BookingPending
	if !service.RequiresPayment() && !l.FreeAsPending {
		status = models.BookingConfirmed
	}
	b := &models.Booking{
		ID:             fmt.Sprintf("bk_%d", l.seq),
		ServiceID:      req.ServiceID,
		SlotID:         req.SlotID,
		SlotStart:      start,
		SlotEnd:        slot.End,
		Timezone:       req.Timezone,
		Contact:        req.Contact,
		Status:         status,
		Amount:         service.Price,
		Currency:       service.Currency,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	l.bookings[b.ID] = b
	slot.SpotsBooked++
	slot.BookingIDs = append(slot.BookingIDs, b.ID)

	cp := *b
	return &cp, nil
}

func (l *Ledger) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, found := l.bookings[bookingID]
	if !found {
		return nil, models.NewSagaError(models.ErrBookingNotFound, "booking not found")
	}
	cp := *b
	return &cp, nil
}

func (l *Ledger) CancelBooking(ctx context.Context, bookingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.CancelCalls++
	if err := take(&l.CancelErr); err != nil {
		return err
	}
	return l.release(bookingID, models.BookingCancelled)
}

// Expire moves a pending booking to FAILED and frees its spot, as the
// reclamation task does.
func (l *Ledger) Expire(bookingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.release(bookingID, models.BookingFailed)
}

func (l *Ledger) release(bookingID string, to models.BookingStatus) error {
	b, found := l.bookings[bookingID]
	if !found {
		return models.NewSagaError(models.ErrBookingNotFound, "booking not found")
	}
	// Only a pending booking is released; a confirmed one has been paid for.
	if b.Status != models.BookingPending {
		return nil
	}
	b.Status = to
	b.UpdatedAt = l.Now()
	if slot, found := l.slots[b.SlotID]; found && slot.SpotsBooked > 0 {
		slot.SpotsBooked--
	}
	return nil
}

func (l *Ledger) MarkConfirmed(ctx context.Context, bookingID string) (*models.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := take(&l.ConfirmErr); err != nil {
		return nil, err
	}
	b, found := l.bookings[bookingID]
	if !found {
		return nil, models.NewSagaError(models.ErrBookingNotFound, "booking not found")
	}
	switch b.Status {
	case models.BookingPending:
		b.Status = models.BookingConfirmed
		b.UpdatedAt = l.Now()
	case models.BookingCancelled, models.BookingFailed:
		return nil, models.NewSagaError(models.ErrSlotUnavailable, "the reservation expired before payment completed")
	}
	cp := *b
	return &cp, nil
}

func take(slot *error) error {
	err := *slot
	*slot = nil
	return err
}
