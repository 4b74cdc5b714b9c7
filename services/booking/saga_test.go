package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kuraos/models"
	"kuraos/services/booking/bookingtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

type fixture struct {
	ledger  *bookingtest.Ledger
	gateway *bookingtest.Gateway
	drafts  *bookingtest.Drafts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger := bookingtest.NewLedger()
	ledger.Now = func() time.Time { return fixedNow }
	ledger.AddService(models.Service{ID: "free", ProviderID: "p1", Title: "Intro call", Price: 0, Currency: "EUR"})
	ledger.AddService(models.Service{ID: "paid", ProviderID: "p1", Title: "Massage", Price: 50, Currency: "EUR"})
	ledger.AddSlot(slotAt("free-1", "free", fixedNow.Add(26*time.Hour), 1, 0))
	ledger.AddSlot(slotAt("paid-1", "paid", fixedNow.Add(28*time.Hour), 1, 0))
	ledger.AddSlot(slotAt("paid-3", "paid", fixedNow.Add(50*time.Hour), 3, 1))
	return &fixture{ledger: ledger, gateway: &bookingtest.Gateway{}, drafts: bookingtest.NewDrafts()}
}

func slotAt(id, serviceID string, start time.Time, total, booked int) models.Slot {
	return models.Slot{
		ID:          id,
		ServiceID:   serviceID,
		Start:       start,
		End:         start.Add(time.Hour),
		SpotsTotal:  total,
		SpotsBooked: booked,
	}
}

func (f *fixture) deps() Dependencies {
	return Dependencies{Ledger: f.ledger, Store: f.ledger, Gateway: f.gateway, Drafts: f.drafts}
}

func (f *fixture) controller(sessionID string) *Controller {
	return NewController(sessionID, f.deps(), Options{
		ReturnURL: "https://book.example.com/return",
		Now:       func() time.Time { return fixedNow },
	})
}

func (f *fixture) service(t *testing.T, id string) models.Service {
	t.Helper()
	s, err := f.ledger.GetService(context.Background(), id)
	require.NoError(t, err)
	return *s
}

// atDetails drives a fresh controller to ENTER_DETAILS on the given slot.
func (f *fixture) atDetails(t *testing.T, sessionID, serviceID, slotID string) *Controller {
	t.Helper()
	ctx := context.Background()
	c := f.controller(sessionID)
	require.True(t, c.SelectService(ctx, f.service(t, serviceID)).OK)
	_, res := c.AvailableSlots(ctx)
	require.True(t, res.OK)
	slot, found := c.ListedSlot(slotID)
	require.True(t, found)
	require.True(t, c.SelectSlot(ctx, slot).OK)
	return c
}

func validDetails() DetailsInput {
	return DetailsInput{Name: "Ada Lovelace", Email: "ada@example.com", Timezone: "Europe/Berlin"}
}

func TestFreeServiceIsConfirmedWithoutGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "free", "free-1")

	res := c.SubmitDetails(ctx, validDetails())
	require.True(t, res.OK, res.Message)

	snap := c.Snapshot()
	assert.Equal(t, StepDone, snap.Step)
	assert.Equal(t, models.BookingConfirmed, snap.BookingStatus)

	create, confirm := f.gateway.Calls()
	assert.Zero(t, create)
	assert.Zero(t, confirm)

	stored, found := f.ledger.Booking(snap.BookingID)
	require.True(t, found)
	assert.Equal(t, models.BookingConfirmed, stored.Status)
	assert.Equal(t, 0, f.ledger.Slot("free-1").SpotsLeft())

	// Subsequent reads see the slot as full.
	other := f.controller("s2")
	require.True(t, other.SelectService(ctx, f.service(t, "free")).OK)
	options, res := other.AvailableSlots(ctx)
	require.True(t, res.OK)
	require.Len(t, options, 1)
	assert.Equal(t, AvailabilityFull, options[0].Availability)
	assert.False(t, options[0].Selectable)
}

func TestPaidServiceNeedsConfirmPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "paid", "paid-1")

	require.True(t, c.SubmitDetails(ctx, validDetails()).OK)
	snap := c.Snapshot()
	assert.Equal(t, StepAwaitPayment, snap.Step)
	assert.Equal(t, "pi_1_secret_test", snap.ClientSecret)

	stored, _ := f.ledger.Booking(snap.BookingID)
	assert.Equal(t, models.BookingPending, stored.Status)

	res := c.ConfirmPayment(ctx)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, StepDone, c.Snapshot().Step)
	assert.Equal(t, []string{"https://book.example.com/return"}, f.gateway.ReturnURLs)

	stored, _ = f.ledger.Booking(snap.BookingID)
	assert.Equal(t, models.BookingConfirmed, stored.Status)
}

func TestConfirmPaymentFailureStaysInAwaitPayment(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind models.ErrorKind
	}{
		{"declined", models.NewSagaError(models.ErrPaymentDeclined, "card declined"), models.ErrPaymentDeclined},
		{"processing", models.NewSagaError(models.ErrPaymentProcessing, "try later"), models.ErrPaymentProcessing},
		{"timeout", context.DeadlineExceeded, models.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			c := f.atDetails(t, "s1", "paid", "paid-1")
			require.True(t, c.SubmitDetails(ctx, validDetails()).OK)

			f.gateway.ConfirmErr = tt.err
			res := c.ConfirmPayment(ctx)
			assert.False(t, res.OK)
			assert.Equal(t, tt.kind, res.Error)
			assert.NotEmpty(t, res.Message)

			snap := c.Snapshot()
			assert.Equal(t, StepAwaitPayment, snap.Step)
			stored, _ := f.ledger.Booking(snap.BookingID)
			assert.Equal(t, models.BookingPending, stored.Status)

			// The user can retry and succeed.
			require.True(t, c.ConfirmPayment(ctx).OK)
			assert.Equal(t, StepDone, c.Snapshot().Step)
		})
	}
}

func TestPaymentSetupFailureKeepsBookingPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "paid", "paid-1")

	f.gateway.CreateErr = errors.New("stripe unavailable")
	res := c.SubmitDetails(ctx, validDetails())
	assert.False(t, res.OK)
	assert.Equal(t, models.ErrPaymentSetup, res.Error)

	snap := c.Snapshot()
	assert.Equal(t, StepEnterDetails, snap.Step)
	assert.NotEqual(t, StepDone, snap.Step)
	assert.True(t, snap.PaymentSetupFailed)
	assert.Equal(t, models.BookingPending, snap.BookingStatus)
	assert.Empty(t, f.ledger.Bookings(models.BookingConfirmed))

	// Resubmitting never creates a second booking.
	dup := c.SubmitDetails(ctx, validDetails())
	assert.Equal(t, models.ErrDuplicateSubmission, dup.Error)
	assert.Equal(t, 1, f.ledger.CreateCalls)

	// Retry reuses the pending booking.
	require.True(t, c.RetryPayment(ctx).OK)
	after := c.Snapshot()
	assert.Equal(t, StepAwaitPayment, after.Step)
	assert.Equal(t, snap.BookingID, after.BookingID)
	assert.Len(t, f.ledger.Bookings(models.BookingPending), 1)
}

func TestPaymentSetupFailureThenCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "paid", "paid-1")

	f.gateway.CreateErr = errors.New("stripe unavailable")
	require.False(t, c.SubmitDetails(ctx, validDetails()).OK)
	bookingID := c.Snapshot().BookingID

	require.True(t, c.CancelBooking(ctx).OK)
	snap := c.Snapshot()
	assert.Equal(t, StepEnterDetails, snap.Step)
	assert.Empty(t, snap.BookingID)

	stored, _ := f.ledger.Booking(bookingID)
	assert.Equal(t, models.BookingCancelled, stored.Status)
	assert.Equal(t, 1, f.ledger.Slot("paid-1").SpotsLeft())

	// A fresh submission reserves again under a new attempt.
	require.True(t, c.SubmitDetails(ctx, validDetails()).OK)
	assert.NotEqual(t, bookingID, c.Snapshot().BookingID)
}

func TestRetryPaymentAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "paid", "paid-1")

	f.gateway.CreateErr = errors.New("stripe unavailable")
	require.False(t, c.SubmitDetails(ctx, validDetails()).OK)
	require.NoError(t, f.ledger.Expire(c.Snapshot().BookingID))

	res := c.RetryPayment(ctx)
	assert.Equal(t, models.ErrSlotUnavailable, res.Error)
	snap := c.Snapshot()
	assert.Equal(t, StepSelectSlot, snap.Step)
	assert.Empty(t, snap.BookingID)
	assert.Nil(t, snap.Slot)
}

func TestAbandonPaymentCancelsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "paid", "paid-1")
	require.True(t, c.SubmitDetails(ctx, validDetails()).OK)
	bookingID := c.Snapshot().BookingID

	require.True(t, c.AbandonPayment(ctx).OK)
	require.True(t, c.AbandonPayment(ctx).OK)

	assert.Equal(t, 1, f.ledger.CancelCalls)
	stored, _ := f.ledger.Booking(bookingID)
	assert.Equal(t, models.BookingCancelled, stored.Status)

	snap := c.Snapshot()
	assert.Equal(t, StepEnterDetails, snap.Step)
	assert.Empty(t, snap.BookingID)
	assert.Empty(t, snap.ClientSecret)
	assert.Equal(t, 1, f.ledger.Slot("paid-1").SpotsLeft())
}

func TestAbandonAfterWebhookConfirmationKeepsBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "paid", "paid-1")
	require.True(t, c.SubmitDetails(ctx, validDetails()).OK)
	bookingID := c.Snapshot().BookingID

	// Paid out of band while the session still awaits payment.
	_, err := f.ledger.MarkConfirmed(ctx, bookingID)
	require.NoError(t, err)

	require.True(t, c.AbandonPayment(ctx).OK)

	stored, _ := f.ledger.Booking(bookingID)
	assert.Equal(t, models.BookingConfirmed, stored.Status)
	assert.Equal(t, 0, f.ledger.Slot("paid-1").SpotsLeft())
	snap := c.Snapshot()
	assert.Equal(t, StepDone, snap.Step)
	assert.Equal(t, bookingID, snap.BookingID)
	assert.Equal(t, models.BookingConfirmed, snap.BookingStatus)
}

func TestCancelAfterConfirmationKeepsBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "paid", "paid-1")

	f.gateway.CreateErr = errors.New("stripe unavailable")
	require.False(t, c.SubmitDetails(ctx, validDetails()).OK)
	bookingID := c.Snapshot().BookingID
	_, err := f.ledger.MarkConfirmed(ctx, bookingID)
	require.NoError(t, err)

	require.True(t, c.CancelBooking(ctx).OK)
	stored, _ := f.ledger.Booking(bookingID)
	assert.Equal(t, models.BookingConfirmed, stored.Status)
	assert.Equal(t, StepDone, c.Snapshot().Step)
}

func TestFreeBookingConfirmationCanBeRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.FreeAsPending = true
	c := f.atDetails(t, "s1", "free", "free-1")

	f.ledger.ConfirmErr = errors.New("connection reset")
	res := c.SubmitDetails(ctx, validDetails())
	require.False(t, res.OK)
	assert.Equal(t, models.ErrNetwork, res.Error)

	snap := c.Snapshot()
	assert.Equal(t, StepEnterDetails, snap.Step)
	assert.NotEmpty(t, snap.BookingID)
	assert.True(t, snap.Retryable)

	require.True(t, c.RetryPayment(ctx).OK)
	snap = c.Snapshot()
	assert.Equal(t, StepDone, snap.Step)
	assert.Equal(t, models.BookingConfirmed, snap.BookingStatus)
	create, _ := f.gateway.Calls()
	assert.Zero(t, create)
}

func TestAbandonPaymentSurvivesCancelFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "paid", "paid-1")
	require.True(t, c.SubmitDetails(ctx, validDetails()).OK)
	bookingID := c.Snapshot().BookingID

	f.ledger.CancelErr = errors.New("connection reset")
	res := c.AbandonPayment(ctx)
	assert.True(t, res.OK)
	assert.Equal(t, StepEnterDetails, c.Snapshot().Step)

	// Left for expiry reclamation.
	stored, _ := f.ledger.Booking(bookingID)
	assert.Equal(t, models.BookingPending, stored.Status)
}

func TestRaceForLastSpot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.atDetails(t, "a", "paid", "paid-1")
	b := f.atDetails(t, "b", "paid", "paid-1")

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i, c := range []*Controller{a, b} {
		wg.Add(1)
		go func(i int, c *Controller) {
			defer wg.Done()
			results[i] = c.SubmitDetails(ctx, validDetails())
		}(i, c)
	}
	wg.Wait()

	var won, lost int
	for i, res := range results {
		c := []*Controller{a, b}[i]
		if res.OK {
			won++
			assert.Equal(t, StepAwaitPayment, c.Snapshot().Step)
			continue
		}
		lost++
		assert.Equal(t, models.ErrSlotUnavailable, res.Error)
		snap := c.Snapshot()
		assert.Equal(t, StepSelectSlot, snap.Step)
		assert.Empty(t, snap.BookingID)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	slot := f.ledger.Slot("paid-1")
	assert.LessOrEqual(t, slot.SpotsBooked, slot.SpotsTotal)
	assert.Equal(t, 1, slot.SpotsBooked)
}

func TestSubmitDetailsRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   DetailsInput
	}{
		{"missing name", DetailsInput{Email: "a@example.com", Timezone: "UTC"}},
		{"blank name", DetailsInput{Name: "   ", Email: "a@example.com", Timezone: "UTC"}},
		{"bad email", DetailsInput{Name: "Ada", Email: "not-an-email", Timezone: "UTC"}},
		{"missing timezone", DetailsInput{Name: "Ada", Email: "a@example.com"}},
		{"unknown timezone", DetailsInput{Name: "Ada", Email: "a@example.com", Timezone: "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.atDetails(t, "s1", "paid", "paid-1")

			res := c.SubmitDetails(context.Background(), tt.in)
			assert.Equal(t, models.ErrValidation, res.Error)
			assert.Zero(t, f.ledger.CreateCalls)
			assert.Equal(t, StepEnterDetails, c.Snapshot().Step)
		})
	}
}

func TestSlotStartRoundTripAcrossZones(t *testing.T) {
	zones := []string{"UTC", "America/Los_Angeles", "Asia/Kolkata", "Pacific/Chatham", "Europe/Berlin"}
	for _, zone := range zones {
		t.Run(zone, func(t *testing.T) {
			f := newFixture(t)
			c := f.atDetails(t, "s1", "free", "free-1")
			in := validDetails()
			in.Timezone = zone

			require.True(t, c.SubmitDetails(context.Background(), in).OK)
			stored, _ := f.ledger.Booking(c.Snapshot().BookingID)
			assert.True(t, stored.SlotStart.Equal(f.ledger.Slot("free-1").Start))
			assert.Equal(t, zone, stored.Timezone)
		})
	}
}

func TestSubmitAfterLostResponseReusesBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "paid", "paid-3")

	lost := true
	f.ledger.AfterCreate = func(*models.Booking) error {
		if lost {
			lost = false
			return context.DeadlineExceeded
		}
		return nil
	}

	res := c.SubmitDetails(ctx, validDetails())
	assert.Equal(t, models.ErrNetwork, res.Error)
	assert.Equal(t, StepEnterDetails, c.Snapshot().Step)

	require.True(t, c.SubmitDetails(ctx, validDetails()).OK)
	assert.Len(t, f.ledger.Bookings(models.BookingPending), 1)
	assert.Equal(t, 2, f.ledger.Slot("paid-3").SpotsBooked)
}

func TestOperationsRejectedWhileInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "paid", "paid-1")
	require.True(t, c.SubmitDetails(ctx, validDetails()).OK)

	f.gateway.Hold = make(chan struct{})
	f.gateway.Entered = make(chan struct{}, 1)

	done := make(chan Result, 1)
	go func() { done <- c.ConfirmPayment(ctx) }()
	<-f.gateway.Entered

	assert.True(t, c.Snapshot().Busy)
	assert.Equal(t, models.ErrInFlight, c.ConfirmPayment(ctx).Error)
	assert.Equal(t, models.ErrInFlight, c.AbandonPayment(ctx).Error)

	close(f.gateway.Hold)
	assert.True(t, (<-done).OK)
	assert.Zero(t, f.ledger.CancelCalls)
	assert.Equal(t, StepDone, c.Snapshot().Step)
}

func TestIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.controller("s1")

	_, res := c.AvailableSlots(ctx)
	assert.Equal(t, models.ErrInvalidTransition, res.Error)
	assert.Equal(t, models.ErrInvalidTransition, c.SubmitDetails(ctx, validDetails()).Error)
	assert.Equal(t, models.ErrInvalidTransition, c.ConfirmPayment(ctx).Error)
	assert.Equal(t, models.ErrInvalidTransition, c.AbandonPayment(ctx).Error)
	assert.Equal(t, models.ErrInvalidTransition, c.RetryPayment(ctx).Error)
	assert.Equal(t, models.ErrInvalidTransition, c.CancelBooking(ctx).Error)

	require.True(t, c.SelectService(ctx, f.service(t, "paid")).OK)
	wrong := f.ledger.Slot("free-1")
	assert.Equal(t, models.ErrValidation, c.SelectSlot(ctx, wrong).Error)

	full := slotAt("x", "paid", fixedNow.Add(time.Hour), 2, 2)
	assert.Equal(t, models.ErrSlotUnavailable, c.SelectSlot(ctx, full).Error)
	assert.Equal(t, StepSelectSlot, c.Snapshot().Step)

	bad := models.Service{ID: "neg", Price: -1}
	c2 := f.controller("s2")
	assert.Equal(t, models.ErrValidation, c2.SelectService(ctx, bad).Error)
}

func TestSlotWindowStartsToday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.AddSlot(slotAt("past", "paid", fixedNow.Add(-time.Hour), 1, 0))
	f.ledger.AddSlot(slotAt("last-day", "paid", time.Date(2025, 4, 8, 23, 0, 0, 0, time.UTC), 1, 0))
	f.ledger.AddSlot(slotAt("too-far", "paid", time.Date(2025, 4, 9, 0, 0, 0, 0, time.UTC), 1, 0))

	c := f.controller("s1")
	require.True(t, c.SelectService(ctx, f.service(t, "paid")).OK)
	options, res := c.AvailableSlots(ctx)
	require.True(t, res.OK)

	var ids []string
	for _, o := range options {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"paid-1", "paid-3", "last-day"}, ids)
	assert.Equal(t, AvailabilityLimited, options[1].Availability)
}

func TestSlotQueryFailureIsSurfaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.controller("s1")
	require.True(t, c.SelectService(ctx, f.service(t, "paid")).OK)

	f.ledger.ListErr = errors.New("dial tcp: timeout")
	_, res := c.AvailableSlots(ctx)
	assert.Equal(t, models.ErrNetwork, res.Error)
	assert.Equal(t, StepSelectSlot, c.Snapshot().Step)
}

func TestDraftIsPersistedOnEveryStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.atDetails(t, "s1", "paid", "paid-1")
	require.True(t, c.SubmitDetails(ctx, validDetails()).OK)

	draft, err := f.drafts.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, string(StepAwaitPayment), draft.Step)
	assert.Equal(t, c.Snapshot().BookingID, draft.BookingID)
}
