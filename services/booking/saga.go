package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kuraos/models"

	"go.uber.org/zap"
)

// Dependencies are the collaborators a saga controller drives.
type Dependencies struct {
	Ledger  AvailabilityLedger
	Store   BookingStore
	Gateway PaymentGateway
	Drafts  DraftStore
	Logger  *zap.Logger
}

// Options tune a controller.
type Options struct {
	// SlotWindow is how far ahead of today slots are listed.
	SlotWindow time.Duration
	// ReturnURL is handed to the gateway for redirect-based confirmations.
	ReturnURL string
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SlotWindow <= 0 {
		o.SlotWindow = 30 * 24 * time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Controller drives one booking session through
// SELECT_SERVICE -> SELECT_SLOT -> ENTER_DETAILS -> AWAIT_PAYMENT -> DONE.
// It owns only the wizard draft; slot counts, booking status and payment
// status belong to the collaborators. At most one operation runs at a time;
// a call made while another is outstanding returns InFlight.
type Controller struct {
	deps        Dependencies
	opts        Options
	compensator *Compensator
	logger      *zap.Logger

	mu       sync.Mutex
	inFlight bool
	draft    models.SagaDraft
}

// Snapshot is the presentation view of a session.
type Snapshot struct {
	SessionID          string               `json:"sessionId"`
	Step               Step                 `json:"step"`
	Service            *models.Service      `json:"service,omitempty"`
	Slot               *models.Slot         `json:"slot,omitempty"`
	BookingID          string               `json:"bookingId,omitempty"`
	BookingStatus      models.BookingStatus `json:"bookingStatus,omitempty"`
	ClientSecret       string               `json:"clientSecret,omitempty"`
	PaymentSetupFailed bool                 `json:"paymentSetupFailed"`
	Retryable          bool                 `json:"retryable"`
	Busy               bool                 `json:"busy"`
}

// NewController starts a fresh session at SELECT_SERVICE.
func NewController(sessionID string, deps Dependencies, opts Options) *Controller {
	opts = opts.withDefaults()
	return newController(models.SagaDraft{
		SessionID: sessionID,
		Step:      string(StepSelectService),
		UpdatedAt: opts.Now(),
	}, deps, opts)
}

func newController(draft models.SagaDraft, deps Dependencies, opts Options) *Controller {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("sessionId", draft.SessionID))
	draft.Step = string(parseStep(draft.Step))
	return &Controller{
		deps:        deps,
		opts:        opts,
		compensator: NewCompensator(deps.Store, logger),
		logger:      logger,
		draft:       draft,
	}
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.SessionID
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	snap := Snapshot{
		SessionID:          d.SessionID,
		Step:               Step(d.Step),
		Service:            d.Service,
		Slot:               d.Slot,
		BookingID:          d.BookingID,
		ClientSecret:       d.ClientSecret,
		PaymentSetupFailed: d.PaymentSetupFailed,
		Retryable:          retryable(d),
		Busy:               c.inFlight,
	}
	if d.Booking != nil {
		snap.BookingStatus = d.Booking.Status
	}
	return snap
}

func (c *Controller) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

func (c *Controller) end() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

func (c *Controller) current() models.SagaDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// commit applies mutate to the draft and persists it. A persistence failure
// is logged: the in-memory draft stays authoritative for this process.
func (c *Controller) commit(ctx context.Context, mutate func(d *models.SagaDraft)) {
	c.mu.Lock()
	mutate(&c.draft)
	c.draft.UpdatedAt = c.opts.Now()
	snapshot := c.draft
	c.mu.Unlock()

	if c.deps.Drafts == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.deps.Drafts.Save(saveCtx, snapshot); err != nil {
		c.logger.Warn("failed to persist booking draft", zap.String("step", snapshot.Step), zap.Error(err))
	}
}

func busy() Result {
	return failWith(models.ErrInFlight, "another request for this booking is still running")
}

// SelectService picks the service to book. Allowed until a booking exists.
func (c *Controller) SelectService(ctx context.Context, service models.Service) Result {
	if !c.begin() {
		return busy()
	}
	defer c.end()

	d := c.current()
	if d.BookingID != "" {
		return failWith(models.ErrInvalidTransition, "a booking is already in progress for this session")
	}
	if err := guardTransition(Step(d.Step), StepSelectSlot); err != nil {
		return fail(err)
	}
	if service.ID == "" || service.Price < 0 {
		return failWith(models.ErrValidation, "service is not bookable")
	}

	c.commit(ctx, func(d *models.SagaDraft) {
		d.Service = &service
		d.Slot = nil
		d.Availability = nil
		d.Step = string(StepSelectSlot)
	})
	c.logger.Debug("service selected", zap.String("serviceId", service.ID), zap.Float64("price", service.Price))
	return ok()
}

// AvailableSlots queries the ledger for the selected service over the rolling
// window starting today and remembers the listing for slot selection.
func (c *Controller) AvailableSlots(ctx context.Context) ([]SlotOption, Result) {
	if !c.begin() {
		return nil, busy()
	}
	defer c.end()

	d := c.current()
	if Step(d.Step) != StepSelectSlot || d.Service == nil {
		return nil, failWith(models.ErrInvalidTransition, "select a service before listing slots")
	}

	from, to := c.slotWindow()
	slots, err := c.deps.Ledger.ListSlots(ctx, d.Service.ID, from, to)
	if err != nil {
		c.logger.Warn("slot query failed", zap.String("serviceId", d.Service.ID), zap.Error(err))
		return nil, fail(err)
	}

	c.commit(ctx, func(d *models.SagaDraft) {
		d.Availability = slots
	})
	return toSlotOptions(slots), ok()
}

func (c *Controller) slotWindow() (time.Time, time.Time) {
	now := c.opts.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return now, today.Add(c.opts.SlotWindow)
}

// ListedSlot returns a slot from the most recent listing.
func (c *Controller) ListedSlot(slotID string) (models.Slot, bool) {
	d := c.current()
	for _, s := range d.Availability {
		if s.ID == slotID {
			return s, true
		}
	}
	return models.Slot{}, false
}

// SelectSlot picks a slot as displayed. Capacity is not re-checked here; the
// ledger decides at commit time.
func (c *Controller) SelectSlot(ctx context.Context, slot models.Slot) Result {
	if !c.begin() {
		return busy()
	}
	defer c.end()

	d := c.current()
	if d.BookingID != "" {
		return failWith(models.ErrInvalidTransition, "a booking is already in progress for this session")
	}
	if step := Step(d.Step); step != StepSelectSlot && step != StepEnterDetails {
		return failWith(models.ErrInvalidTransition, fmt.Sprintf("cannot select a slot during %s", step))
	}
	if d.Service == nil || slot.ServiceID != d.Service.ID {
		return failWith(models.ErrValidation, "slot does not belong to the selected service")
	}
	if Classify(slot) == AvailabilityFull {
		return failWith(models.ErrSlotUnavailable, "this slot is fully booked")
	}

	c.commit(ctx, func(d *models.SagaDraft) {
		d.Slot = &slot
		d.Step = string(StepEnterDetails)
	})
	return ok()
}

// SubmitDetails is the commit point: it reserves the slot by creating the
// booking, then sets up payment when the service has a price.
func (c *Controller) SubmitDetails(ctx context.Context, in DetailsInput) Result {
	if !c.begin() {
		return busy()
	}
	defer c.end()

	d := c.current()
	if d.BookingID != "" {
		return failWith(models.ErrDuplicateSubmission, "these details were already submitted")
	}
	if Step(d.Step) != StepEnterDetails || d.Service == nil || d.Slot == nil {
		return failWith(models.ErrInvalidTransition, "select a slot before entering details")
	}

	contact, loc, err := in.Validate()
	if err != nil {
		return fail(err)
	}

	req := models.CreateBookingRequest{
		ServiceID:      d.Service.ID,
		SlotID:         d.Slot.ID,
		SlotStart:      FormatSlotStart(d.Slot.Start, loc),
		Timezone:       loc.String(),
		Contact:        contact,
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", d.SessionID, d.Slot.ID, d.Attempt),
	}

	booking, err := c.deps.Store.CreateBooking(ctx, req)
	if err != nil {
		if models.KindOf(err) == models.ErrSlotUnavailable {
			c.logger.Info("slot taken at commit time", zap.String("slotId", d.Slot.ID))
			c.commit(ctx, func(d *models.SagaDraft) {
				d.Slot = nil
				d.Availability = nil
				d.Step = string(StepSelectSlot)
			})
			return fail(err)
		}
		c.logger.Warn("booking creation failed", zap.String("slotId", d.Slot.ID), zap.Error(err))
		return fail(err)
	}

	c.logger.Info("slot reserved",
		zap.String("bookingId", booking.ID),
		zap.String("status", string(booking.Status)),
	)
	c.commit(ctx, func(d *models.SagaDraft) {
		d.BookingID = booking.ID
		d.Booking = booking
		d.ReleasedBookingID = ""
	})

	if d.Service.RequiresPayment() && booking.Status == models.BookingPending {
		return c.setupPayment(ctx, *booking)
	}

	return c.confirmFree(ctx, booking)
}

// confirmFree finishes a booking that needs no payment. Zero-price bookings
// are normally confirmed by the store itself; when the explicit confirmation
// fails the booking stays PENDING and RetryPayment runs it again.
func (c *Controller) confirmFree(ctx context.Context, booking *models.Booking) Result {
	if booking.Status != models.BookingConfirmed {
		confirmed, err := c.deps.Store.MarkConfirmed(ctx, booking.ID)
		if err != nil {
			c.logger.Warn("free booking could not be confirmed", zap.String("bookingId", booking.ID), zap.Error(err))
			return fail(err)
		}
		booking = confirmed
	}
	c.commit(ctx, func(d *models.SagaDraft) {
		d.Booking = booking
		d.Step = string(StepDone)
	})
	return ok()
}

func (c *Controller) setupPayment(ctx context.Context, booking models.Booking) Result {
	intent, err := c.deps.Gateway.CreatePaymentIntent(ctx, booking)
	if err != nil {
		c.logger.Warn("payment setup failed; booking stays pending",
			zap.String("bookingId", booking.ID),
			zap.Error(err),
		)
		c.commit(ctx, func(d *models.SagaDraft) {
			d.PaymentSetupFailed = true
		})
		return fail(models.WrapSagaError(models.ErrPaymentSetup,
			"payment could not be set up; retry or cancel the booking", err))
	}

	c.commit(ctx, func(d *models.SagaDraft) {
		d.ClientSecret = intent.ClientSecret
		d.PaymentSetupFailed = false
		d.Step = string(StepAwaitPayment)
	})
	return ok()
}

// RetryPayment asks the gateway for a new intent for the existing pending
// booking after a PaymentSetupError, or re-runs the confirmation of a free
// booking that failed to confirm. The booking is never recreated.
func (c *Controller) RetryPayment(ctx context.Context) Result {
	if !c.begin() {
		return busy()
	}
	defer c.end()

	d := c.current()
	if !retryable(d) {
		return failWith(models.ErrInvalidTransition, "there is no payment to retry")
	}

	booking, err := c.deps.Store.GetBooking(ctx, d.BookingID)
	if err != nil {
		return fail(err)
	}
	switch booking.Status {
	case models.BookingConfirmed:
		c.commit(ctx, func(d *models.SagaDraft) {
			d.Booking = booking
			d.PaymentSetupFailed = false
			d.Step = string(StepDone)
		})
		return ok()
	case models.BookingCancelled, models.BookingFailed:
		c.commit(ctx, func(d *models.SagaDraft) {
			clearBooking(d)
			d.Slot = nil
			d.Availability = nil
			d.Step = string(StepSelectSlot)
		})
		return failWith(models.ErrSlotUnavailable, "the reservation expired; choose a slot again")
	}

	if !d.Service.RequiresPayment() {
		return c.confirmFree(ctx, booking)
	}
	return c.setupPayment(ctx, *booking)
}

// retryable reports whether the draft holds a pending booking stuck in
// ENTER_DETAILS: a failed payment setup, or a free booking whose confirmation
// failed.
func retryable(d models.SagaDraft) bool {
	if Step(d.Step) != StepEnterDetails || d.BookingID == "" || d.Service == nil {
		return false
	}
	return d.PaymentSetupFailed || !d.Service.RequiresPayment()
}

// ConfirmPayment runs the gateway confirmation. On failure the session stays
// in AWAIT_PAYMENT and the booking stays PENDING.
func (c *Controller) ConfirmPayment(ctx context.Context) Result {
	if !c.begin() {
		return busy()
	}
	defer c.end()

	d := c.current()
	if Step(d.Step) != StepAwaitPayment || d.ClientSecret == "" {
		return failWith(models.ErrInvalidTransition, "there is no payment awaiting confirmation")
	}

	if err := c.deps.Gateway.ConfirmPayment(ctx, d.ClientSecret, c.opts.ReturnURL); err != nil {
		c.logger.Warn("payment confirmation failed",
			zap.String("bookingId", d.BookingID),
			zap.String("kind", string(models.KindOf(err))),
			zap.Error(err),
		)
		return fail(err)
	}

	booking, err := c.deps.Store.MarkConfirmed(ctx, d.BookingID)
	if err != nil {
		c.logger.Error("payment succeeded but booking was not confirmed",
			zap.String("bookingId", d.BookingID),
			zap.Error(err),
		)
		return fail(err)
	}

	c.commit(ctx, func(d *models.SagaDraft) {
		d.Booking = booking
		d.ClientSecret = ""
		d.Step = string(StepDone)
	})
	c.logger.Info("booking confirmed", zap.String("bookingId", booking.ID))
	return ok()
}

// AbandonPayment backs out of AWAIT_PAYMENT, releasing the reservation. A
// repeated call after a completed abandonment is a no-op.
func (c *Controller) AbandonPayment(ctx context.Context) Result {
	if !c.begin() {
		return busy()
	}
	defer c.end()

	d := c.current()
	if Step(d.Step) == StepEnterDetails && d.BookingID == "" && d.ReleasedBookingID != "" {
		return ok()
	}
	if Step(d.Step) != StepAwaitPayment {
		return failWith(models.ErrInvalidTransition, "there is no payment to abandon")
	}

	return c.release(ctx, d.BookingID)
}

// CancelBooking releases a pending booking the user chose not to pay for
// after a PaymentSetupError.
func (c *Controller) CancelBooking(ctx context.Context) Result {
	if !c.begin() {
		return busy()
	}
	defer c.end()

	d := c.current()
	if Step(d.Step) != StepEnterDetails || d.BookingID == "" {
		return failWith(models.ErrInvalidTransition, "there is no pending booking to cancel")
	}

	return c.release(ctx, d.BookingID)
}

// release compensates a reservation. The store only cancels a PENDING
// booking, so a booking confirmed meanwhile (for example by the payment
// webhook) survives and the session finishes at DONE instead.
func (c *Controller) release(ctx context.Context, bookingID string) Result {
	// Failure is logged by the compensator and never blocks the user.
	_ = c.compensator.ReleaseBooking(ctx, bookingID)

	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if booking, err := c.deps.Store.GetBooking(readCtx, bookingID); err == nil && booking.Status == models.BookingConfirmed {
		c.logger.Info("booking was confirmed before it could be released", zap.String("bookingId", bookingID))
		c.commit(ctx, func(d *models.SagaDraft) {
			d.Booking = booking
			d.ClientSecret = ""
			d.PaymentSetupFailed = false
			d.Step = string(StepDone)
		})
		return ok()
	}

	c.commit(ctx, func(d *models.SagaDraft) {
		clearBooking(d)
		d.ReleasedBookingID = bookingID
		d.Attempt++
		d.Step = string(StepEnterDetails)
	})
	return ok()
}

func clearBooking(d *models.SagaDraft) {
	d.BookingID = ""
	d.Booking = nil
	d.ClientSecret = ""
	d.PaymentSetupFailed = false
}

// reconcile aligns a resumed draft with the booking store, which owns the
// booking status.
func (c *Controller) reconcile(ctx context.Context) error {
	d := c.current()
	if d.BookingID == "" {
		return nil
	}

	booking, err := c.deps.Store.GetBooking(ctx, d.BookingID)
	if err != nil {
		if models.KindOf(err) != models.ErrBookingNotFound {
			return fmt.Errorf("failed to reconcile booking %s: %w", d.BookingID, err)
		}
		booking = &models.Booking{ID: d.BookingID, Status: models.BookingCancelled}
	}

	c.commit(ctx, func(d *models.SagaDraft) {
		switch booking.Status {
		case models.BookingConfirmed:
			d.Booking = booking
			d.ClientSecret = ""
			d.PaymentSetupFailed = false
			d.Step = string(StepDone)
		case models.BookingCancelled, models.BookingFailed:
			clearBooking(d)
			d.ReleasedBookingID = booking.ID
			d.Attempt++
			d.Step = string(StepEnterDetails)
		default:
			d.Booking = booking
		}
	})
	c.logger.Info("resumed booking session",
		zap.String("bookingId", booking.ID),
		zap.String("status", string(booking.Status)),
	)
	return nil
}
