package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"kuraos/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

type fakeIntents struct {
	statuses    []stripe.PaymentIntentStatus
	gets        int
	confirms    int
	newParams   *stripe.PaymentIntentParams
	confirmArgs *stripe.PaymentIntentConfirmParams
	newErr      error
	getErr      error
	lastError   *stripe.Error
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.newParams = params
	if f.newErr != nil {
		return nil, f.newErr
	}
	return &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret_abc",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}, nil
}

func (f *fakeIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	i := f.gets
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.gets++
	return &stripe.PaymentIntent{ID: id, Status: f.statuses[i], LastPaymentError: f.lastError}, nil
}

func (f *fakeIntents) Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	f.confirms++
	f.confirmArgs = params
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusProcessing}, nil
}

func testGateway(f *fakeIntents) *StripeGateway {
	g := newGateway(f, nil)
	g.PollAttempts = 3
	g.PollInterval = time.Millisecond
	return g
}

func TestCreatePaymentIntent(t *testing.T) {
	f := &fakeIntents{}
	g := testGateway(f)

	intent, err := g.CreatePaymentIntent(context.Background(), models.Booking{
		ID:       "bk1",
		SlotID:   "slot1",
		Amount:   49.99,
		Currency: "EUR",
		Contact:  models.ContactDetails{Email: "ada@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	assert.Equal(t, "bk1", intent.BookingID)

	require.NotNil(t, f.newParams)
	assert.Equal(t, int64(4999), *f.newParams.Amount)
	assert.Equal(t, "eur", *f.newParams.Currency)
	assert.Equal(t, "bk1", f.newParams.Metadata["booking_id"])
	assert.Equal(t, "booking:bk1", *f.newParams.IdempotencyKey)
}

func TestCreatePaymentIntentFailureIsSetupError(t *testing.T) {
	g := testGateway(&fakeIntents{newErr: &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: 500}})

	_, err := g.CreatePaymentIntent(context.Background(), models.Booking{ID: "bk1", Amount: 10, Currency: "USD"})
	assert.Equal(t, models.ErrPaymentSetup, models.KindOf(err))

	_, err = g.CreatePaymentIntent(context.Background(), models.Booking{ID: "bk1", Amount: 0, Currency: "USD"})
	assert.Equal(t, models.ErrPaymentSetup, models.KindOf(err))
}

func TestConfirmPayment(t *testing.T) {
	tests := []struct {
		name     string
		statuses []stripe.PaymentIntentStatus
		wantKind models.ErrorKind
		confirms int
	}{
		{"already succeeded", []stripe.PaymentIntentStatus{stripe.PaymentIntentStatusSucceeded}, "", 0},
		{"processing then succeeded", []stripe.PaymentIntentStatus{stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusSucceeded}, "", 0},
		{"needs server confirmation", []stripe.PaymentIntentStatus{stripe.PaymentIntentStatusRequiresConfirmation, stripe.PaymentIntentStatusSucceeded}, "", 1},
		{"declined", []stripe.PaymentIntentStatus{stripe.PaymentIntentStatusRequiresPaymentMethod}, models.ErrPaymentDeclined, 0},
		{"needs 3ds", []stripe.PaymentIntentStatus{stripe.PaymentIntentStatusRequiresAction}, models.ErrPaymentProcessing, 0},
		{"stuck processing", []stripe.PaymentIntentStatus{stripe.PaymentIntentStatusProcessing}, models.ErrPaymentProcessing, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeIntents{statuses: tt.statuses}
			err := testGateway(f).ConfirmPayment(context.Background(), "pi_123_secret_abc", "https://example.com/return")

			assert.Equal(t, tt.wantKind, models.KindOf(err))
			assert.Equal(t, tt.confirms, f.confirms)
			assert.LessOrEqual(t, f.gets, 3)
		})
	}
}

func TestConfirmPaymentPassesReturnURL(t *testing.T) {
	f := &fakeIntents{statuses: []stripe.PaymentIntentStatus{
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusSucceeded,
	}}
	require.NoError(t, testGateway(f).ConfirmPayment(context.Background(), "pi_123_secret_abc", "https://example.com/return"))
	require.NotNil(t, f.confirmArgs)
	assert.Equal(t, "https://example.com/return", *f.confirmArgs.ReturnURL)
}

func TestConfirmPaymentDeclineMessage(t *testing.T) {
	f := &fakeIntents{
		statuses:  []stripe.PaymentIntentStatus{stripe.PaymentIntentStatusRequiresPaymentMethod},
		lastError: &stripe.Error{Msg: "Your card has insufficient funds."},
	}
	err := testGateway(f).ConfirmPayment(context.Background(), "pi_123_secret_abc", "")
	assert.Equal(t, "Your card has insufficient funds.", models.MessageOf(err))
}

func TestConfirmPaymentErrors(t *testing.T) {
	card := &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "card declined"}
	err := testGateway(&fakeIntents{getErr: card}).ConfirmPayment(context.Background(), "pi_1_secret_x", "")
	assert.Equal(t, models.ErrPaymentDeclined, models.KindOf(err))

	err = testGateway(&fakeIntents{getErr: errors.New("dial tcp: i/o timeout")}).ConfirmPayment(context.Background(), "pi_1_secret_x", "")
	assert.Equal(t, models.ErrNetwork, models.KindOf(err))

	err = testGateway(&fakeIntents{}).ConfirmPayment(context.Background(), "garbage", "")
	assert.Equal(t, models.ErrValidation, models.KindOf(err))
}

func TestConfirmPaymentHonoursCancellation(t *testing.T) {
	f := &fakeIntents{statuses: []stripe.PaymentIntentStatus{stripe.PaymentIntentStatusProcessing}}
	g := testGateway(f)
	g.PollInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.ConfirmPayment(ctx, "pi_123_secret_abc", "")
	assert.Equal(t, models.ErrNetwork, models.KindOf(err))
}

func TestMinorUnits(t *testing.T) {
	cents, err := MinorUnits(50, "EUR")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), cents)

	cents, err = MinorUnits(0.1+0.2, "usd")
	require.NoError(t, err)
	assert.Equal(t, int64(30), cents)

	yen, err := MinorUnits(1500, "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), yen)

	_, err = MinorUnits(10, "EURO")
	assert.Error(t, err)
}

func TestIntentIDFromSecret(t *testing.T) {
	id, err := IntentIDFromSecret("pi_3Nabc_secret_xyz")
	require.NoError(t, err)
	assert.Equal(t, "pi_3Nabc", id)
}
