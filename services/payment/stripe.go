package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"kuraos/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"
)

// intentAPI is the subset of the Stripe payment intent client the gateway uses.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

// StripeGateway creates one payment intent per booking and confirms it with a
// bounded poll.
type StripeGateway struct {
	intents      intentAPI
	logger       *zap.Logger
	PollAttempts int
	PollInterval time.Duration
}

// NewStripeGateway uses the global stripe.Key.
func NewStripeGateway(logger *zap.Logger) *StripeGateway {
	return newGateway(&paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: stripe.Key}, logger)
}

func newGateway(intents intentAPI, logger *zap.Logger) *StripeGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripeGateway{
		intents:      intents,
		logger:       logger,
		PollAttempts: 5,
		PollInterval: 2 * time.Second,
	}
}

// CreatePaymentIntent requests an intent for the booking's amount. The Stripe
// idempotency key is derived from the booking, so a retry after a lost
// response returns the same intent. Every failure is a PaymentSetupError.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, booking models.Booking) (*models.PaymentIntent, error) {
	amount, err := MinorUnits(booking.Amount, booking.Currency)
	if err != nil {
		return nil, models.WrapSagaError(models.ErrPaymentSetup, "the booking amount cannot be charged", err)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(booking.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		ReceiptEmail: stripe.String(booking.Contact.Email),
	}
	params.Context = ctx
	params.AddMetadata("booking_id", booking.ID)
	params.AddMetadata("slot_id", booking.SlotID)
	params.SetIdempotencyKey("booking:" + booking.ID)

	pi, err := g.intents.New(params)
	if err != nil {
		g.logger.Warn("stripe payment intent creation failed", zap.String("bookingId", booking.ID), zap.Error(err))
		return nil, models.WrapSagaError(models.ErrPaymentSetup, "payment could not be set up", err)
	}

	return &models.PaymentIntent{
		ID:           pi.ID,
		BookingID:    booking.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       booking.Amount,
		Currency:     booking.Currency,
		Status:       string(pi.Status),
	}, nil
}

// ConfirmPayment waits for the intent behind clientSecret to succeed. It
// confirms the intent itself when Stripe is waiting for confirmation, and
// gives up with PaymentProcessingError after PollAttempts reads.
func (g *StripeGateway) ConfirmPayment(ctx context.Context, clientSecret, returnURL string) error {
	id, err := IntentIDFromSecret(clientSecret)
	if err != nil {
		return err
	}

	confirmed := false
	for attempt := 1; attempt <= g.PollAttempts; attempt++ {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		pi, err := g.intents.Get(id, params)
		if err != nil {
			return classifyConfirmError(err)
		}

		switch pi.Status {
		case stripe.PaymentIntentStatusSucceeded:
			g.logger.Info("payment succeeded", zap.String("paymentIntent", id), zap.Int("attempt", attempt))
			return nil
		case stripe.PaymentIntentStatusRequiresConfirmation:
			if confirmed {
				break
			}
			confirmed = true
			cp := &stripe.PaymentIntentConfirmParams{}
			cp.Context = ctx
			if returnURL != "" {
				cp.ReturnURL = stripe.String(returnURL)
			}
			if _, err := g.intents.Confirm(id, cp); err != nil {
				return classifyConfirmError(err)
			}
			continue
		case stripe.PaymentIntentStatusRequiresPaymentMethod:
			msg := "the payment method was declined"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				msg = pi.LastPaymentError.Msg
			}
			return models.NewSagaError(models.ErrPaymentDeclined, msg)
		case stripe.PaymentIntentStatusRequiresAction:
			return models.NewSagaError(models.ErrPaymentProcessing, "additional authentication is required to complete the payment")
		case stripe.PaymentIntentStatusCanceled:
			return models.NewSagaError(models.ErrPaymentDeclined, "the payment was cancelled")
		}

		if attempt < g.PollAttempts {
			select {
			case <-ctx.Done():
				return models.WrapSagaError(models.ErrNetwork, "payment status is unknown, please check again", ctx.Err())
			case <-time.After(g.PollInterval):
			}
		}
	}

	return models.NewSagaError(models.ErrPaymentProcessing, "the payment is still processing, please try again shortly")
}

func classifyConfirmError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return models.WrapSagaError(models.ErrNetwork, "payment status is unknown, please check again", err)
	}
	if se.Type == stripe.ErrorTypeCard {
		return models.WrapSagaError(models.ErrPaymentDeclined, se.Msg, err)
	}
	if se.HTTPStatusCode >= 500 {
		return models.WrapSagaError(models.ErrNetwork, "payment status is unknown, please check again", err)
	}
	return models.WrapSagaError(models.ErrPaymentProcessing, "the payment could not be processed", err)
}

// IntentIDFromSecret extracts "pi_123" from "pi_123_secret_abc".
func IntentIDFromSecret(clientSecret string) (string, error) {
	id, _, found := strings.Cut(clientSecret, "_secret_")
	if !found || !strings.HasPrefix(id, "pi_") {
		return "", models.NewSagaError(models.ErrValidation, "malformed payment client secret")
	}
	return id, nil
}

var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true, "KRW": true, "MGA": true,
	"PYG": true, "RWF": true, "UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// MinorUnits converts a decimal amount to the smallest currency unit Stripe expects.
func MinorUnits(amount float64, currency string) (int64, error) {
	if len(currency) != 3 {
		return 0, fmt.Errorf("invalid currency %q", currency)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %v", amount)
	}
	if zeroDecimal[strings.ToUpper(currency)] {
		return int64(math.Round(amount)), nil
	}
	return int64(math.Round(amount * 100)), nil
}
