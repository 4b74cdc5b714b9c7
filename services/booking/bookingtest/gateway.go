package bookingtest

import (
	"context"
	"fmt"
	"sync"

	"kuraos/models"
)

// Gateway is a scripted payment gateway.
type Gateway struct {
	mu sync.Mutex

	// Injected failures; each is returned once and then cleared.
	CreateErr  error
	ConfirmErr error

	// Hold, when set, blocks ConfirmPayment until it is closed. Entered is
	// signalled once the call is blocked.
	Hold    chan struct{}
	Entered chan struct{}

	Intents      []models.PaymentIntent
	CreateCalls  int
	ConfirmCalls int
	ReturnURLs   []string
}

func (g *Gateway) CreatePaymentIntent(ctx context.Context, booking models.Booking) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateCalls++
	if err := take(&g.CreateErr); err != nil {
		return nil, err
	}
	n := len(g.Intents) + 1
	intent := models.PaymentIntent{
		ID:           fmt.Sprintf("pi_%d", n),
		BookingID:    booking.ID,
		ClientSecret: fmt.Sprintf("pi_%d_secret_test", n),
		Amount:       booking.Amount,
		Currency:     booking.Currency,
		Status:       "requires_payment_method",
	}
	g.Intents = append(g.Intents, intent)
	return &intent, nil
}

func (g *Gateway) ConfirmPayment(ctx context.Context, clientSecret, returnURL string) error {
	g.mu.Lock()
	g.ConfirmCalls++
	g.ReturnURLs = append(g.ReturnURLs, returnURL)
	hold, entered := g.Hold, g.Entered
	err := take(&g.ConfirmErr)
	g.mu.Unlock()

	if hold != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *Gateway) Calls() (create, confirm int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.CreateCalls, g.ConfirmCalls
}
