package handlers

// HandlerBundle groups the endpoint handlers routes are registered from.
type HandlerBundle struct {
	Booking *BookingHandler
	Webhook *WebhookHandler
}
