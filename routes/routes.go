package routes

import (
	"strings"
	"time"

	"kuraos/handlers"
	"kuraos/middleware"
	"kuraos/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the engine with the global middleware. utils.ErrorHandler
// is the only panic recovery so panics answer with the uniform error body.
func NewRouter(logger *zap.Logger, maxRequestsPerMin int) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(logger))
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RateLimitMiddleware(maxRequestsPerMin))
	return router
}

// RegisterBookingRoutes registers the catalog, session and saga step endpoints.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/booking")
	{
		api.GET("/services", hb.Booking.ListServices)
		api.POST("/sessions", hb.Booking.StartSession)

		session := api.Group("/sessions/current")
		session.Use(middleware.SessionAuthMiddleware())
		session.GET("", hb.Booking.GetSession)
		session.DELETE("", hb.Booking.DeleteSession)
		session.POST("/service", hb.Booking.SelectService)
		session.GET("/slots", hb.Booking.ListSlots)
		session.POST("/slot", hb.Booking.SelectSlot)
		session.POST("/details", hb.Booking.SubmitDetails)
		session.POST("/payment/retry", hb.Booking.RetryPayment)
		session.POST("/payment/confirm", hb.Booking.ConfirmPayment)
		session.POST("/payment/abandon", hb.Booking.AbandonPayment)
		session.POST("/cancel", hb.Booking.CancelBooking)
	}
}

// RegisterWebhookRoutes registers payment provider callbacks. They are
// authenticated by signature, not by session token.
func RegisterWebhookRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	if hb.Webhook == nil {
		return
	}
	r.POST("/api/booking/webhooks/stripe", hb.Webhook.Stripe)
}

func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", handlers.Health)
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, allowedOrigins string) {
	r.Use(cors.New(corsConfig(allowedOrigins)))

	RegisterHealthRoute(r)
	RegisterWebhookRoutes(r, hb)
	RegisterBookingRoutes(r, hb)
}

func corsConfig(allowedOrigins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
