package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kuraos/config"
	"kuraos/cron"
	"kuraos/database"
	bookingRepo "kuraos/database/repository/bookings"
	catalogRepo "kuraos/database/repository/catalog"
	timeslotRepo "kuraos/database/repository/timeslot"
	"kuraos/handlers"
	"kuraos/routes"
	"kuraos/services/booking"
	"kuraos/services/drafts"
	"kuraos/services/payment"
	"kuraos/services/tasks"
	"kuraos/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer logger.Sync()

	database.InitDB()
	utils.InitDraftCache()
	stripe.Key = config.AppConfig.StripeKey

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// repositories.
	catalog := catalogRepo.NewMongoCatalogRepo()
	slots := timeslotRepo.NewMongoTimeSlotRepo()
	bookings := bookingRepo.NewMongoBookingRepo(catalog, slots, logger)
	for name, ensure := range map[string]func() error{
		"services":  catalog.EnsureIndexes,
		"timeslots": slots.EnsureIndexes,
		"bookings":  bookings.EnsureIndexes,
	} {
		if err := ensure(); err != nil {
			logger.Fatal("main: failed to ensure indexes", zap.String("collection", name), zap.Error(err))
		}
	}

	queue := asynq.NewClient(cron.RedisOpt())
	defer queue.Close()
	bookings.Expiry = &tasks.ExpiryScheduler{Client: queue}
	bookings.PendingTTL = config.AppConfig.PendingBookingTTL

	// services.
	gateway := payment.NewStripeGateway(logger)
	gateway.PollAttempts = config.AppConfig.PaymentPollAttempts
	gateway.PollInterval = config.AppConfig.PaymentPollInterval

	sessions := booking.NewSessionService(booking.Dependencies{
		Ledger:  slots,
		Store:   bookings,
		Gateway: gateway,
		Drafts:  drafts.NewRedisDraftStore(utils.GetDraftCacheClient(), config.AppConfig.DraftTTL),
		Logger:  logger,
	}, booking.Options{
		SlotWindow: time.Duration(config.AppConfig.SlotWindowDays) * 24 * time.Hour,
		ReturnURL:  config.AppConfig.PaymentReturnURL,
	})
	sessions.IdleTTL = config.AppConfig.DraftTTL

	handlerBundle := &handlers.HandlerBundle{
		Booking: handlers.NewBookingHandler(sessions, catalog, config.AppConfig.SessionTokenTTL, logger),
	}
	if secret := config.AppConfig.StripeWebhookSecret; secret != "" {
		handlerBundle.Webhook = &handlers.WebhookHandler{
			Processor: payment.NewWebhookProcessor(secret, bookings, logger),
			Logger:    logger,
		}
	} else {
		logger.Warn("main: STRIPE_WEBHOOK_SECRET not set; late payments are only confirmed by the client")
	}

	worker := cron.InitExpiryWorker(bookings, logger)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	utils.StartHealthMonitor(monitorCtx, 30*time.Second, []*redis.Client{utils.GetDraftCacheClient()}, database.MongoClient)

	router := routes.NewRouter(logger, config.AppConfig.MaxRequestsPerMin)
	routes.RegisterRoutes(router, handlerBundle, config.AppConfig.AllowedOrigins)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	worker.Shutdown()
	database.CloseDB(ctx)

	logger.Sugar().Info("main: server stopped gracefully")
}
