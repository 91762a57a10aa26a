package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sessionledger/config"
	"sessionledger/cron"
	"sessionledger/database"
	availabilityRepoPkg "sessionledger/database/repository/availability"
	bookingRepoPkg "sessionledger/database/repository/booking"
	ledgerRepoPkg "sessionledger/database/repository/ledger"
	userRepoPkg "sessionledger/database/repository/user"
	"sessionledger/handlers"
	"sessionledger/middleware"
	"sessionledger/routes"
	"sessionledger/services/availability"
	"sessionledger/services/booking"
	"sessionledger/services/ledger"
	"sessionledger/services/meeting"
	"sessionledger/services/notification"
	"sessionledger/services/payment"
	"sessionledger/services/tasks"
	"sessionledger/services/user"
	"sessionledger/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()
	utils.InitAuthCache()
	utils.FirebaseInit()

	// repositories.
	userRepo := userRepoPkg.NewMongoUserRepo()
	bookingRepo := bookingRepoPkg.NewMongoBookingRepo()
	ledgerRepo := ledgerRepoPkg.NewMongoLedgerRepo()
	availRepo := availabilityRepoPkg.NewMongoAvailabilityRepo()

	for name, ensure := range map[string]func() error{
		"users":        userRepo.EnsureIndexes,
		"bookings":     bookingRepo.EnsureIndexes,
		"ledger":       ledgerRepo.EnsureIndexes,
		"availability": availRepo.EnsureIndexes,
	} {
		if err := ensure(); err != nil {
			logger.Sugar().Fatalf("main: failed to ensure %s indexes: %v", name, err)
		}
	}

	// services.
	ledgerService := ledger.NewDefaultLedgerService(ledgerRepo, logger)

	availabilityService := &availability.DefaultAvailabilityService{
		Repo:     availRepo,
		Cache:    utils.GetCacheClient(),
		CacheTTL: 5 * time.Minute,
		Logger:   logger,
	}

	notificationService := notification.NewFCMNotificationService(userRepo, logger)
	taskClient := tasks.NewClient()
	defer taskClient.Close()

	orchestrator := &booking.Orchestrator{
		Ledger:        ledgerService,
		Repo:          bookingRepo,
		Tasks:         taskClient,
		RetryAttempts: config.AppConfig.LedgerRetryAttempts,
		Logger:        logger,
	}

	bookingService := &booking.DefaultBookingService{
		Repo:         bookingRepo,
		Users:        userRepo,
		Conflicts:    &booking.ConflictDetector{Availability: availRepo, Bookings: bookingRepo},
		Orchestrator: orchestrator,
		Ledger:       ledgerService,
		Notifier:     notificationService,
		Meetings:     meeting.NewRoomProvisioner(""),
		Tasks:        taskClient,
		Locks:        utils.NewKeyedMutex(),
		CancelNotice: time.Duration(config.AppConfig.CancelNoticeHours) * time.Hour,
		ReminderLead: time.Duration(config.AppConfig.ReminderLeadHours) * time.Hour,
		Logger:       logger,
	}

	handlers.UserService = &user.DefaultUserService{Repo: userRepo, Ledger: ledgerService, Logger: logger}
	handlers.BookingService = bookingService
	handlers.AvailabilityService = availabilityService
	handlers.LedgerService = ledgerService
	handlers.PaymentService = payment.NewStripePaymentService(ledgerService, logger)

	// Background worker: compensation settlement, reminders, recovery sweep.
	cron.InitWorker(cron.Deps{
		Orchestrator: orchestrator,
		Ledger:       ledgerService,
		Bookings:     bookingRepo,
		Notifier:     notificationService,
		Tasks:        taskClient,
		Logger:       logger,
	})

	// Create the Gin router.
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.RateLimitMiddleware())

	routes.RegisterRoutes(router)

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
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
