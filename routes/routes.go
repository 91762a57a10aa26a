package routes

import (
	"net/http"
	"time"

	"sessionledger/handlers"
	"sessionledger/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires every endpoint group onto the router.
func RegisterRoutes(r *gin.Engine) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Admin-Key"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	registerHealthRoute(r)
	registerAuthRoutes(r)
	registerBookingRoutes(r)
	registerAvailabilityRoutes(r)
	registerLedgerRoutes(r)
	registerAdminRoutes(r)
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func registerAuthRoutes(r *gin.Engine) {
	api := r.Group("/api/users")
	{
		api.POST("/register", handlers.Register)
		api.POST("/login", handlers.Login)

		// Protected routes (Require Authentication)
		api.Use(middleware.JWTAuthMiddleware())
		api.POST("/logout", handlers.Logout)
		api.GET("/me", handlers.GetProfile)
		api.PUT("/device-token", handlers.UpdateDeviceToken)
	}
}

func registerBookingRoutes(r *gin.Engine) {
	api := r.Group("/api/bookings")
	{
		api.Use(middleware.JWTAuthMiddleware())
		api.POST("", handlers.RequestBooking)
		api.GET("", handlers.ListBookings)
		api.GET("/:id", handlers.GetBooking)
		api.POST("/:id/confirm", handlers.ConfirmBooking)
		api.POST("/:id/cancel", handlers.CancelBooking)
		api.POST("/:id/complete", handlers.CompleteBooking)
		api.POST("/:id/feedback", handlers.SubmitFeedback)
	}
}

func registerAvailabilityRoutes(r *gin.Engine) {
	// Day availability is readable by any authenticated user; rule and
	// exception management applies to the caller's own calendar.
	api := r.Group("/api/availability")
	{
		api.Use(middleware.JWTAuthMiddleware())
		api.GET("/day/:providerID", handlers.GetDayAvailability)

		api.PUT("/rules", handlers.UpsertAvailabilityRule)
		api.GET("/rules", handlers.ListAvailabilityRules)
		api.DELETE("/rules/:id", handlers.DeleteAvailabilityRule)

		api.POST("/exceptions", handlers.AddAvailabilityException)
		api.GET("/exceptions", handlers.ListAvailabilityExceptions)
		api.DELETE("/exceptions/:id", handlers.DeleteAvailabilityException)
	}
}

func registerLedgerRoutes(r *gin.Engine) {
	api := r.Group("/api/credits")
	{
		api.Use(middleware.JWTAuthMiddleware())
		api.GET("/balance", handlers.GetBalance)
		api.GET("/transactions", handlers.ListTransactions)
		api.POST("/purchase", handlers.CreatePurchase)
		api.POST("/purchase/confirm", handlers.ConfirmPurchase)
	}
}

func registerAdminRoutes(r *gin.Engine) {
	api := r.Group("/api/admin")
	{
		api.Use(middleware.AdminAuthMiddleware())
		api.POST("/credits/adjust", handlers.AdminAdjustCredits)
	}
}
