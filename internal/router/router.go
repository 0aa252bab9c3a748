// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/promptmint/promptmint-backend/internal/config"
	"github.com/promptmint/promptmint-backend/internal/handlers"
	"github.com/promptmint/promptmint-backend/internal/middleware"
	"github.com/promptmint/promptmint-backend/internal/services"
	"github.com/promptmint/promptmint-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Initialize services
	versionService := services.NewVersionService(db)
	cartService := services.NewCartService(db)
	orderService := services.NewOrderService(db, versionService)
	ledgerService := services.NewLedgerService(db, cfg)
	payoutService := services.NewPayoutService(db, cfg, ledgerService)
	paymentService := services.NewPaymentService(db, cfg, ledgerService, cartService)
	reportService := services.NewReportService(db)
	storageService, _ := services.NewStorageService(cfg)

	// Initialize handlers
	cartHandler := handlers.NewCartHandler(cartService)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg)
	sellerHandler := handlers.NewSellerHandler(ledgerService, payoutService, reportService)
	adminHandler := handlers.NewAdminHandler(orderService, ledgerService, payoutService, reportService, storageService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Webhook routes (authenticated by signature, not JWT)
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/stripe", paymentHandler.StripeWebhook)
		}

		// Cart routes
		cart := v1.Group("/cart")
		cart.Use(middleware.AuthRequired())
		{
			cart.GET("", cartHandler.GetCart)
			cart.POST("/items", cartHandler.AddItem)
			cart.DELETE("/items/:promptId", cartHandler.RemoveItem)
		}

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.AuthRequired())
		{
			orders.POST("", middleware.CheckoutRateLimit(), orderHandler.CreateOrder)
			orders.GET("", orderHandler.GetOrders)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.POST("/:id/payment-intent", middleware.CheckoutRateLimit(), paymentHandler.CreatePaymentIntent)
		}

		// Seller routes
		seller := v1.Group("/seller")
		seller.Use(middleware.AuthRequired(), middleware.SellerRequired())
		{
			seller.GET("/balance", sellerHandler.GetBalance)
			seller.GET("/ledger", sellerHandler.GetLedgerEntries)
			seller.POST("/payouts", sellerHandler.RequestPayout)
			seller.GET("/payouts", sellerHandler.GetPayouts)
			seller.GET("/reports/sales", sellerHandler.GetSalesReport)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/reports/sales", adminHandler.GetSalesReport)

			adminOrders := admin.Group("/orders")
			{
				adminOrders.GET("", adminHandler.GetOrders)
				adminOrders.POST("/:id/refund", adminHandler.RefundOrder)
			}

			adminLedger := admin.Group("/ledger")
			{
				adminLedger.GET("", adminHandler.GetLedgerEntries)
				adminLedger.POST("/adjustments", adminHandler.PostAdjustment)
				adminLedger.POST("/mature", adminHandler.MaturePendingBalances)
				adminLedger.POST("/export", adminHandler.ExportLedger)
			}

			adminPayouts := admin.Group("/payouts")
			{
				adminPayouts.GET("", adminHandler.GetPayouts)
				adminPayouts.POST("/:id/processing", adminHandler.MarkPayoutProcessing)
				adminPayouts.POST("/:id/paid", adminHandler.MarkPayoutPaid)
				adminPayouts.POST("/:id/failed", adminHandler.MarkPayoutFailed)
			}
		}
	}

	return r
}
