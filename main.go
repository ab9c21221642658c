package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"ticket-engine/internal/config"
	"ticket-engine/internal/handlers"
	"ticket-engine/internal/kafka"
	"ticket-engine/internal/logger"
	"ticket-engine/internal/middleware"
	"ticket-engine/internal/notify"
	"ticket-engine/internal/qrsign"
	"ticket-engine/internal/ratelimit"
	"ticket-engine/internal/services"
	"ticket-engine/internal/storage"
)

// Global logger instance
var log *logger.Logger

func main() {
	log = logger.NewLogger()
	defer log.Close()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn("ENV", "Error loading .env file, using environment variables")
	}

	log.LogProcess("STARTUP", "Ticket Engine starting up...")

	cfg := config.Load()
	log.Info("CONFIG", "Configuration loaded successfully")

	codec, err := qrsign.NewCodec(cfg.Ticket.QRSecret)
	if err != nil {
		log.Fatal("CONFIG", "QR_SIGNING_SECRET must be set: "+err.Error())
	}

	log.LogProcess("DATABASE", "Initializing MySQL database...")
	store, err := storage.NewMySQLStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to initialize MySQL: "+err.Error())
	}
	defer store.Close()

	log.LogProcess("KAFKA", "Initializing Kafka producer...")
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MockMode, log)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka producer: "+err.Error())
	}
	defer producer.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	limiter := ratelimit.NewLimiter(redisClient, cfg.Ticket.RateLimitPerMinute, time.Minute)

	mailer := notify.NewMailer(cfg.SMTP, log)
	verifier := services.NewPaymentVerifier(cfg.Stripe.SecretKey, log)

	reservationService := services.NewReservationService(store, producer, cfg.Ticket.LockTTL, log)
	scanService := services.NewScanService(store, codec, producer, cfg.Ticket.AllowUnverifiedScan, log)
	orderService := services.NewOrderService(store, reservationService, verifier, codec, mailer, log)
	log.LogProcess("SERVICE", "All services initialized")

	consumer, err := kafka.NewOrderConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.MockMode, orderService.HandleOrderConfirmed, log)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka consumer: "+err.Error())
	}
	defer consumer.Close()

	reservationHandler := handlers.NewReservationHandler(reservationService, log)
	scanHandler := handlers.NewScanHandler(scanService, log)
	orderHandler := handlers.NewOrderHandler(orderService, log)
	adminHandler := handlers.NewAdminHandler(store, log)
	log.LogProcess("HANDLER", "All handlers initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background lock sweeper keeps abandoned soft locks from starving sales.
	reservationService.StartSweeper(ctx, cfg.Ticket.SweepInterval)

	go func() {
		log.LogKafka("START", "consumer", "Starting Kafka consumer goroutine")
		if err := consumer.Start(ctx); err != nil && err != context.Canceled {
			log.Error("KAFKA", "Consumer error: "+err.Error())
		}
	}()

	router := setupRouter(store, limiter, reservationHandler, scanHandler, orderHandler, adminHandler)
	log.LogProcess("ROUTER", "HTTP router configured")

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.LogProcess("SERVER", "Starting HTTP server on port "+cfg.Server.Port)
		log.Info("STARTUP", "Ticket Engine is ready to accept requests")
		log.Info("STARTUP", "Health check available at: http://localhost"+cfg.Server.Port+"/health")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "Server failed to start: "+err.Error())
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("SHUTDOWN", "Server forced to shutdown: "+err.Error())
	}

	log.Info("SHUTDOWN", "Ticket Engine shutdown completed successfully")
}

func setupRouter(store storage.Store, limiter *ratelimit.Limiter, reservationHandler *handlers.ReservationHandler, scanHandler *handlers.ScanHandler, orderHandler *handlers.OrderHandler, adminHandler *handlers.AdminHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.EnhancedLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimit(limiter, rate.Limit(200), log))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if err := store.HealthCheck(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"service":   "ticket-engine",
			"version":   "1.0.0",
		})
	})

	v1 := router.Group("/api/v1")
	{
		reservations := v1.Group("/reservations")
		{
			reservations.POST("/acquire", reservationHandler.Acquire)
			reservations.POST("/confirm", reservationHandler.Confirm)
			reservations.POST("/release", reservationHandler.Release)
		}

		tickets := v1.Group("/tickets")
		{
			tickets.GET("/available", reservationHandler.ListAvailable)
			tickets.GET("/:number", reservationHandler.GetTicket)
			tickets.POST("/issue", orderHandler.IssueSeatTicket)
		}

		orders := v1.Group("/orders")
		{
			orders.POST("", orderHandler.Create)
			orders.POST("/confirm", orderHandler.Confirm)
			orders.GET("/:id", orderHandler.Get)
		}

		scan := v1.Group("/scan")
		{
			scan.POST("", scanHandler.Scan)
			scan.POST("/verify", scanHandler.Verify)
			scan.POST("/sync", scanHandler.Sync)
			scan.POST("/sync/batch", scanHandler.SyncBatch)
		}

		v1.GET("/tiers", scanHandler.Tiers)

		admin := v1.Group("/admin")
		{
			admin.POST("/seed", adminHandler.Seed)
			admin.POST("/tickets/:number/reset", reservationHandler.Reset)
		}
	}

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}
