package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/atelio-app/atelio_backend/config"
	"github.com/atelio-app/atelio_backend/controllers"
	"github.com/atelio-app/atelio_backend/middleware"
	"github.com/atelio-app/atelio_backend/queue"
	"github.com/atelio-app/atelio_backend/repositories"
	"github.com/atelio-app/atelio_backend/routes"
	"github.com/atelio-app/atelio_backend/services"
	"github.com/atelio-app/atelio_backend/websocket"
	"github.com/atelio-app/atelio_backend/workers"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	client, err := config.ConnectDB(rootCtx)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client.Disconnect(disconnectCtx)
	}()

	// Connect to Redis; without it the queues fall back to an
	// in-process broker (jobs do not survive a restart)
	var broker queue.Broker
	redisClient, err := config.ConnectRedis(rootCtx)
	if err != nil {
		log.Printf("Warning: %v", err)
		log.Println("Falling back to in-memory job queues")
		broker = queue.NewMemoryBroker()
	} else {
		log.Println("Connected to Redis")
		broker = queue.NewRedisBroker(redisClient)
		defer redisClient.Close()
	}

	// Repositories
	commissionRepo := repositories.NewCommissionRepository(client)
	auditRepo := repositories.NewAuditLogRepository(client)

	// Websocket hub for async outcome pushes
	wsHub := websocket.NewHub()
	go wsHub.Run()
	defer wsHub.Stop()

	// Workers
	gateway := services.NewSimulatedPaymentGateway()
	emailSender := services.NewEmailSenderFromEnv()

	paymentWorker := workers.NewPaymentWorker(commissionRepo, auditRepo, gateway, broker, wsHub)
	notificationWorker := workers.NewNotificationWorker(emailSender, broker)

	paymentResults := make(chan queue.JobResult, 64)
	notificationResults := make(chan queue.JobResult, 64)
	go queue.LogResults(rootCtx, paymentResults)
	go queue.LogResults(rootCtx, notificationResults)

	go func() {
		if err := paymentWorker.Run(rootCtx, paymentResults); err != nil && err != context.Canceled {
			log.Printf("Payment worker stopped: %v", err)
		}
	}()
	go func() {
		if err := notificationWorker.Run(rootCtx, notificationResults); err != nil && err != context.Canceled {
			log.Printf("Notification worker stopped: %v", err)
		}
	}()
	log.Println("Workers running, monitoring payment and notification queues")

	// Create a new Echo instance
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	rateLimiter := middleware.NewRateLimiter()

	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())

	e.GET("/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "OK",
			"message": "Atelio Backend is running",
			"version": "1.0",
		})
	})

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	// Controllers and routes
	commissionController := controllers.NewCommissionController(commissionRepo, broker)
	routes.RegisterCommissionRoutes(e, commissionController, wsHub)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	go func() {
		if err := e.Start(":" + port); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
