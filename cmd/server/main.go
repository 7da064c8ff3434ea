package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/vaultpay/accounts/docs"
	"github.com/vaultpay/accounts/internal/config"
	"github.com/vaultpay/accounts/internal/database"
	"github.com/vaultpay/accounts/internal/events"
	"github.com/vaultpay/accounts/internal/handlers"
	"github.com/vaultpay/accounts/internal/locker"
	mW "github.com/vaultpay/accounts/internal/middleware"
	"github.com/vaultpay/accounts/internal/services"
	"github.com/vaultpay/accounts/internal/store"
)

// @title Account Transfer Service API
// @version 1.0
// @description API for locked, audited fund transfers between accounts
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")
	viper.BindEnv("database.migrations_path", "DATABASE_MIGRATIONS_PATH")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize infrastructure
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	defer redisClient.Close()

	lockCfg := config.LoadLockConfig()
	accountLocker, err := locker.NewRedisLocker(redisClient, locker.Config{
		Lease:      lockCfg.Lease,
		Wait:       lockCfg.Wait,
		RetryDelay: lockCfg.RetryDelay,
	})
	if err != nil {
		log.Fatalf("Failed to initialize account locker: %v", err)
	}

	var publisher events.Publisher
	kafkaCfg := config.LoadKafkaConfig()
	if kafkaCfg.Enabled() {
		kafkaPublisher := events.NewKafkaPublisher(kafkaCfg.Brokers, kafkaCfg.Topic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Printf("Transaction events enabled on topic %s", kafkaCfg.Topic)
	} else {
		log.Println("Transaction events disabled, no Kafka brokers configured")
	}

	// Wire services
	ledgerStore := store.NewPostgresStore(db)
	transferService := services.NewTransferService(ledgerStore, accountLocker, publisher)
	accountService := services.NewAccountService(ledgerStore)
	transferHandler := handlers.NewTransferHandler(transferService, accountService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/transfer/send", transferHandler.SendBalance)
		r.Post("/transaction/cancel", transferHandler.CancelBalance)
		r.Get("/transaction/{transactionId}", transferHandler.QueryTransaction)
		r.Get("/accounts/balance-enquiry", transferHandler.BalanceEnquiry)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
