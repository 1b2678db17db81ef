package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/insoffice/installment-ledger/internal/config"
	"github.com/insoffice/installment-ledger/internal/handler"
	"github.com/insoffice/installment-ledger/internal/logging"
	"github.com/insoffice/installment-ledger/internal/repository"
	"github.com/insoffice/installment-ledger/internal/service"
	"github.com/insoffice/installment-ledger/pkg/response"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Logging, cfg.IsDevelopment())

	// Initialize database
	db, err := initDB(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Initialize Redis
	redisClient := initRedis(cfg)
	defer redisClient.Close()

	// Initialize repositories
	planRepo := repository.NewPlanRepository(db)

	// Initialize service and handlers
	planService := service.NewPlanService(planRepo, redisClient, cfg, logger)
	planHandler := handler.NewPlanHandler(planService, cfg, logger)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	// Setup routes
	router := setupRoutes(planHandler, healthHandler)
	router.Use(response.LoggingMiddleware(logger))

	// Start server
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.GetConnMaxLifetime())

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(planHandler *handler.PlanHandler, healthHandler *handler.HealthHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/plans", planHandler.CreatePlan).Methods("POST")
	api.HandleFunc("/plans/preview", planHandler.PreviewSchedule).Methods("POST")
	api.HandleFunc("/plans/{planId}", planHandler.GetPlan).Methods("GET")
	api.HandleFunc("/plans/{planId}/outstanding", planHandler.GetOutstanding).Methods("GET")
	api.HandleFunc("/plans/{planId}/overdue", planHandler.GetOverdue).Methods("GET")
	api.HandleFunc("/plans/{planId}/next-due", planHandler.GetNextDue).Methods("GET")
	api.HandleFunc("/plans/{planId}/installments/{index}/payment", planHandler.RecordPayment).Methods("POST")
	api.HandleFunc("/plans/{planId}/installments/{index}/payment", planHandler.ReversePayment).Methods("DELETE")
	api.HandleFunc("/plans/{planId}/reschedule", planHandler.Reschedule).Methods("POST")
	api.HandleFunc("/plans/{planId}/cancel", planHandler.CancelPlan).Methods("POST")
	api.HandleFunc("/insured/{insuredId}/plans", planHandler.ListByInsured).Methods("GET")

	return router
}
