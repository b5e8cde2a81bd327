package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roosterplan/rooster-backend/internal/planning/events"
	"github.com/roosterplan/rooster-backend/internal/planning/fairness"
	"github.com/roosterplan/rooster-backend/internal/planning/handler"
	"github.com/roosterplan/rooster-backend/internal/planning/orchestrator"
	"github.com/roosterplan/rooster-backend/internal/planning/repository"
	"github.com/roosterplan/rooster-backend/internal/planning/service"
	"github.com/roosterplan/rooster-backend/internal/planning/shifttype"
	"github.com/roosterplan/rooster-backend/pkg/actor"
	"github.com/roosterplan/rooster-backend/pkg/config"
	"github.com/roosterplan/rooster-backend/pkg/database"
	"github.com/roosterplan/rooster-backend/pkg/httputil"
	"github.com/roosterplan/rooster-backend/pkg/logger"
	"github.com/roosterplan/rooster-backend/pkg/messaging"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation("planner-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("planner-service", cfg.Server.Environment)
	log.Info().Msg("starting Planner Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	bus, err := messaging.NewPublisher(rmq, messaging.ExchangePlanningEvents, "planner-service", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}
	publisher := events.NewPlanningEventPublisher(bus, log)

	// Shift type calendar and registry
	cal, err := shifttype.NewCalendar(cfg.Planning.Timezone, cfg.Planning.Holidays)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid planning calendar configuration")
	}
	registry := shifttype.Defaults()

	// Initialize the planning pipeline
	store := repository.NewPostgresStore(db)
	calc := fairness.New(fairness.Config{
		RankIndividual:     cfg.Fairness.RankIndividual,
		RankSystem:         cfg.Fairness.RankSystem,
		RankBonus:          cfg.Fairness.RankBonus,
		OverPenaltyExp:     cfg.Fairness.OverPenaltyExp,
		OverPenaltyFactor:  cfg.Fairness.OverPenaltyFactor,
		UnderPenaltyFactor: cfg.Fairness.UnderPenaltyFactor,
		Scale:              cfg.Fairness.Scale,
	})
	orch := orchestrator.New(store, registry, cal, calc, cfg.Fairness.HistoryWindowDays, log)
	planningService := service.NewPlanningService(orch, store, publisher, log)

	// Initialize handlers
	planHandler := handler.NewPlanHandler(planningService, cfg.Apply, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(actor.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Name"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "planner-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/planning", func(r chi.Router) {
		planHandler.RegisterRoutes(r)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
