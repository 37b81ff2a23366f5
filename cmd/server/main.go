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
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"topology-sim-engine/pkg/api"
	"topology-sim-engine/pkg/clients/graph"
	"topology-sim-engine/pkg/clients/telemetry"
	"topology-sim-engine/pkg/config"
	"topology-sim-engine/pkg/decision"
	"topology-sim-engine/pkg/logger"
	"topology-sim-engine/pkg/metrics"
	"topology-sim-engine/pkg/simulation"
	"topology-sim-engine/pkg/storage"
	"topology-sim-engine/pkg/worker"
)

// @title Topology Simulation Engine API
// @version 1.0
// @description API for predicting the blast radius of service failures and scaling changes across a microservice dependency graph.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@example.com

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

func main() {
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables", nil)
	}

	if err := config.ValidateEnv(); err != nil {
		logger.Error("configuration error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", err)
		os.Exit(1)
	}

	logger.Info("topology_sim_engine_starting", map[string]interface{}{
		"port":          cfg.Server.Port,
		"graphEngine":   cfg.GraphAPI.BaseURL,
		"decisionStore": cfg.SQLite.DBPath,
	})

	store, err := storage.NewDecisionStore(cfg.SQLite.DBPath)
	if err != nil {
		logger.Error("failed to initialize decision store", err)
		os.Exit(1)
	}
	defer store.Close()

	reg := metrics.New(cfg.Metrics.Namespace)

	graphClient := graph.NewClientWithBreaker(cfg.GraphAPI, cfg.Breaker, func(name string, state gobreaker.State) {
		reg.ObserveBreakerState(name, float64(state))
	})
	telemetryClient := telemetry.NewClient(cfg)

	decisionSink := decision.NewSQLiteSink(store)
	simService := simulation.NewService(cfg, graphClient, decisionSink, reg)

	apiHandler := api.NewHandler(cfg, graphClient, simService)
	decisionsHandler := &api.DecisionsHandler{Store: store}
	telemetryHandler := &api.TelemetryHandler{Client: telemetryClient, Cfg: cfg}

	r := chi.NewRouter()

	r.Use(api.CorrelationMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Correlation-Id"},
		MaxAge:           300,
	}))

	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "docs/swagger.json")
	})
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("doc.json"),
	))

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", apiHandler.HealthHandler)
	r.Get("/services", apiHandler.ServicesHandler)
	r.Get("/risk/services/top", apiHandler.TopRiskHandler)
	r.Post("/simulate/failure", apiHandler.SimulateFailureHandler)
	r.Post("/simulate/scale", apiHandler.SimulateScalingHandler)
	r.Get("/dependency-graph/snapshot", apiHandler.DependencyGraphHandler)

	decisionsHandler.RegisterRoutes(r)
	r.Mount("/telemetry", telemetryHandler.Routes())

	pollWorker := worker.NewPollWorker(cfg, graphClient, telemetryClient)
	pollWorker.Start()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", err)
	}

	pollWorker.Stop()
	telemetryClient.Close()

	logger.Info("server_exited", nil)
}
