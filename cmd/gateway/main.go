package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sentinel-ai/gateway/pkg/audit"
	"github.com/sentinel-ai/gateway/pkg/auth"
	"github.com/sentinel-ai/gateway/pkg/common/config"
	"github.com/sentinel-ai/gateway/pkg/common/database"
	"github.com/sentinel-ai/gateway/pkg/common/kafka"
	"github.com/sentinel-ai/gateway/pkg/common/logger"
	"github.com/sentinel-ai/gateway/pkg/detect"
	"github.com/sentinel-ai/gateway/pkg/gateway/middleware"
	"github.com/sentinel-ai/gateway/pkg/gateway/routes"
	"github.com/sentinel-ai/gateway/pkg/policy"
	"github.com/sentinel-ai/gateway/pkg/redact"
	"github.com/sentinel-ai/gateway/pkg/restore"
	"github.com/sentinel-ai/gateway/pkg/suggest"
	"github.com/sentinel-ai/gateway/pkg/token"
	"github.com/sentinel-ai/gateway/pkg/verify"
)

func main() {
	logger.Init()
	cfg := config.Load()

	// Persistence
	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	redisClient := database.GetRedis()

	keyRepo := auth.NewGormRepository(db)
	if err := keyRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("API key migration failed")
	}
	auditRepo := audit.NewGormRepository(db)
	if err := auditRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Audit log migration failed")
	}

	keys := auth.NewService(keyRepo)
	tokens := token.NewRedisStore(redisClient)

	// Policy engine
	policies := policy.NewEngine()
	if cfg.PolicyFile != "" {
		if err := policies.LoadFile(cfg.PolicyFile); err != nil {
			logger.Log.WithError(err).WithField("file", cfg.PolicyFile).Fatal("Failed to load policy file")
		}
	}
	if _, err := policies.Resolve(cfg.DefaultPolicyContext, nil); err != nil {
		logger.Log.WithError(err).Fatal("Default policy context is not registered")
	}

	// Detection: external analyzer when configured, built-in rules otherwise
	var detector detect.Detector
	if cfg.DetectorBaseURL != "" {
		detector = detect.NewHTTPDetector(cfg.DetectorBaseURL, cfg.DetectorTimeout)
		logger.Log.WithField("url", cfg.DetectorBaseURL).Info("Using external detection service")
	} else {
		rules, err := detect.LoadRules(cfg.DetectorRules)
		if err != nil {
			logger.Log.WithError(err).Warn("Falling back to built-in detection rules")
		}
		detector, err = detect.NewRegexDetector(rules)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to compile detection rules")
		}
	}

	orchestrator := redact.NewOrchestrator(detector, tokens, cfg.TokenTTL)
	restorer := restore.NewService(tokens)

	// Async verification
	thresholds := verify.Thresholds{
		Log:   cfg.LogThreshold,
		Alert: cfg.AlertThreshold,
		Purge: cfg.PurgeThreshold,
	}
	scorer := verify.NewOllamaScorer(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaTimeout, cfg.RiskMode, thresholds)
	alerts := kafka.NewProducer(cfg.AlertTopic)
	pipeline, err := verify.NewPipeline(scorer, tokens, alerts, thresholds, cfg.OllamaTimeout, cfg.VerifyWorkers, cfg.VerifyQueueSize)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to start verification pipeline")
	}

	recommender := suggest.NewRecommender(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaTimeout)

	// Router
	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	routes.RegisterHealthRoutes(router, &routes.HealthHandler{
		Critical: map[string]routes.DependencyCheck{
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
			"postgres": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
		Optional: map[string]routes.DependencyCheck{
			"ollama": pingOllama(cfg.OllamaURL),
		},
	})

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	routes.RegisterRedactionRoutes(apiRouter, &routes.RedactionHandler{
		Orchestrator:   orchestrator,
		Policies:       policies,
		Pipeline:       pipeline,
		Recommender:    recommender,
		DefaultContext: cfg.DefaultPolicyContext,
		AllowOverride:  cfg.AllowPolicyOverride,
	})

	admin := &routes.AdminHandler{Keys: keys, Audit: auditRepo}
	routes.RegisterKeyIssuanceRoutes(apiRouter, admin)

	protected := apiRouter.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(keys, auditRepo))
	routes.RegisterRestorationRoutes(protected, &routes.RestorationHandler{
		Restorer: restorer,
		Audit:    auditRepo,
	})
	routes.RegisterAdminRoutes(protected, admin)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Redaction gateway started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Graceful shutdown: stop taking requests, then drain verification jobs
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down redaction gateway")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server shutdown failed")
	}

	pipeline.Stop()

	if err := alerts.Close(); err != nil {
		logger.Log.WithError(err).Error("Kafka producer close failed")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("PostgreSQL close failed")
	}

	logger.Log.Info("Redaction gateway stopped")
}

// pingOllama checks liveness against the tags endpoint next to the
// configured generate URL.
func pingOllama(generateURL string) routes.DependencyCheck {
	client := &http.Client{Timeout: 2 * time.Second}
	tagsURL := strings.TrimSuffix(generateURL, "/api/generate") + "/api/tags"
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, tagsURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("ollama returned %d", resp.StatusCode)
		}
		return nil
	}
}
