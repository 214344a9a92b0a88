package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codementor-labs/codementor/internal/api"
	"github.com/codementor-labs/codementor/internal/audit"
	"github.com/codementor-labs/codementor/internal/auth"
	"github.com/codementor-labs/codementor/internal/chat"
	"github.com/codementor-labs/codementor/internal/config"
	"github.com/codementor-labs/codementor/internal/database"
	"github.com/codementor-labs/codementor/internal/llm"
	"github.com/codementor-labs/codementor/internal/middleware"
	inats "github.com/codementor-labs/codementor/internal/nats"
	iredis "github.com/codementor-labs/codementor/internal/redis"
	"github.com/codementor-labs/codementor/internal/server"
	"github.com/codementor-labs/codementor/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	natsClient, err := inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Error("connecting to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	publisher := inats.NewPublisher(natsClient.JetStream())

	// Auth
	jwtManager := auth.NewJWTManager(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)
	authSvc := auth.NewService(jwtManager, redisClient)

	// Users
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	userHandler := users.NewHandler(userSvc, publisher)
	authHandler := auth.NewHandler(authSvc, userSvc)

	// Chat core
	providers, err := llm.Build(ctx, cfg.LLM)
	if err != nil {
		slog.Error("building providers", "error", err)
		os.Exit(1)
	}
	estimator := chat.NewEstimator()
	trimmer := chat.NewTrimmer(estimator)
	orchestrator := chat.NewOrchestrator(providers, trimmer, estimator,
		cfg.LLM.MaxResponseTokens, cfg.LLM.SafetyMargin, cfg.LLM.RetryBackoff)
	registry := chat.NewRegistry(cfg.Limits.BucketCapacity, cfg.Limits.RefillRate, cfg.Limits.DailyQuota, time.Now)
	historyStore := chat.NewHistoryStore(pool)
	controller := chat.NewController(registry, orchestrator, trimmer, historyStore, publisher,
		chat.ControllerConfig{
			MaxCodeLines:          cfg.Limits.MaxCodeLines,
			HistoryMaxMessages:    cfg.Limits.HistoryMaxMessages,
			HistoryRetainedBudget: cfg.Limits.HistoryRetainedBudget,
		}, time.Now)
	chatHandler := chat.NewHandler(controller)

	// Audit trail
	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)
	auditConsumer := audit.NewConsumer(auditRepo, inats.NewConsumerManager(natsClient.JetStream()))
	go func() {
		if err := auditConsumer.Start(ctx); err != nil {
			slog.Error("audit consumer stopped", "error", err)
		}
	}()

	authLimiter := middleware.NewRateLimiter(redisClient, cfg.Limits.AuthRateLimitMax, cfg.Limits.AuthRateLimitWindow)

	router := api.NewRouter(api.Handlers{
		AuthMiddleware: auth.Middleware(authSvc),
		RequireAdmin:   userHandler.RequireAdmin,
		AuthRateLimit:  authLimiter.Middleware,

		Register: authHandler.Register,
		Login:    authHandler.Login,
		Refresh:  authHandler.Refresh,
		Logout:   authHandler.Logout,

		Chat:             chatHandler.Chat,
		ChatHistory:      chatHandler.History,
		ClearChatHistory: chatHandler.ClearHistory,

		Me:        userHandler.Me,
		Limits:    chatHandler.Limits,
		AuditList: auditHandler.List,

		PromoteUser: userHandler.Promote,
		DemoteUser:  userHandler.Demote,

		Readiness: readinessHandler(pool, natsClient),
	}, middleware.CORS(nil))

	srv := server.New(cfg.Server, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func readinessHandler(pool *pgxpool.Pool, natsClient *inats.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			api.JSONErrorMessage(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		if !natsClient.Healthy() {
			api.JSONErrorMessage(w, http.StatusServiceUnavailable, "nats unavailable")
			return
		}
		api.JSONMessage(w, http.StatusOK, "ready")
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
