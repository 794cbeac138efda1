package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skylinehq/skyline/internal/authz"
	"github.com/skylinehq/skyline/internal/credentials"
	"github.com/skylinehq/skyline/internal/kafka"
	"github.com/skylinehq/skyline/internal/orchestration"
	"github.com/skylinehq/skyline/internal/postgres"
	"github.com/skylinehq/skyline/internal/provider/kubernetes"
	"github.com/skylinehq/skyline/internal/provider/noop"
	redisstore "github.com/skylinehq/skyline/internal/redis"
	"github.com/skylinehq/skyline/internal/registry"
	"github.com/skylinehq/skyline/internal/saga"
	"github.com/skylinehq/skyline/internal/taskstore"
	"github.com/skylinehq/skyline/pkg/telemetry"
	"github.com/skylinehq/skyline/services/controlplane"
	"github.com/skylinehq/skyline/services/controlplane/config"
	"github.com/skylinehq/skyline/services/controlplane/handler"
	"github.com/skylinehq/skyline/services/controlplane/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control-plane server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-port", "8080", "HTTP server port")
	serveCmd.Flags().String("metrics-addr", ":9095", "Prometheus metrics server address")
	serveCmd.Flags().String("kafka-brokers", "localhost:9092", "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address (host:port)")
	serveCmd.Flags().String("accounts-file", "accounts.yaml", "account definitions file")
	serveCmd.Flags().String("kube-api-url", "", "Kubernetes API server base URL; empty disables the kubernetes provider")
	serveCmd.Flags().String("kube-token", "", "Kubernetes bearer token")
	serveCmd.Flags().Bool("kube-insecure", false, "skip TLS verification for the Kubernetes API")
	serveCmd.Flags().Int("rate-limit", 0, "max submissions per account per window; 0 disables")
	serveCmd.Flags().Duration("rate-limit-window", time.Minute, "rate limit window")
	serveCmd.Flags().Duration("task-retention", time.Hour, "retention of terminal tasks in memory")
	serveCmd.Flags().String("reaper-schedule", "@every 5m", "cron schedule for the retention reaper")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("http_port", serveCmd.Flags(), "http-port")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	bindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	bindFlag("accounts_file", serveCmd.Flags(), "accounts-file")
	bindFlag("kube_api_url", serveCmd.Flags(), "kube-api-url")
	bindFlag("kube_token", serveCmd.Flags(), "kube-token")
	bindFlag("kube_insecure", serveCmd.Flags(), "kube-insecure")
	bindFlag("rate_limit", serveCmd.Flags(), "rate-limit")
	bindFlag("rate_limit_window", serveCmd.Flags(), "rate-limit-window")
	bindFlag("task_retention", serveCmd.Flags(), "task-retention")
	bindFlag("reaper_schedule", serveCmd.Flags(), "reaper-schedule")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = viper.BindEnv("postgres_dsn", "POSTGRES_DSN")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "controlplane")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "controlplane", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	accounts, err := credentials.LoadFile(cfg.AccountsFile)
	if err != nil {
		return fmt.Errorf("accounts: %w", err)
	}

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	producer := kafka.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	redisClient := redisstore.NewClient(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	mirror := redisstore.NewTaskMirror(redisClient)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = postgres.Migrate(migrateCtx, pool)
	cancel()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	sagaRepo := postgres.NewSagaRepository(pool)
	archive := postgres.NewTaskArchive(pool)

	// ── orchestration core ────────────────────────────────────────────────────
	store := taskstore.NewStore(logger)
	reg := registry.NewRegistry()

	engine := saga.NewEngine(sagaRepo, nil, saga.WithLogger(logger))

	if err := noop.Register(reg); err != nil {
		return fmt.Errorf("noop provider: %w", err)
	}

	var preProcessors []orchestration.DescriptionPreProcessor
	if cfg.KubeAPIURL != "" {
		kubeClient := kubernetes.NewHTTPClient(cfg.KubeAPIURL, cfg.KubeToken, cfg.KubeInsecure)
		plugin := kubernetes.NewPlugin(kubeClient, accounts, kubernetes.WithSagaEngine(engine))
		if err := plugin.Register(reg); err != nil {
			return fmt.Errorf("kubernetes provider: %w", err)
		}
		engine.RegisterFlows(plugin.Flows()...)
		preProcessors = append(preProcessors, kubernetes.LocationAliasPreProcessor{})
	}

	gate := authz.NewGate(
		[]authz.DescriptionAuthorizer{&authz.PermissionsAuthorizer{Accounts: accounts}},
		[]authz.AllowedAccountsValidator{&authz.AllowListValidator{}},
		logger,
	)

	hooks := []orchestration.EventHook{
		kafka.NewAuditHook(producer),
		redisstore.NewMirrorHook(mirror),
		postgres.NewArchiveHook(archive),
	}
	processor := orchestration.NewProcessor(store,
		orchestration.WithHooks(hooks...),
		orchestration.WithLogger(logger),
	)
	operations := orchestration.NewOperationsService(reg, gate, preProcessors, processor, logger)

	// Resume sagas interrupted by the previous shutdown before traffic.
	resumeCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	err = engine.Resume(resumeCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("saga resume: %w", err)
	}

	var limiter redisstore.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = redisstore.NewRateLimiter(redisClient, cfg.RateLimit, cfg.RateLimitWindow)
	}

	restHandler := handler.NewREST(operations, store, mirror, archive, limiter, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1MB limit
	r.Get("/healthz", restHandler.Healthz)
	r.Get("/readyz", restHandler.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ops", restHandler.SubmitOperations)
		r.Get("/tasks/{id}", restHandler.GetTask)
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// ── Prometheus metrics ────────────────────────────────────────────────────
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger)

	// ── retention reaper ──────────────────────────────────────────────────────
	reaper := controlplane.NewReaper(store, archive, cfg.TaskRetention, logger)
	if err := reaper.Start(cfg.ReaperSchedule); err != nil {
		return fmt.Errorf("reaper: %w", err)
	}

	go func() {
		logger.Info("controlplane HTTP starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()
	reaper.Stop()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}
