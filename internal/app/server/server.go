package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"paycalc/internal/domain/audit"
	"paycalc/internal/domain/auth"
	"paycalc/internal/domain/payroll"
	cryptoutil "paycalc/internal/platform/crypto"
	"paycalc/internal/platform/config"
	"paycalc/internal/platform/db"
	"paycalc/internal/platform/jobs"
	"paycalc/internal/platform/metrics"
	"paycalc/internal/platform/storage"
	authhandler "paycalc/internal/transport/http/handlers/auth"
	payrollhandler "paycalc/internal/transport/http/handlers/payroll"
	"paycalc/internal/transport/http/middleware"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Config  config.Config
	Logger  *slog.Logger
	DB      Pinger
	Payroll payrollhandler.Service
	Jobs    payrollhandler.JobRunner
	Audit   audit.Recorder
	Auth    authhandler.Authenticator
	Metrics *metrics.Collector
}

func Run() error {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect failed: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
	}

	files, err := storage.New(ctx, storage.Config{
		Backend:   cfg.StorageBackend,
		Dir:       cfg.StorageDir,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return fmt.Errorf("storage setup failed: %w", err)
	}
	crypto, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption setup failed: %w", err)
	}

	collector := metrics.New()
	runner := payroll.NewRunner(payroll.RunnerOptions{Workers: cfg.PayrollWorkers, Logger: logger, Observer: collector})
	service := payroll.NewService(payroll.NewStore(pool), payroll.ServiceOptions{
		Crypto:           crypto,
		Files:            files,
		Runner:           runner,
		StrictTaxOverlap: cfg.StrictTaxOverlap,
		Logger:           logger,
	})
	jobService := jobs.New(pool, jobs.Options{QueueSize: cfg.JobQueueSize, Logger: logger, Observer: collector})
	jobService.Start(ctx)

	authService := auth.NewService(cfg.JWTSecret, cfg.JWTTTL, auth.Operator{
		Email:        cfg.OperatorEmail,
		PasswordHash: cfg.OperatorPasswordHash,
		TenantID:     cfg.OperatorTenantID,
	}, logger)

	router := NewRouter(Deps{
		Config:  cfg,
		Logger:  logger,
		DB:      pool,
		Payroll: service,
		Jobs:    jobService,
		Audit:   audit.New(pool),
		Auth:    authService,
		Metrics: collector,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("paycalc server listening", "addr", cfg.Addr, "env", cfg.Environment)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			stop()
			jobService.Wait()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown incomplete", "err", err)
		}
	}
	jobService.Wait()
	return nil
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var recorder middleware.RequestRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	router.Use(middleware.Metrics(recorder))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.DB == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled && deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		authhandler.NewHandler(deps.Auth).RegisterRoutes(r)
		payrollhandler.NewHandler(deps.Payroll, deps.Jobs, deps.Audit, auth.RoleStore{}, logger).RegisterRoutes(r)
	})

	return router
}
