package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exceptionforms/config"
	"exceptionforms/database"
	"exceptionforms/extraction"
	"exceptionforms/handlers"
	"exceptionforms/logger"
	"exceptionforms/middleware"
	"exceptionforms/models"
	"exceptionforms/ratelimit"
	"exceptionforms/storage"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is fine; the environment is used as is.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet.
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		zap.NewExample().Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	middleware.SetJWTSecret(cfg.JWTSecret)

	if err := database.Init(cfg); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() { _ = database.Close() }()

	limiter, err := newLimiter(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize login rate limiter", zap.Error(err))
	}

	var extractor extraction.Extractor
	if cfg.ExtractorURL != "" {
		extractor = extraction.NewHTTPExtractor(cfg.ExtractorURL, cfg.ExtractorAPIKey, cfg.ExtractorTimeout)
	} else {
		logger.Warn("EXTRACTOR_URL is not set; uploads will stay pending")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           newRouter(cfg, limiter, storage.New(cfg.UploadDir), extractor),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.ServerPort), zap.String("db_type", cfg.DBType))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}
}

// newLimiter shares login attempt counts through Redis when REDIS_ADDR is
// set, and keeps them per process otherwise.
func newLimiter(cfg *config.Config) (ratelimit.Limiter, error) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemory(cfg.LoginRateWindow, cfg.LoginRateLimit), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := ratelimit.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewRedis(client, "login", cfg.LoginRateWindow, cfg.LoginRateLimit), nil
}

func newRouter(cfg *config.Config, limiter ratelimit.Limiter, store *storage.Store, extractor extraction.Extractor) http.Handler {
	authHandler := handlers.NewAuthHandler(cfg, limiter)
	formHandler := handlers.NewFormHandler(cfg)
	uploadHandler := handlers.NewUploadHandler(cfg, store, extractor)
	modeHandler := handlers.NewModeHandler()
	auditHandler := handlers.NewAuditHandler()

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(logger.Named("http")))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Metrics)
	router.Use(middleware.CORS(cfg.CORSOrigin))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	// Public routes
	router.Post("/api/login", authHandler.Login)
	router.Post("/api/register", authHandler.Register)

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)

		// Reachable while a password change is pending
		r.Post("/api/logout", authHandler.Logout)
		r.Get("/api/me", authHandler.Me)
		r.Post("/api/change-password", authHandler.ChangePassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePasswordChange)

			r.Get("/api/dashboard", formHandler.Dashboard)
			r.Get("/api/form/{id}", formHandler.GetForm)
			r.Put("/api/form/{id}", formHandler.UpdateForm)
			r.Delete("/api/form/{id}", formHandler.DeleteForm)
			r.Get("/api/forms/export", formHandler.ExportCSV)

			r.Get("/api/extraction-mode", modeHandler.Get)
			r.Post("/api/extraction-mode", modeHandler.Set)
			r.Get("/api/audit-trail", auditHandler.List)

			r.Group(func(r chi.Router) {
				r.Use(maxBody(cfg.MaxUploadBytes()))
				r.Post("/upload", uploadHandler.Upload)
				r.Post("/upload/hourly", uploadHandler.UploadHourly)
				r.Post("/upload/supervisor", uploadHandler.UploadSupervisor)
			})

			// Admin only
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Post("/api/forms/cleanup-duplicates", formHandler.CleanupDuplicates)
			})
		})
	})

	return router
}

func maxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
