package main

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
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dmcneil/storefront/internal/auth"
	"github.com/dmcneil/storefront/internal/background"
	"github.com/dmcneil/storefront/internal/config"
	"github.com/dmcneil/storefront/internal/database"
	"github.com/dmcneil/storefront/internal/handlers"
	"github.com/dmcneil/storefront/internal/middleware"
	"github.com/dmcneil/storefront/internal/models"
	"github.com/dmcneil/storefront/internal/ratelimit"
	"github.com/dmcneil/storefront/internal/repositories"
	"github.com/dmcneil/storefront/internal/routes"
	"github.com/dmcneil/storefront/internal/services"
	pkgauth "github.com/dmcneil/storefront/pkg/auth"
	pkghttp "github.com/dmcneil/storefront/pkg/http"
	pkglogger "github.com/dmcneil/storefront/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 60*time.Second)
	if err := database.Migrate(migrateCtx, db.Pool); err != nil {
		cancelMigrate()
		logger.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cancelMigrate()
	logger.Info("database migrations applied")

	principalRepo := repositories.NewPrincipalRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	credentialManager := auth.NewCredentialManager(cfg.Auth.SigningSecret)

	var totpManager *auth.TOTPManager
	if cfg.Auth.TOTPEncryptionKey != "" {
		totpManager, err = auth.NewTOTPManager([]byte(cfg.Auth.TOTPEncryptionKey), cfg.Auth.TOTPIssuer)
		if err != nil {
			logger.Error("failed to initialize TOTP manager", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		logger.Warn("TOTP_ENCRYPTION_KEY not set, staff TOTP enrollment disabled")
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   100,
		RandomDelayMs: 50,
	})

	var smsService services.SMSService
	if cfg.Server.Env == "production" {
		smsService, err = services.NewAWSSNSSMSService(cfg.Delivery.AWSRegion, cfg.Delivery.SMSSenderID, logger)
		if err != nil {
			logger.Error("failed to initialize SMS delivery", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		smsService = services.NewNoopSMSService(logger)
	}

	var alertService services.AlertService = services.NoopAlertService{}
	if cfg.Delivery.AlertsEnabled && cfg.Delivery.AlertFromEmail != "" {
		alertService, err = services.NewAWSSESAlertService(cfg.Delivery.AWSRegion, cfg.Delivery.AlertFromEmail, logger)
		if err != nil {
			logger.Error("failed to initialize lockout alerts", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	otpService := services.NewOTPService(principalRepo, smsService, alertService, logger, auditLogger, cfg.OTP)
	authService := services.NewAuthService(principalRepo, sessionRepo, credentialManager, totpManager, timingDelay, logger, auditLogger, cfg.Auth)

	governor := ratelimit.New(ratelimit.DefaultPolicies(), cfg.RateLimit.RetentionHorizon, logger)
	governor.Start(cfg.RateLimit.SweepInterval)
	defer governor.Stop()

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	cleanupManager := background.NewCleanupManager(sessionRepo, logger, cfg.Auth.CleanupInterval)
	go cleanupManager.Start(cleanupCtx)
	defer cleanupManager.Stop()

	if err := ensureOwner(context.Background(), principalRepo, logger); err != nil {
		logger.Error("failed to ensure owner account", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{Secure: cfg.Server.Env == "production"}

	authenticator := auth.NewAuthenticator(credentialManager, sessionRepo, ipConfig, logger)
	authHandler := handlers.NewAuthHandler(otpService, authService, ipConfig, cookieConfig, cfg.Auth)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))
	router.Use(middleware.GlobalIPRateLimit(300))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"unhealthy","database":"down"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"healthy","database":"up"}`)
	})

	routes.RegisterRoutes(router, authHandler, authenticator, governor, ipConfig)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Server.Port),
			slog.String("env", cfg.Server.Env),
		)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
			if err := server.Close(); err != nil {
				logger.Error("forced shutdown failed", slog.String("error", err.Error()))
			}
		}
	}

	logger.Info("server stopped")
}

// ensureOwner bootstraps the first owner account from the environment so a
// fresh deployment is never locked out of the back office. Does nothing once
// any owner exists.
func ensureOwner(ctx context.Context, principals *repositories.PrincipalRepository, logger *slog.Logger) error {
	email := strings.ToLower(strings.TrimSpace(os.Getenv("OWNER_EMAIL")))
	password := os.Getenv("OWNER_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	count, err := principals.CountByRole(ctx, models.RoleOwner)
	if err != nil {
		return fmt.Errorf("failed to count owner accounts: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash owner password: %w", err)
	}

	principal, err := principals.CreateStaff(ctx, email, hash, models.RoleOwner, nil)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil
		}
		return fmt.Errorf("failed to create owner account: %w", err)
	}

	logger.Info("bootstrap owner account created", slog.Int64("principal_id", principal.ID))
	return nil
}

func logLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
