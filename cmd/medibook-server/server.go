package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/config"
	"github.com/medibook/medibook/internal/domain/admin"
	"github.com/medibook/medibook/internal/domain/appointment"
	"github.com/medibook/medibook/internal/domain/doctor"
	"github.com/medibook/medibook/internal/domain/patient"
	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/internal/platform/cache"
	"github.com/medibook/medibook/internal/platform/db"
	"github.com/medibook/medibook/internal/platform/jobs"
	"github.com/medibook/medibook/internal/platform/media"
	"github.com/medibook/medibook/internal/platform/middleware"
	"github.com/medibook/medibook/internal/platform/notification"
	"github.com/medibook/medibook/internal/platform/payment"
)

const (
	requestTimeout = 30 * time.Second
	jsonBodyLimit  = "1M"
	uploadLimit    = "6M"
)

// app is the fully wired HTTP server.
type app struct {
	echo    *echo.Echo
	auditor *appointment.Auditor
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires services and routes over st. Optional integrations (redis,
// razorpay, smtp) fall back to in-process implementations when unset.
func buildApp(ctx context.Context, cfg *config.Config, st *stores, logger zerolog.Logger) (*app, error) {
	a := &app{}
	checks := append([]db.Check(nil), st.checks...)

	var listCache cache.Cache = cache.NewMemory()
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisURL, "medibook:")
		if err != nil {
			return nil, err
		}
		listCache = r
		checks = append(checks, r.Check())
		a.closers = append(a.closers, func() { _ = r.Close() })
		logger.Info().Msg("doctor list cache backed by redis")
	}

	store, err := media.NewLocalStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		return nil, err
	}

	var payments payment.Processor
	if cfg.PaymentsEnabled() {
		payments = payment.NewRazorpayClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	} else {
		logger.Warn().Msg("RAZORPAY_KEY_ID not set; using the in-memory payment processor")
		payments = payment.NewFake()
	}

	var sender notification.EmailSender
	if cfg.MailEnabled() {
		sender = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.MailFrom(),
		})
	} else {
		sender = notification.NewLogSender(logger)
	}
	notifier := notification.NewNotifier(sender, notification.NewTemplateEngine(), logger)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)

	doctorSvc := doctor.NewService(st.doctors, listCache, cfg.DoctorCacheTTL, store, tokens, logger)
	patientSvc := patient.NewService(st.patients, store, tokens, logger)
	adminSvc := admin.NewService(auth.NewAdminCredential(cfg.AdminEmail, cfg.AdminPassword), tokens, logger)
	apptSvc := appointment.NewService(appointment.Deps{
		Appointments: st.appointments,
		Doctors:      st.doctors,
		Patients:     st.patients,
		Ledger:       st.doctors,
		Tx:           st.tx,
		Lists:        doctorSvc,
		Payments:     payments,
		Currency:     cfg.Currency,
		Notifier:     notifier,
		Logger:       logger,
	})
	a.auditor = appointment.NewAuditor(st.doctors, st.appointments, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID,
			"token", "dtoken", "atoken",
		},
	}))
	e.Use(middleware.BodyLimit(jsonBodyLimit, uploadLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))

	e.GET("/health", db.HealthHandler(version, checks...))
	e.Static("/media", store.Dir())

	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	api := e.Group("/api", middleware.RateLimit(rl))

	admin.NewHandler(adminSvc).RegisterRoutes(api)
	doctor.NewHandler(doctorSvc).RegisterRoutes(api, tokens)
	patient.NewHandler(patientSvc).RegisterRoutes(api, tokens)
	appointment.NewHandler(apptSvc, a.auditor).RegisterRoutes(api, tokens)

	a.echo = e
	return a, nil
}

func runServer(migrate bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	st, err := openStores(ctx, cfg, logger, migrate)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
		return err
	}
	defer st.Close()

	a, err := buildApp(ctx, cfg, st, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := jobs.NewScheduler(logger)
	if cfg.LedgerAuditSchedule != "" {
		err := scheduler.Add("ledger-audit", cfg.LedgerAuditSchedule, func(ctx context.Context) error {
			_, err := a.auditor.Run(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}
	scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("driver", cfg.StoreDriver).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		scheduler.Stop(context.Background())
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
