package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/config"
	"github.com/medbook/booking/internal/domain/admin"
	"github.com/medbook/booking/internal/domain/identity"
	"github.com/medbook/booking/internal/domain/login"
	"github.com/medbook/booking/internal/domain/otp"
	"github.com/medbook/booking/internal/domain/payment"
	"github.com/medbook/booking/internal/platform/auth"
	"github.com/medbook/booking/internal/platform/blobstore"
	"github.com/medbook/booking/internal/platform/db"
	"github.com/medbook/booking/internal/platform/gateway"
	"github.com/medbook/booking/internal/platform/middleware"
	"github.com/medbook/booking/internal/platform/notification"
	"github.com/medbook/booking/internal/platform/ratelimit"
)

const version = "0.1.0"

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		l := newLogger(true)
		l.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger := newLogger(cfg.IsDev())

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	blobs, err := blobstore.NewFSBlobStore(cfg.UploadDir, "slips", blobstore.Policy{
		MaxSize:      cfg.MaxUploadSize,
		AllowedTypes: blobstore.DefaultAllowedTypes,
	})
	if err != nil {
		return err
	}

	sms, err := newSMSSender(cfg, logger)
	if err != nil {
		return err
	}
	gw, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	fees, err := gateway.LoadFeeSchedule(cfg.FeeScheduleFile)
	if err != nil {
		return err
	}

	codes := otp.NewService(otp.NewRepo(pool), cfg.OTPTTL)
	e := newServer(cfg, logger, pool, services{
		codes:   codes,
		limiter: newLimiter(cfg, pool),
		blobs:   blobs,
		sms:     sms,
		email:   newEmailSender(cfg, logger),
		gateway: gw,
		fees:    fees,
	})

	stop := make(chan struct{})
	if cfg.OTPCleanupInterval > 0 {
		go runCleanup(stop, cfg.OTPCleanupInterval, codes, pgLimiter(pool, cfg), logger)
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(stop)

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// services are the outbound collaborators the HTTP layer is built on.
type services struct {
	codes   *otp.Service
	limiter ratelimit.Limiter
	blobs   blobstore.BlobStore
	sms     notification.SMSSender
	email   notification.EmailSender
	gateway gateway.Gateway
	fees    *gateway.FeeSchedule
}

// newServer builds the echo instance with the middleware chain and every
// route registered.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, s services) *echo.Echo {
	codec := auth.NewTokenCodec([]byte(cfg.JWTSecret), cfg.TokenTTL)
	requireUser := auth.RequireUser(codec)
	requireAdmin := auth.RequireAdmin(codec)

	users := identity.NewUserRepo(pool)
	identitySvc := identity.NewService(users, s.blobs, s.fees.Known)
	adminSvc := admin.NewService(admin.NewAdminRepo(pool), admin.NewActivityRepo(pool), users, s.blobs, logger)
	adminSvc.SetNotifier(s.sms)
	paymentSvc := payment.NewService(payment.NewRepo(pool), users, s.gateway, s.fees, db.NewTxRunner(pool),
		s.email, cfg.PaymentCurrency, logger)
	loginSvc := login.NewService(s.codes, s.limiter, identitySvc, adminSvc, s.sms, codec, login.Options{
		EchoOTP:   cfg.OTPEcho,
		StrictSMS: cfg.IsProduction(),
	}, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger, cfg.IsDev())
	e.Validator = middleware.NewValidator()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(middleware.BodyLimit("1M", strconv.FormatInt(cfg.MaxUploadSize, 10)))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.Audit(logger, adminSvc))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	login.NewHandler(loginSvc, cfg.IsProduction()).RegisterRoutes(e, requireUser)
	identity.NewHandler(identitySvc).RegisterRoutes(e, requireUser)
	payment.NewHandler(paymentSvc).RegisterRoutes(e, requireUser)
	admin.NewHandler(adminSvc).RegisterRoutes(e, requireAdmin)

	return e
}

func newLimiter(cfg *config.Config, pool *pgxpool.Pool) ratelimit.Limiter {
	if l := pgLimiter(pool, cfg); l != nil {
		return l
	}
	return ratelimit.NewMemoryLimiter(cfg.OTPRateLimitMax, cfg.OTPRateLimitWindow)
}

// pgLimiter returns the shared limiter, or nil when windows live in memory.
func pgLimiter(pool *pgxpool.Pool, cfg *config.Config) *ratelimit.PGLimiter {
	if cfg.RateLimitBackend != "postgres" {
		return nil
	}
	return ratelimit.NewPGLimiter(pool, cfg.OTPRateLimitMax, cfg.OTPRateLimitWindow)
}

// newSMSSender returns Twilio, or a log-only sender when SMS_DRY_RUN is set
// or credentials are missing outside production.
func newSMSSender(cfg *config.Config, logger zerolog.Logger) (notification.SMSSender, error) {
	if cfg.SMSDryRun || (!cfg.IsProduction() && cfg.TwilioAccountSID == "") {
		logger.Warn().Msg("SMS delivery disabled: messages are logged only")
		return notification.NewLogSMSSender(logger), nil
	}
	sender, err := notification.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	if err != nil {
		return nil, fmt.Errorf("twilio: %w", err)
	}
	return sender, nil
}

func newEmailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if cfg.SMTPHost == "" {
		logger.Warn().Msg("SMTP_HOST not set: emails are logged only")
		return notification.NewLogEmailSender(logger)
	}
	return notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
}

// newGateway returns the Razorpay adapter. Without keys outside production
// an in-process fake is used so the checkout flow can be exercised locally.
func newGateway(cfg *config.Config, logger zerolog.Logger) (gateway.Gateway, error) {
	if cfg.RazorpayKeyID == "" || cfg.RazorpayKeySecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("razorpay credentials are required in production")
		}
		logger.Warn().Msg("RAZORPAY_KEY_ID not set: using the in-process fake gateway")
		return gateway.NewFake(cfg.JWTSecret), nil
	}
	return gateway.NewRazorpay(gateway.RazorpayConfig{
		KeyID:         cfg.RazorpayKeyID,
		KeySecret:     cfg.RazorpayKeySecret,
		WebhookSecret: cfg.RazorpayWebhookSecret,
		Timeout:       cfg.GatewayTimeout,
	}), nil
}

type codeSweeper interface {
	Cleanup(ctx context.Context) (int64, error)
}

// sweep deletes expired codes and, when windows are shared, finished rate
// limit windows.
func sweep(ctx context.Context, codes codeSweeper, limiter *ratelimit.PGLimiter) (int64, int64, error) {
	n, err := codes.Cleanup(ctx)
	if err != nil {
		return 0, 0, err
	}
	if limiter == nil {
		return n, 0, nil
	}
	w, err := limiter.Cleanup(ctx)
	if err != nil {
		return n, 0, err
	}
	return n, w, nil
}

func runCleanup(stop <-chan struct{}, every time.Duration, codes codeSweeper, limiter *ratelimit.PGLimiter, logger zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			nCodes, nWindows, err := sweep(ctx, codes, limiter)
			cancel()
			if err != nil {
				logger.Error().Err(err).Msg("otp cleanup failed")
				continue
			}
			logger.Debug().Int64("codes", nCodes).Int64("windows", nWindows).Msg("otp cleanup")
		}
	}
}
