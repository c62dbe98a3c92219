package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/telecare/telecare/internal/config"
	"github.com/telecare/telecare/internal/domain/assignment"
	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/domain/medication"
	"github.com/telecare/telecare/internal/domain/scheduling"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/events"
	"github.com/telecare/telecare/internal/platform/metrics"
	"github.com/telecare/telecare/internal/platform/middleware"
)

const (
	metricsNamespace = "telecare"
	version          = "0.1.0"
	shutdownTimeout  = 10 * time.Second
)

// services holds the wired domain layer. The HTTP server and the reconcile
// command share it.
type services struct {
	identity   *identity.Service
	registrar  *identity.Registrar
	reconciler *identity.Reconciler
	scheduling *scheduling.Service
	assignment *assignment.Service
	medication *medication.Service
}

func newServices(cfg *config.Config, pool *pgxpool.Pool, collector *metrics.Collector, emitter *events.Emitter, logger zerolog.Logger) *services {
	tx := db.NewTxRunner(pool)

	assignSvc := assignment.NewService(assignment.NewRepoPG(pool), assignment.NewDirectoryPG(pool), tx,
		emitter, collector, logger.With().Str("component", "assignment").Logger())

	schedSvc := scheduling.NewService(
		scheduling.NewDirectoryPG(pool),
		scheduling.NewBlockRepoPG(pool),
		scheduling.NewOverrideRepoPG(pool),
		scheduling.NewAppointmentRepoPG(pool),
		assignSvc,
		tx,
		scheduling.Options{
			MaxResolveDays:     cfg.MaxResolveDays,
			DefaultSlotMinutes: cfg.DefaultSlotMinutes,
			Location:           cfg.Location(),
			Events:             emitter,
			Metrics:            collector,
			Logger:             logger.With().Str("component", "scheduling").Logger(),
		},
	)

	profiles := identity.NewProfileRepoPG(pool)
	patients := identity.NewPatientRepoPG(pool)
	providers := identity.NewProviderRepoPG(pool)
	admins := identity.NewAdminRepoPG(pool)
	idLogger := logger.With().Str("component", "identity").Logger()
	registrar := identity.NewRegistrar(profiles, patients, providers, admins, schedSvc, collector, idLogger)

	return &services{
		identity:   identity.NewService(profiles, patients, providers, admins, assignSvc, idLogger),
		registrar:  registrar,
		reconciler: identity.NewReconciler(registrar, collector, idLogger),
		scheduling: schedSvc,
		assignment: assignSvc,
		medication: medication.NewService(medication.NewRepoPG(pool), assignSvc, emitter, collector,
			logger.With().Str("component", "medication").Logger()),
	}
}

func authConfig(cfg *config.Config) auth.JWTConfig {
	jc := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
		Skipper:  auth.AuthSkipper,
	}
	if cfg.AuthSigningKey != "" {
		jc.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return jc
}

// newServer builds the echo instance with the full middleware chain and every
// route. It does not touch the database until a request arrives.
func newServer(cfg *config.Config, pool *pgxpool.Pool, collector *metrics.Collector, svcs *services, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Sanitize(logger))
	e.Use(collector.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID", auth.HookSecretHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(authConfig(cfg)))
	} else {
		e.Use(auth.JWTMiddleware(authConfig(cfg)))
	}

	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	e.Use(middleware.RateLimit(rl))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(collector.Handler()))

	// Tenant resolution must precede principal resolution, which reads the
	// tenant's profile table.
	api := e.Group("/api/v1",
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		identity.PrincipalMiddleware(svcs.identity, logger),
		middleware.Audit(logger),
	)
	identity.NewHandler(svcs.identity, svcs.registrar, svcs.reconciler, cfg.SignupHookSecret).RegisterRoutes(api)
	scheduling.NewHandler(svcs.scheduling).RegisterRoutes(api)
	assignment.NewHandler(svcs.assignment).RegisterRoutes(api)
	medication.NewHandler(svcs.medication).RegisterRoutes(api)

	return e
}

// newPublisher returns a Kafka publisher when brokers are configured and a
// log publisher otherwise.
func newPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info().Msg("no KAFKA_BROKERS configured, events go to the log")
		return events.NewLogPublisher(logger), nil
	}
	return events.NewKafkaPublisher(events.KafkaConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
	}, logger)
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	collector := metrics.NewCollector(metricsNamespace)
	collector.RegisterPool(metricsNamespace, pool)

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create event publisher")
	}
	emitter := events.NewEmitter(publisher, collector, logger.With().Str("component", "events").Logger())
	defer func() {
		if err := emitter.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	e := newServer(cfg, pool, collector, newServices(cfg, pool, collector, emitter, logger), logger)

	var metricsSrv *http.Server
	if cfg.MetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsSrv = &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			logger.Info().Str("addr", metricsSrv.Addr).Msg("starting metrics listener")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := e.Shutdown(sctx)
		if metricsSrv != nil {
			err = errors.Join(err, metricsSrv.Shutdown(sctx))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
