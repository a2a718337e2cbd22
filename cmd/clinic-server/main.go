package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicpos/clinicpos/internal/config"
	"github.com/clinicpos/clinicpos/internal/domain/admin"
	"github.com/clinicpos/clinicpos/internal/domain/patient"
	"github.com/clinicpos/clinicpos/internal/domain/scheduling"
	"github.com/clinicpos/clinicpos/internal/platform/apperr"
	"github.com/clinicpos/clinicpos/internal/platform/auth"
	"github.com/clinicpos/clinicpos/internal/platform/db"
	"github.com/clinicpos/clinicpos/internal/platform/middleware"
	"github.com/clinicpos/clinicpos/internal/platform/notification"
	"github.com/clinicpos/clinicpos/internal/platform/validation"
)

const appName = "clinic-server"

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Multi-tenant clinic operations API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(notifyConsumerCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo tenant, branches and users into an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, pool, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			p := admin.NewProvisioner(admin.NewRepo(pool), auth.NewBcryptHasher(cfg.BcryptCost), logger)
			seeded, err := p.Seed(cmd.Context())
			if err != nil {
				return err
			}
			if seeded {
				fmt.Println("Seeded demo tenant. Users: admin/admin123, user/user123, viewer/viewer123")
			} else {
				fmt.Println("Database already contains tenants, nothing to do")
			}
			return nil
		},
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant and its first Admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			username, _ := cmd.Flags().GetString("admin-username")
			password, _ := cmd.Flags().GetString("admin-password")

			cfg, logger, pool, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			p := admin.NewProvisioner(admin.NewRepo(pool), auth.NewBcryptHasher(cfg.BcryptCost), logger)
			tenant, user, err := p.CreateTenant(cmd.Context(), admin.CreateTenantRequest{
				Name:          name,
				AdminUsername: username,
				AdminPassword: password,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created tenant %q (%s) with admin %q\n", tenant.Name, tenant.ID, user.Username)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant display name")
	createCmd.Flags().String("admin-username", "admin", "Username of the tenant's first Admin")
	createCmd.Flags().String("admin-password", "", "Password of the tenant's first Admin")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("admin-password")

	cmd.AddCommand(createCmd)
	return cmd
}

func notifyConsumerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify-consumer",
		Short: "Consume appointment-created events and log them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.IsDev())
			if cfg.RabbitMQURL == "" {
				return errors.New("RABBITMQ_URL is required")
			}
			prefetch, _ := cmd.Flags().GetInt("prefetch")

			conn, err := notification.Dial(cfg.RabbitMQURL)
			if err != nil {
				return err
			}
			defer conn.Close()

			consumer, err := notification.NewConsumer(conn, cfg.NotifyQueue, prefetch, notification.LogHandler(logger), logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return consumer.Run(ctx)
		},
	}
	cmd.Flags().Int("prefetch", 10, "Unacknowledged deliveries held at once")
	return cmd
}

// bootstrap loads config and opens the database for the one-shot commands.
func bootstrap(ctx context.Context) (*config.Config, zerolog.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	logger := newLogger(cfg.IsDev())
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  appName,
	})
	if err != nil {
		return nil, logger, nil, err
	}
	return cfg, logger, pool, nil
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV") == "development")

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger = newLogger(cfg.IsDev())

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  appName,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Identity
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		SigningKey: []byte(cfg.JWTSigningKey),
		Issuer:     cfg.JWTIssuer,
		TTL:        cfg.TokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token issuer")
	}
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	var throttle auth.LoginThrottle = auth.NoopThrottle{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		throttle = auth.NewRedisLoginThrottle(rdb, cfg.LoginMaxAttempts, cfg.LoginLockout, logger)
		logger.Info().Int("max_attempts", cfg.LoginMaxAttempts).Dur("lockout", cfg.LoginLockout).Msg("login throttling enabled")
	}

	// Notifications
	var publisher notification.Publisher = notification.NewLogPublisher(logger)
	if cfg.RabbitMQURL != "" {
		conn, err := notification.Dial(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		defer conn.Close()
		amqpPub, err := notification.NewAMQPPublisher(conn, cfg.NotifyQueue)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open publisher")
		}
		defer amqpPub.Close()
		publisher = amqpPub
		logger.Info().Str("queue", cfg.NotifyQueue).Msg("publishing appointment events to broker")
	} else {
		logger.Warn().Msg("RABBITMQ_URL not set, appointment events are only logged")
	}
	dispatcher := notification.NewDispatcher(publisher, notification.DispatcherConfig{
		Workers: cfg.NotifyWorkers,
		Buffer:  cfg.NotifyBuffer,
	}, logger)

	// Domains
	adminStore := admin.NewRepo(pool)
	authn, err := admin.NewAuthenticator(adminStore, hasher, issuer, throttle, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create authenticator")
	}

	e := newEcho(cfg, logger, issuer,
		patient.NewHandler(patient.NewService(patient.NewRepo(pool))),
		scheduling.NewHandler(scheduling.NewService(scheduling.NewRepo(pool), dispatcher)),
		admin.NewHandler(admin.NewService(adminStore, hasher), authn),
	)
	e.GET("/health/db", db.HealthHandler(pool, logger))

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

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("notification dispatcher did not drain")
	}
	logger.Info().Msg("server stopped")
	return nil
}

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// newEcho builds the HTTP stack. Every /api route except login and health
// is behind ScopeMiddleware.
func newEcho(cfg *config.Config, logger zerolog.Logger, verifier auth.TokenVerifier, domains ...routeRegistrar) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))

	e.GET("/health", db.LivenessHandler())

	api := e.Group("/api")
	api.Use(db.ScopeMiddleware(verifier, auth.AuthSkipper))
	limits := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		limits.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		limits.BurstSize = cfg.RateLimitBurst
	}
	limits.Skipper = func(c echo.Context) bool { return c.Path() == "/api/health" }
	api.Use(middleware.RateLimit(limits))
	api.GET("/health", db.LivenessHandler())

	for _, d := range domains {
		d.RegisterRoutes(api)
	}
	return e
}
