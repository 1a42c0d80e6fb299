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
	"github.com/spf13/cobra"

	"github.com/hie/gateway/internal/config"
	"github.com/hie/gateway/internal/domain/bridge"
	"github.com/hie/gateway/internal/domain/callback"
	"github.com/hie/gateway/internal/domain/consent"
	"github.com/hie/gateway/internal/domain/link"
	"github.com/hie/gateway/internal/domain/records"
	"github.com/hie/gateway/internal/domain/transfer"
	"github.com/hie/gateway/internal/platform/db"
	"github.com/hie/gateway/internal/platform/middleware"
	"github.com/hie/gateway/internal/platform/outbound"
	"github.com/hie/gateway/internal/platform/token"
)

// CredentialIssuerAdapter adapts the token service to the
// bridge.CredentialIssuer interface, avoiding a direct dependency from the
// bridge domain on token internals.
type CredentialIssuerAdapter struct {
	svc *token.Service
}

func (a *CredentialIssuerAdapter) IssueCredentials(ctx context.Context, bridgeID string) (string, string, error) {
	client, secret, err := a.svc.RegisterClient(ctx, bridgeID)
	if err != nil {
		return "", "", err
	}
	return client.ClientID, secret, nil
}

// LogNotifier is the default patient approval channel: it records the pending
// consent so an operator-facing approval surface can pick it up. Deployments
// with a real consent manager front-end replace it with an outbound notifier.
type LogNotifier struct {
	logger zerolog.Logger
}

func (n *LogNotifier) NotifyConsentRequested(_ context.Context, a *consent.Artefact) error {
	n.logger.Info().
		Str("consent_id", a.ConsentID).
		Str("patient_id", a.PatientID).
		Str("hiu_id", a.HIUID).
		Msg("consent approval pending")
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "gateway-server",
		Short: "Health information exchange gateway",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type",
			token.HeaderRequestID, token.HeaderTimestamp, token.HeaderConsentManagerID},
	}))

	// Platform services
	tokenSvc := token.NewService(token.NewPGClientStore(pool),
		[]byte(cfg.TokenSigningKey), cfg.TokenIssuer, cfg.TokenTTL)
	router := callback.NewRouter(logger)
	poster := outbound.NewClient(cfg.ConsentManagerID, logger,
		outbound.WithMaxAttempts(cfg.ForwardRetries))

	// Domain services
	bridgeSvc := bridge.NewService(bridge.NewRepoPG(pool), &CredentialIssuerAdapter{svc: tokenSvc})
	consentSvc := consent.NewService(consent.NewRepoPG(pool), router,
		&LogNotifier{logger: logger}, logger)
	recordsSvc := records.NewService(records.NewRepoPG(pool), logger)
	linkSvc := link.NewService(link.NewRepoPG(pool), link.NewLinkStorePG(pool),
		bridgeSvc, poster, router, cfg.LinkRequestTTL, cfg.LinkMaxOTPTries, logger)
	transferSvc := transfer.NewService(transfer.NewRepoPG(pool), consentSvc,
		bridgeSvc, poster, router, recordsSvc, cfg.DeliveryTimeout, logger)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Token exchange and bridge administration
	gatewayGroup := e.Group("/gateway")
	token.NewHandler(tokenSvc).RegisterRoutes(gatewayGroup)
	bridge.NewHandler(bridgeSvc).Register(gatewayGroup.Group("/bridge"))

	// Webhook entry point. Unauthenticated: callbacks are absorbed with a 200
	// whatever happens, and correlation ids are unguessable.
	callback.NewHandler(router, logger).RegisterRoutes(e.Group("/callback"))

	// Bridge-facing protocol surface
	authMW := token.Middleware(tokenSvc)
	if cfg.IsDev() {
		authMW = token.DevMiddleware()
	}
	linkGroup := e.Group("/link", authMW)
	consentGroup := e.Group("/consent", authMW)
	dataGroup := e.Group("/data", authMW)
	recordsGroup := e.Group("/records", authMW)

	link.NewHandler(linkSvc).Register(linkGroup)
	consent.NewHandler(consentSvc).Register(consentGroup)
	transfer.NewHandler(transferSvc).Register(dataGroup)
	records.NewHandler(recordsSvc).Register(recordsGroup)

	// Deadline sweeps: lazy expiry covers entities that get read; the sweep
	// moves the ones nobody asks about.
	sweepCtx, sweepCancel := context.WithCancel(ctx)
	defer sweepCancel()
	go runSweeper(sweepCtx, cfg.SweepInterval, logger, linkSvc, transferSvc)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("gateway listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	sweepCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func runSweeper(ctx context.Context, interval time.Duration, logger zerolog.Logger,
	links *link.Service, transfers *transfer.Service) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := links.Sweep(ctx); err != nil {
				logger.Warn().Err(err).Msg("link sweep failed")
			} else if n > 0 {
				logger.Info().Int("expired", n).Msg("link sweep")
			}
			if n, err := transfers.Sweep(ctx); err != nil {
				logger.Warn().Err(err).Msg("transfer sweep failed")
			} else if n > 0 {
				logger.Info().Int("failed", n).Msg("transfer sweep")
			}
		}
	}
}
