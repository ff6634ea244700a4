package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reachpoint/reachpoint/internal/batch"
	"github.com/reachpoint/reachpoint/internal/core/api"
	"github.com/reachpoint/reachpoint/internal/core/auth"
	"github.com/reachpoint/reachpoint/internal/core/config"
	"github.com/reachpoint/reachpoint/internal/core/db"
	"github.com/reachpoint/reachpoint/internal/core/server"
	"github.com/reachpoint/reachpoint/internal/delivery"
	"github.com/reachpoint/reachpoint/internal/rules"
	"github.com/reachpoint/reachpoint/internal/store"
	"github.com/reachpoint/reachpoint/internal/suggest"
)

const Version = "0.1.0"

// Grace period for draining queued writes during shutdown.
const drainTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	serveCmd.Flags().Int("port", 8080, "HTTP server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := newLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		cfg.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Port = port
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	var migrationID string
	checkQuery := `SELECT migration_id FROM migrations WHERE migration_id = '001_initial_schema.sql'`
	if err := database.Get(&migrationID, database.Rebind(checkQuery)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("schema not migrated - run 'reachpoint migrate up' first")
		}
		return fmt.Errorf("failed to check migrations: %w", err)
	}

	st, err := store.New(database, log)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	secret, err := config.JWTSecret()
	if err != nil {
		return err
	}
	authenticator := auth.New(secret, cfg.TokenTTL, log)

	batchCfg := batch.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		QueueLimit:    cfg.QueueLimit,
		FlushTimeout:  cfg.FlushTimeout,
		MaxRetries:    uint64(cfg.FlushRetries),
		Logger:        log,
	}
	coal := api.Coalescers{
		Customers: batch.New(st.Collection(store.Customers), batchCfg),
		Orders:    batch.New(st.Collection(store.Orders), batchCfg),
		Segments:  batch.New(st.Collection(store.Segments), batchCfg),
		Campaigns: batch.New(st.Collection(store.Campaigns), batchCfg),
		Messages:  batch.New(st.Collection(store.Messages), batchCfg),
	}

	engine := rules.NewEngine(log)

	vendor := delivery.NewVendorClient(cfg.VendorSendURL)
	deliverySvc := delivery.NewService(coal.Messages, vendor, log)

	var suggester suggest.Client
	if cfg.SuggestPrimaryURL != "" {
		primary := suggest.NewHTTPClient(cfg.SuggestPrimaryURL, config.SuggestAPIKey(), cfg.SuggestModel, log)
		var secondary suggest.Client
		if cfg.SuggestSecondaryURL != "" {
			secondary = suggest.NewHTTPClient(cfg.SuggestSecondaryURL, config.SuggestAPIKey(), cfg.SuggestModel, log)
		}
		suggester = suggest.NewFallback(primary, secondary, log)
	}

	service, err := api.NewService(st, coal, engine, deliverySvc, suggester, authenticator, log)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	httpServer, err := server.NewHTTPServer(cfg, service, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info().Str("version", Version).Str("host", cfg.Host).Int("port", cfg.Port).Msg("starting reachpoint API")
	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		log.Info().Msg("shutting down gracefully")
		shutdownErr := httpServer.Shutdown(ctx)

		// Queued writes drain after the listener closes so nothing new
		// can enqueue mid-drain.
		drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
		defer cancel()
		for name, c := range map[string]*batch.Coalescer{
			"customers": coal.Customers,
			"orders":    coal.Orders,
			"segments":  coal.Segments,
			"campaigns": coal.Campaigns,
			"messages":  coal.Messages,
		} {
			if err := c.Stop(drainCtx); err != nil {
				log.Error().Err(err).Str("coalescer", name).Msg("drain incomplete, queued writes lost")
			}
		}
		return shutdownErr
	}
}
