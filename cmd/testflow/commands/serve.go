package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/testflow/testflow/conf"
	"github.com/testflow/testflow/db"
	"github.com/testflow/testflow/errors"
	"github.com/testflow/testflow/logger"
	"github.com/testflow/testflow/server"
)

// ServeCmd starts the testflow HTTP server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the testflow HTTP server",
	Long: `Launch the testflow API server: trigger endpoints, status and results
reads, suite aggregates, history queries, and the worker callback surface.`,
	RunE: runServe,
}

var (
	servePort   int
	serveDBPath string
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := conf.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	dbPath := cfg.Database.Path
	if serveDBPath != "" {
		dbPath = serveDBPath
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	srv := server.New(database, cfg)

	// Hot-reload config on file changes, for the settings that can take
	// effect without a restart
	if configPath := conf.ConfigPath(); configPath != "" {
		watcher, watchErr := conf.NewConfigWatcher(configPath)
		if watchErr != nil {
			logger.Logger.Warnw("Config watcher unavailable", logger.FieldError, watchErr)
		} else {
			watcher.OnReload(func(updated *conf.Config) error {
				logger.Logger.Infow("Configuration reloaded", logger.FieldPath, configPath)
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Logger.Infow("Shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownErr := srv.Stop(ctx); shutdownErr != nil {
			logger.Logger.Errorw("Shutdown error", logger.FieldError, shutdownErr)
		}
	}()

	return srv.Start()
}
