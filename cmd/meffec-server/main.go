package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/breaktools/meffec/internal/config"
	"github.com/breaktools/meffec/internal/logging"
	"github.com/breaktools/meffec/internal/metrics"
	"github.com/breaktools/meffec/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "meffec-server",
		Short: "Relay server for the Meffec effects rig",
		Long: `meffec-server accepts websocket connections from the controller, apps and
devices, and relays catalog, roster, play and device messages between them.

The shared secret comes from WEBSOCKET_TOKEN and the port from PORT; both may
also be set in a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to config file (optional)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to .env file (optional)")
	cmd.Flags().IntVar(&port, "port", 0, "Override server port")
	return cmd
}

func loadConfig(configPath, envFile string) (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.Config) error {
	log, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("refusing to start")
	}

	server, err := ws.NewServer(ws.Options{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics.New(prometheus.DefaultRegisterer),
		Gatherer: prometheus.DefaultGatherer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("refusing to start")
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = server.Run(ctx)
	log.Info().Msg("shut down")
	return err
}
