package main

import (
	"os"

	"github.com/breaktools/meffec/internal/config"
	"github.com/breaktools/meffec/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type peerFlags struct {
	serverURL string
	token     string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	f := &peerFlags{}
	cmd := &cobra.Command{
		Use:           "meffec-peer",
		Short:         "Join a Meffec relay as an app or device",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&f.serverURL, "server-url", "ws://127.0.0.1:8765", "Relay websocket URL")
	cmd.PersistentFlags().StringVar(&f.token, "token", "", "Shared secret (defaults to $WEBSOCKET_TOKEN)")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "info", "Log level")

	cmd.AddCommand(
		newListenCmd(f),
		newPlayCmd(f),
	)
	return cmd
}

func (f *peerFlags) resolvedToken() string {
	if f.token != "" {
		return f.token
	}
	return os.Getenv(config.EnvToken)
}

func (f *peerFlags) logger() (zerolog.Logger, error) {
	log, _, err := logging.New(logging.Options{Level: f.logLevel, Format: logging.FormatConsole, Out: os.Stderr})
	return log, err
}
