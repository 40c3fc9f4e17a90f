package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/breaktools/meffec/internal/app"
	"github.com/breaktools/meffec/internal/client"
	"github.com/breaktools/meffec/internal/config"
	"github.com/breaktools/meffec/internal/effects"
	"github.com/breaktools/meffec/internal/logging"
	"github.com/breaktools/meffec/internal/protocol"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath    string
	serverURL     string
	token         string
	effectsFolder string
	oscServer     string
	name          string
	headless      bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "meffec-controller",
		Short: "Operator console for the Meffec effects rig",
		Long: `meffec-controller indexes the effect definitions in a folder, publishes them
to the relay as the controller, and runs effects when they are triggered from
the console or by an app.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadController(f.configPath)
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			applyFlags(cmd, cfg, f)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.headless)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "meffec-controller.yaml", "Path to settings file (optional)")
	cmd.Flags().StringVar(&f.serverURL, "server-url", "", "Relay websocket URL")
	cmd.Flags().StringVar(&f.token, "token", "", "Shared secret (defaults to $WEBSOCKET_TOKEN)")
	cmd.Flags().StringVar(&f.effectsFolder, "effects-folder", "", "Folder of effect definitions")
	cmd.Flags().StringVar(&f.oscServer, "osc-server", "", "OSC server host:port")
	cmd.Flags().StringVar(&f.name, "name", "", "Display name announced to the relay")
	cmd.Flags().BoolVar(&f.headless, "headless", false, "Run without the console, logging to stderr")
	return cmd
}

func applyFlags(cmd *cobra.Command, cfg *config.ControllerConfig, f flags) {
	set := cmd.Flags().Changed
	if set("server-url") {
		cfg.ServerURL = f.serverURL
	}
	if set("token") {
		cfg.Token = f.token
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv(config.EnvToken)
	}
	if set("effects-folder") {
		cfg.EffectsFolder = f.effectsFolder
	}
	if set("osc-server") {
		cfg.OSCServer = f.oscServer
	}
	if set("name") {
		cfg.Name = f.name
	}
}

func run(parent context.Context, cfg *config.ControllerConfig, headless bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// In console mode log lines go to the log pane. Everything bound for the
	// console is queued until the program runs.
	feed := newConsoleFeed()
	send := feed.Send
	if headless {
		send = func(tea.Msg) {}
	}

	logOpts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}
	if !headless {
		logOpts.Format = logging.FormatJSON
		logOpts.Out = app.LogSink{Send: send}
	}
	log, closer, err := logging.New(logOpts)
	if err != nil {
		return err
	}
	defer closer.Close()

	library := effects.NewLibrary(cfg.EffectsFolder, log)

	var osc effects.OSCSender
	if cfg.OSCServer != "" {
		sender, err := effects.NewOSCSender(cfg.OSCServer)
		if err != nil {
			return err
		}
		osc = sender
	}

	var runner *effects.Runner
	manager, err := client.NewManager(client.Options{
		URL:             cfg.ServerURL,
		Token:           cfg.Token,
		Role:            protocol.RoleController,
		Name:            cfg.Name,
		ReconnectDelay:  cfg.ReconnectDelay,
		LivenessTimeout: cfg.LivenessTimeout,
		Logger:          log,
		Hooks: client.Hooks{
			OnStateChange: func(s client.State) { send(app.StateMsg{State: s}) },
			OnRoster:      func(r protocol.Roster) { send(app.RosterMsg{Roster: r}) },
			OnPlayEffect: func(p protocol.PlayEffect) {
				_ = runner.Trigger(ctx, p.Category, p.Name)
			},
		},
	})
	if err != nil {
		return err
	}
	runner = effects.NewRunner(effects.RunnerOptions{
		Library: library,
		OSC:     osc,
		Devices: manager,
		Logger:  log,
	})
	defer runner.Wait()

	var prog *tea.Program
	if !headless {
		prog = tea.NewProgram(app.New(app.Options{
			Library:   library,
			Player:    runner,
			Publisher: manager,
			ServerURL: cfg.ServerURL,
		}), tea.WithAltScreen(), tea.WithContext(ctx))
		go feed.Forward(ctx, prog)
	}

	go manager.Run(ctx)
	startWatcher(ctx, library, log, func() {
		if headless {
			publish(library, manager, log)
			return
		}
		send(app.ReindexMsg{})
	})

	if headless {
		publish(library, manager, log)
		<-ctx.Done()
		return nil
	}

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	stop()
	return nil
}

func publish(library *effects.Library, manager *client.Manager, log zerolog.Logger) {
	catalog, err := library.Reload()
	if err != nil {
		log.Error().Err(err).Msg("could not index effects")
		return
	}
	if err := manager.SetCatalog(catalog); err != nil {
		log.Warn().Err(err).Msg("could not send catalog")
	}
}

func startWatcher(ctx context.Context, library *effects.Library, log zerolog.Logger, onChange func()) {
	w, err := effects.NewWatcher(library.Dir(), effects.DefaultDebounce, log)
	if err != nil {
		log.Warn().Err(err).Str("folder", library.Dir()).Msg("not watching effects folder, use reindex after edits")
		return
	}
	go func() {
		if err := w.Run(ctx, onChange); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("effects watcher stopped")
		}
	}()
}
