package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/breaktools/meffec/internal/client"
	"github.com/breaktools/meffec/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newListenCmd(f *peerFlags) *cobra.Command {
	var role, name string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stay connected and log every message received",
		Long:  "Authenticates with the given role and logs catalog pushes, play requests\nand device actions until interrupted. Reconnects if the relay goes away.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := protocol.ParseRole(role)
			if !ok {
				return fmt.Errorf("listen: unknown role %q", role)
			}
			log, err := f.logger()
			if err != nil {
				return err
			}
			mgr, err := client.NewManager(client.Options{
				URL:    f.serverURL,
				Token:  f.resolvedToken(),
				Role:   r,
				Name:   name,
				Logger: log,
				Hooks:  listenHooks(log),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			_ = mgr.Run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(protocol.RoleDevice), "Role to claim: app, device or controller")
	cmd.Flags().StringVar(&name, "name", "peer", "Name announced to the relay")
	return cmd
}

func listenHooks(log zerolog.Logger) client.Hooks {
	return client.Hooks{
		OnStateChange: func(s client.State) {
			log.Info().Stringer("state", s).Msg("connection")
		},
		OnRoster: func(r protocol.Roster) {
			log.Info().Int("clients", len(r)).Msg("roster")
		},
		OnCatalog: func(c protocol.Catalog) {
			for _, cat := range c {
				for _, e := range cat.Effects {
					log.Info().Str("category", cat.Name).Str("effect", e.Name).Msg("available")
				}
			}
		},
		OnPlayEffect: func(p protocol.PlayEffect) {
			log.Info().Str("category", p.Category).Str("effect", p.Name).Msg("play requested")
		},
		OnDeviceAction: func(data json.RawMessage) {
			log.Info().RawJSON("data", data).Msg("device action")
		},
	}
}

