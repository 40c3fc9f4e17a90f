package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breaktools/meffec/internal/client"
	"github.com/breaktools/meffec/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var errNoCatalog = errors.New("no catalog received")

func newPlayCmd(f *peerFlags) *cobra.Command {
	var (
		category, name string
		wait           time.Duration
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Ask the controller to run one effect, then exit",
		Long:  "Connects as an app, waits for the catalog to list the effect and sends a\nplay request for it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := f.logger()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			if err := play(ctx, f.serverURL, f.resolvedToken(), category, name, log); err != nil {
				return fmt.Errorf("play %s/%s: %w", category, name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requested %s/%s\n", category, name)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Effect category")
	cmd.Flags().StringVar(&name, "name", "", "Effect name")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "How long to wait for the catalog")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// play returns once the request is written or ctx expires.
func play(ctx context.Context, serverURL, token, category, name string, log zerolog.Logger) error {
	catalogs := make(chan protocol.Catalog, 4)
	mgr, err := client.NewManager(client.Options{
		URL:    serverURL,
		Token:  token,
		Role:   protocol.RoleApp,
		Name:   "meffec-peer",
		Logger: log,
		Hooks: client.Hooks{
			OnCatalog: func(c protocol.Catalog) {
				select {
				case catalogs <- c:
				default:
				}
			},
		},
	})
	if err != nil {
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mgr.Run(runCtx)
	}()
	defer func() {
		stop()
		<-done
	}()

	seen := false
	for {
		select {
		case <-ctx.Done():
			if seen {
				return errors.New("effect not in catalog")
			}
			return errNoCatalog
		case c := <-catalogs:
			seen = true
			if !listed(c, category, name) {
				continue
			}
			return mgr.PlayEffect(category, name)
		}
	}
}

func listed(c protocol.Catalog, category, name string) bool {
	for _, cat := range c {
		if cat.Name != category {
			continue
		}
		for _, e := range cat.Effects {
			if e.Name == name {
				return true
			}
		}
	}
	return false
}
