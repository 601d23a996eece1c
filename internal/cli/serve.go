// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/repofetch/repofetch/internal/server"
)

func newServeCmd(ro *RootOpts, version string) *cobra.Command {
	var (
		addr        string
		port        int
		destination string
		concurrency int
		cacheTTL    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP control-plane server",
		Long: `Start an HTTP server that provides:
  - REST API for download job management, including pause/resume
  - WebSocket feed of live job progress
  - The embedded web dashboard

The destination directory is configured server-side only (not via the API).

Example:
  repofetch serve
  repofetch serve --port 3000 --destination ./downloads`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.Config{
				Addr:        addr,
				Port:        port,
				Destination: destination,
				Concurrency: concurrency,
				CacheTTL:    cacheTTL,
				Version:     version,
			}

			token := strings.TrimSpace(ro.Token)
			if token == "" {
				token = strings.TrimSpace(os.Getenv("REPOFETCH_TOKEN"))
			}
			cfg.Token = token

			srv := server.New(cfg)

			ctx, cancel := signalContext(context.Background())
			defer cancel()

			fmt.Printf("repofetch control-plane listening on %s:%d\n", addr, port)

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0", "address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")
	cmd.Flags().StringVar(&destination, "destination", "./downloads", "base directory every job downloads beneath")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 5, "max concurrent file downloads per job")
	cmd.Flags().DurationVar(&cacheTTL, "cache-ttl", 5*time.Minute, "manifest cache TTL")

	return cmd
}
