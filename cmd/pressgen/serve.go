package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telemacho-dev/pressgen/internal/server"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			pub, err := rt.publisher(ctx)
			if err != nil {
				return err
			}
			runner, err := rt.buildRunner(pub)
			if err != nil {
				return err
			}

			srv := server.New(rt.store, runner, pub, rt.cfg.Pipeline.StageStream, rt.metrics)
			if addr == "" {
				addr = rt.cfg.Server.Address
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()
			rt.logger.Printf("serving on %s", addr)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
