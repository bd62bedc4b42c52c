package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/telemacho-dev/pressgen/internal/queue/streams"
	"github.com/telemacho-dev/pressgen/internal/worker"
)

func workerCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the stage processor and the stalled-record sweeper",
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

			if name == "" {
				host, _ := os.Hostname()
				name = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
			}
			cons := streams.NewConsumer(rt.redis, rt.cfg.Pipeline.ConsumerGroup, name)
			wlog := log.New(os.Stdout, "[WORKER] ", log.LstdFlags)

			proc := worker.NewProcessor(wlog, rt.store, cons, runner, rt.cfg.Pipeline.StageStream)
			sweep := worker.NewSweeper(wlog, rt.store, pub, rt.cfg.Pipeline.StageStream,
				rt.cfg.Pipeline.StalledAfter, rt.cfg.Pipeline.SweepInterval)
			if rt.metrics != nil {
				sweep.WithMetrics(rt.metrics)
			}

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				if err := proc.Start(ctx); err != nil {
					wlog.Printf("processor: %v", err)
				}
			}()
			go func() {
				defer wg.Done()
				if err := sweep.Start(ctx); err != nil {
					wlog.Printf("sweeper: %v", err)
				}
			}()
			wg.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "consumer name (defaults to host-derived)")
	return cmd
}
