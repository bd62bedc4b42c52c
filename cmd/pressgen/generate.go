package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telemacho-dev/pressgen/internal/pipeline"
)

// generateCmd runs the whole pipeline in-process for one subscription. Useful
// locally; production traffic goes through serve + worker.
func generateCmd() *cobra.Command {
	var subscriptionID string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation end to end in-process",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			if subscriptionID == "" {
				return fmt.Errorf("--subscription is required")
			}
			active, err := rt.store.HasActiveGeneration(ctx, subscriptionID)
			if err != nil {
				return err
			}
			if active {
				return fmt.Errorf("subscription %s already has a generation in progress", subscriptionID)
			}

			gen, err := rt.store.CreateGeneration(ctx, subscriptionID)
			if err != nil {
				return err
			}
			rt.logger.Printf("generation %s created for topic %q", gen.ID, gen.Topic)

			runner, err := rt.buildRunner(nil)
			if err != nil {
				return err
			}
			if err := runner.Run(ctx, pipeline.StagePlan, gen.ID); err != nil {
				return fmt.Errorf("generation %s failed: %w", gen.ID, err)
			}

			final, _, err := rt.store.GetGeneration(ctx, gen.ID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(final)
		},
	}
	cmd.Flags().StringVar(&subscriptionID, "subscription", "", "subscription id to generate for")
	return cmd
}
