// Package migrate provides the state-changing migration command
package migrate

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/migration"
	"github.com/snd-ksa/docmigrate/internal/runner"
)

// Command creates and returns the migrate command
func Command(r *runner.Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Copy legacy files to canonical storage and repoint their records",
		Long: `Migrate copies every legacy file found by scan to its canonical key, verifies
the copy, rewrites the record only if its path is unchanged and then removes
the legacy object. Re-running after an interruption is always safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logger.WithTraceID(cmd.Context(), r.RunID), r)
		},
	}
}

func run(ctx context.Context, r *runner.Runner) error {
	repo, err := r.OpenRepository(ctx)
	if err != nil {
		return err
	}
	stores, err := r.OpenStores(ctx)
	if err != nil {
		return err
	}
	if err := r.Lock(); err != nil {
		return err
	}

	candidates, err := migration.NewScanner(r.Config, repo).Collect(ctx, nil)
	if err != nil {
		return err
	}

	executor, err := migration.NewExecutor(r.Config, repo, stores, r.EngineOptions()...)
	if err != nil {
		return err
	}
	return r.Finish(executor.Run(ctx, candidates))
}
