// Package scan provides the read-only inventory command
package scan

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/migration"
	"github.com/snd-ksa/docmigrate/internal/runner"
)

// Command creates and returns the scan command
func Command(r *runner.Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List records whose files are not in canonical storage",
		Long:  "Scan lists every record whose file path points at legacy storage, with its classification and canonical destination. Nothing is written.",
		Args:  cobra.NoArgs,
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

	classifier := migration.NewClassifier(r.Config)
	inv, err := migration.NewScanner(r.Config, repo).Inventory(ctx, migration.NewResolver(classifier))
	if err != nil {
		return err
	}

	r.Log().Info("scan finished", logger.Int("candidates", inv.Total))
	return r.Write(inv)
}
