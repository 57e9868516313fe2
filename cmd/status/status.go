// Package status provides the migration progress command
package status

import (
	"github.com/spf13/cobra"

	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/migration"
	"github.com/snd-ksa/docmigrate/internal/runner"
)

// Command creates and returns the status command
func Command(r *runner.Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how many records already point at canonical storage",
		Long:  "Status classifies every document record by where its file lives and lists the records that still need action. It always reads the current database state.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logger.WithTraceID(cmd.Context(), r.RunID)

			repo, err := r.OpenRepository(ctx)
			if err != nil {
				return err
			}

			snapshot, err := migration.NewStatusReporter(r.Config, repo).Snapshot(ctx)
			if err != nil {
				return err
			}

			r.Log().Info("status computed",
				logger.Int("total", snapshot.Total),
				logger.Float64("percent_canonical", snapshot.Percent))
			return r.Write(snapshot)
		},
	}
}
