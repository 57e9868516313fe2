// Package audit provides the path reconciliation command
package audit

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/migration"
	"github.com/snd-ksa/docmigrate/internal/runner"
)

// Command creates and returns the audit command
func Command(r *runner.Runner) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Find records whose path differs from the canonical path",
		Long: `Audit compares every record's file path with the canonical path computed from
its owner's business key, whichever store the file lives in. With --fix each
mismatch is copied to its canonical key and the record is repointed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logger.WithTraceID(cmd.Context(), r.RunID), r, fix)
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Move mismatched files to their canonical keys")
	return cmd
}

func run(ctx context.Context, r *runner.Runner, fix bool) error {
	repo, err := r.OpenRepository(ctx)
	if err != nil {
		return err
	}
	stores, err := r.OpenStores(ctx)
	if err != nil {
		return err
	}

	auditor, err := migration.NewAuditor(r.Config, repo, stores, r.EngineOptions()...)
	if err != nil {
		return err
	}

	result, err := auditor.AuditAll(ctx)
	if err != nil {
		return err
	}
	r.Log().Info("audit finished",
		logger.Int("checked", result.Checked),
		logger.Int("mismatches", len(result.Mismatches)))

	if !fix {
		return r.Write(result)
	}

	if err := r.Lock(); err != nil {
		return err
	}
	return r.Finish(auditor.FixAll(ctx, result.Mismatches))
}
