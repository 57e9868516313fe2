// Package dedupe provides the duplicate cleanup command
package dedupe

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/migration"
	"github.com/snd-ksa/docmigrate/internal/runner"
)

// Command creates and returns the dedupe command
func Command(r *runner.Runner) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Remove legacy-layout copies of files that exist canonically",
		Long: `Dedupe finds objects in the target store that duplicate a record's canonical
object under an old layout (surrogate id keys, timestamped copies, the record's
own non-canonical pointer) and removes them once the canonical object is
confirmed. Records still pointing at a duplicate are repointed first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logger.WithTraceID(cmd.Context(), r.RunID), r, list)
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "Only list duplicates")
	return cmd
}

type pairs []migration.DuplicatePair

func (p pairs) Write(w io.Writer, format migration.Format) error {
	return migration.WriteDuplicates(w, format, p)
}

func run(ctx context.Context, r *runner.Runner, list bool) error {
	repo, err := r.OpenRepository(ctx)
	if err != nil {
		return err
	}
	stores, err := r.OpenStores(ctx)
	if err != nil {
		return err
	}

	resolver, err := migration.NewDuplicateResolver(r.Config, repo, stores, r.EngineOptions()...)
	if err != nil {
		return err
	}

	found, err := resolver.FindDuplicates(ctx)
	if err != nil {
		return err
	}
	r.Log().Info("duplicate search finished", logger.Int("duplicates", len(found)))

	if list {
		return r.Write(pairs(found))
	}

	if err := r.Lock(); err != nil {
		return err
	}
	return r.Finish(resolver.ResolveAll(ctx, found))
}
