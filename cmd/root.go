// Package cmd wires the docmigrate command line.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/snd-ksa/docmigrate/cmd/audit"
	"github.com/snd-ksa/docmigrate/cmd/dedupe"
	"github.com/snd-ksa/docmigrate/cmd/migrate"
	"github.com/snd-ksa/docmigrate/cmd/scan"
	"github.com/snd-ksa/docmigrate/cmd/status"
	"github.com/snd-ksa/docmigrate/internal/buildinfo"
	"github.com/snd-ksa/docmigrate/internal/migration"
	"github.com/snd-ksa/docmigrate/internal/runner"
)

// Execute runs the command line in args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := runner.New(stdout)
	defer r.Close()

	v := viper.New()
	rootCmd, err := RootCommand(r, v)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return runner.ExitFatal
	}
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err = rootCmd.ExecuteContext(ctx)
	code := runner.ExitCode(err)
	if code == runner.ExitFatal {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

// RootCommand creates and returns the root command
func RootCommand(r *runner.Runner, v *viper.Viper) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "docmigrate",
		Short: "Move document files from legacy storage to the canonical object store",
		Long: `docmigrate finds document records whose files still live in the legacy object
store or behind legacy HTTP links, copies them to the canonical S3-compatible
store under {bucket}/{kind}-{ownerKey}/{fileName} and repoints the records.

Typical order: status, scan, migrate, audit --fix, dedupe, status.`,
		Version:       buildinfo.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, r, v); err != nil {
		return nil, err
	}

	rootCmd.AddCommand(
		scan.Command(r),
		migrate.Command(r),
		audit.Command(r),
		dedupe.Command(r),
		status.Command(r),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return r.Setup(v)
	}

	return rootCmd, nil
}

// setupFlags defines flags that are global to the command line interface
// and binds the ones backed by settings to their viper keys.
func setupFlags(rootCmd *cobra.Command, r *runner.Runner, v *viper.Viper) error {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&r.Options.ConfigFile, "config", "c", "", "Path to config.yaml (default: ./, ~/.config/docmigrate, /etc/docmigrate)")
	pf.BoolVar(&r.Options.DryRun, "dry-run", false, "Report intended changes without writing anything")
	pf.StringVar(&r.Options.Table, "table", "", "Restrict to one table: employee_documents, equipment_documents or media")
	pf.StringP("output", "o", string(migration.FormatText), "Output format: text, json or yaml")
	pf.Int("workers", migration.DefaultWorkers, "Number of records processed concurrently")
	pf.BoolP("debug", "d", false, "Enable debug logging")
	pf.String("metrics-file", "", "Write Prometheus metrics to this textfile after the run")

	bindings := map[string]string{
		"output":                "output",
		"migration.workers":     "workers",
		"debug":                 "debug",
		"metrics.textfile_path": "metrics-file",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
