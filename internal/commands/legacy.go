// Package commands adds the legacy migration runbook to the PocketBase CLI:
// export the legacy tables, rebuild the consolidated schema, import the
// backup and verify the result.
package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geoffjay/garage/internal/backup"
	"github.com/geoffjay/garage/internal/config"
	"github.com/geoffjay/garage/internal/exporter"
	"github.com/geoffjay/garage/internal/importer"
	"github.com/geoffjay/garage/internal/legacy"
	"github.com/geoffjay/garage/internal/rebuild"
	"github.com/geoffjay/garage/internal/schema"
)

// ErrVerifyFailed is returned by `legacy verify` when the report is not OK.
var ErrVerifyFailed = errors.New("verification failed")

// NewLegacyCommand returns the `legacy` command group.
func NewLegacyCommand(app core.App, cfg *config.Config, logger *zap.Logger) *cobra.Command {
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Migrate the legacy garage schema into the consolidated collections",
		Long: `Runbook for the one-time consolidation of the legacy garage database:

  1. legacy export            dump every legacy table to a timestamped backup
  2. legacy rebuild --backup  drop and recreate the consolidated collections
  3. legacy import FILE       load the backup, folding per-type event tables
  4. legacy verify FILE       check every legacy event landed exactly once

FILE may be "latest" for the newest backup in the backup directory.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		newTablesCommand(cfg),
		newExportCommand(cfg, logger),
		newBackupsCommand(cfg),
		newRebuildCommand(app, cfg, logger),
		newImportCommand(app, cfg, logger),
		newVerifyCommand(app, cfg),
	)
	return cmd
}

func newTablesCommand(cfg *config.Config) *cobra.Command {
	legacyDB := cfg.Legacy.DB

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the legacy catalog with live row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := legacy.Open(legacyDB)
			if err != nil {
				return err
			}
			defer src.Close()

			ctx := cmd.Context()
			objects, err := src.Objects(ctx)
			if err != nil {
				return err
			}
			present := make(map[string]bool, len(objects))
			for _, o := range objects {
				present[o.Name] = true
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tAREA\tDISPOSITION\tROWS")
			for _, o := range legacy.Catalog() {
				rows := "missing"
				if present[o.Name] {
					n, err := src.Count(ctx, o.Name)
					if err != nil {
						return err
					}
					rows = fmt.Sprint(n)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.Name, o.Kind, o.Area, disposition(o), rows)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d carried, %d folded, %d dropped\n",
				len(legacy.Carried()), len(legacy.Folded()), len(legacy.Dropped()))
			return nil
		},
	}

	cmd.Flags().StringVar(&legacyDB, "legacy-db", legacyDB, "path to the legacy SQLite database")
	return cmd
}

func newExportCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	opts := exporter.Options{
		LegacyDB:  cfg.Legacy.DB,
		BackupDir: cfg.Backup.Dir,
		Logger:    logger,
	}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every legacy table to a timestamped JSON backup",
		Long: `Dumps every legacy table to garage-backup-YYYYMMDDTHHMMSSZ.json in the
backup directory. Existing backups are never replaced; a second export
within the same second is written as garage-backup-...Z-2.json.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := exporter.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Exported %d objects (%d rows, %d event rows) to %s\n",
				summary.Tables, summary.Rows, summary.Events, summary.Path)
			for _, name := range summary.Missing {
				fmt.Fprintf(out, "  missing: %s\n", name)
			}
			for _, name := range summary.Unknown {
				fmt.Fprintf(out, "  skipped (not in catalog): %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.LegacyDB, "legacy-db", opts.LegacyDB, "path to the legacy SQLite database")
	cmd.Flags().StringVar(&opts.BackupDir, "backup-dir", opts.BackupDir, "directory the backup file is written to")
	return cmd
}

func newBackupsCommand(cfg *config.Config) *cobra.Command {
	dir := cfg.Backup.Dir

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List the backups in the backup directory, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := backup.List(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No backups in %s\n", dir)
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EXPORTED\tPATH")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\n", e.ExportedAt.Format(time.RFC3339), e.Path)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dir, "backup-dir", dir, "directory holding the backup files")
	return cmd
}

// readBackup loads the named backup; "latest" picks the newest one in dir.
func readBackup(dir, name string) (*backup.Backup, error) {
	if name == latestBackup {
		path, err := backup.Latest(dir)
		if err != nil {
			return nil, err
		}
		name = path
	}
	return backup.Read(name)
}

const latestBackup = "latest"

func newRebuildCommand(app core.App, cfg *config.Config, logger *zap.Logger) *cobra.Command {
	var (
		backupPath string
		yes        bool
		dropLegacy bool
		legacyDB   = cfg.Legacy.DB
	)

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Drop and recreate the consolidated collections (destructive)",
		Long: `Drops every consolidated collection and recreates it empty. Imported
legacy users are deleted; other accounts are kept.

With --drop-legacy the legacy tables and views are dropped as well, but only
if every one of them is in the backup with an unchanged row count.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to rebuild without --yes")
			}
			if backupPath == "" {
				return rebuild.ErrBackupRequired
			}

			b, err := readBackup(cfg.Backup.Dir, backupPath)
			if err != nil {
				return err
			}

			opts := rebuild.Options{Backup: b, DropLegacy: dropLegacy, Logger: logger}
			if dropLegacy {
				src, err := legacy.Open(legacyDB)
				if err != nil {
					return err
				}
				defer src.Close()
				opts.Legacy = src
			}

			result, err := rebuild.Rebuild(cmd.Context(), app, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rebuilt %d collections\n", len(result.Collections))
			if len(result.LegacyDropped) > 0 {
				fmt.Fprintf(out, "Dropped %d legacy objects from %s\n", len(result.LegacyDropped), legacyDB)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&backupPath, "backup", "", "backup file taken before the rebuild, or \"latest\" (required)")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive rebuild")
	cmd.Flags().BoolVar(&dropLegacy, "drop-legacy", false, "also drop the legacy tables and views")
	cmd.Flags().StringVar(&legacyDB, "legacy-db", legacyDB, "path to the legacy SQLite database")
	return cmd
}

func newImportCommand(app core.App, cfg *config.Config, logger *zap.Logger) *cobra.Command {
	opts := importer.Options{Strict: cfg.Import.Strict, Logger: logger}

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load a legacy backup into the consolidated collections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readBackup(cfg.Backup.Dir, args[0])
			if err != nil {
				return err
			}

			result, err := importer.Import(cmd.Context(), app, b, opts)
			if err != nil {
				return err
			}
			printImport(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "import, report and roll back")
	cmd.Flags().BoolVar(&opts.Strict, "strict", opts.Strict, "abort on the first invalid or orphaned row")
	return cmd
}

func newVerifyCommand(app core.App, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE",
		Short: "Check that every legacy event row was imported exactly once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readBackup(cfg.Backup.Dir, args[0])
			if err != nil {
				return err
			}

			report, err := importer.Verify(cmd.Context(), app, b)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			if !report.OK() {
				return ErrVerifyFailed
			}
			return nil
		},
	}
}

var importOrder = []string{
	schema.Tenants,
	schema.Users,
	schema.Garages,
	schema.Vehicles,
	schema.VehicleImages,
	schema.Reminders,
	schema.Events,
}

func disposition(o legacy.Object) string {
	switch o.Disposition {
	case legacy.Carry:
		return "carry -> " + o.Target
	case legacy.Fold:
		return "fold -> events[" + o.EventType + "]"
	}
	return string(o.Disposition)
}

func printImport(out io.Writer, r *importer.Result) {
	if r.DryRun {
		fmt.Fprintln(out, "Dry run, nothing was written.")
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tCREATED\tSKIPPED")
	for _, name := range importOrder {
		fmt.Fprintf(w, "%s\t%d\t%d\n", name, r.Created(name), r.Skipped(name))
	}
	_ = w.Flush()

	for _, issue := range r.Orphans {
		fmt.Fprintf(out, "orphan: %s\n", issue)
	}
	for _, issue := range r.Invalid {
		fmt.Fprintf(out, "invalid: %s\n", issue)
	}
}

func printReport(out io.Writer, r *importer.Report) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tTYPE\tEXPECTED\tFOUND\tSTATUS")
	for _, c := range r.Tables {
		status := "ok"
		switch {
		case len(c.Missing) > 0:
			status = fmt.Sprintf("%d missing", len(c.Missing))
		case len(c.Duplicate) > 0:
			status = fmt.Sprintf("%d duplicated", len(c.Duplicate))
		case len(c.Mismatched) > 0:
			status = fmt.Sprintf("%d mismatched", len(c.Mismatched))
		case len(c.Invalid) > 0:
			status = fmt.Sprintf("%d invalid", len(c.Invalid))
		case c.Expected != c.Found:
			status = "count differs"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", c.Table, c.EventType, c.Expected, c.Found, status)
	}
	_ = w.Flush()

	fmt.Fprintf(out, "legacy events: %d of %d expected (%d events in total)\n",
		r.LegacyEvents, r.ExpectedTotal, r.TotalEvents)
	for _, c := range r.Tables {
		for _, m := range c.Mismatched {
			fmt.Fprintf(out, "mismatch %s/%s\n", c.Table, m)
		}
	}
}
