// Package exporter dumps a legacy garage database into a backup file.
package exporter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/geoffjay/garage/internal/backup"
	"github.com/geoffjay/garage/internal/legacy"
)

// Options controls an export run.
type Options struct {
	LegacyDB  string
	BackupDir string
	Logger    *zap.Logger
}

// Summary describes what an export captured.
type Summary struct {
	Path    string
	Tables  int
	Rows    int
	Events  int
	Missing []string
	Unknown []string
}

// Export reads every catalog object present in src into a backup. Views are
// recorded without rows, objects outside the catalog are skipped.
func Export(ctx context.Context, src *legacy.Source, logger *zap.Logger) (*backup.Backup, *Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	objects, err := src.Objects(ctx)
	if err != nil {
		return nil, nil, err
	}
	present := make(map[string]legacy.SQLObject, len(objects))
	for _, o := range objects {
		present[o.Name] = o
	}

	b := backup.New(src.Path())
	summary := &Summary{}

	for _, o := range objects {
		if _, ok := legacy.Lookup(o.Name); !ok {
			summary.Unknown = append(summary.Unknown, o.Name)
			logger.Warn("skipping object outside the legacy catalog", zap.String("object", o.Name), zap.String("kind", string(o.Kind)))
		}
	}

	for _, entry := range legacy.Catalog() {
		live, ok := present[entry.Name]
		if !ok {
			summary.Missing = append(summary.Missing, entry.Name)
			logger.Warn("legacy object not found", zap.String("object", entry.Name))
			continue
		}
		if live.Kind != entry.Kind {
			return nil, nil, fmt.Errorf("%s is a %s in the database, expected %s", entry.Name, live.Kind, entry.Kind)
		}

		if entry.Kind == legacy.KindView {
			b.Add(entry.Name, entry.Kind, nil)
			summary.Tables++
			continue
		}

		dump, err := src.Dump(ctx, entry.Name)
		if err != nil {
			return nil, nil, err
		}
		b.Add(entry.Name, entry.Kind, dump)
		summary.Tables++
		summary.Rows += len(dump.Rows)

		logger.Debug("exported table",
			zap.String("table", entry.Name),
			zap.String("disposition", string(entry.Disposition)),
			zap.Int("rows", len(dump.Rows)),
		)
	}

	summary.Events = b.EventRowTotal()
	return b, summary, nil
}

// Run opens the legacy database, exports it and writes the backup file.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	src, err := legacy.Open(opts.LegacyDB)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	b, summary, err := Export(ctx, src, logger)
	if err != nil {
		return nil, err
	}

	path, err := backup.Write(opts.BackupDir, b)
	if err != nil {
		return nil, err
	}
	summary.Path = path

	logger.Info("legacy export written",
		zap.String("path", path),
		zap.Int("tables", summary.Tables),
		zap.Int("rows", summary.Rows),
		zap.Int("event_rows", summary.Events),
		zap.Strings("missing", summary.Missing),
	)
	return summary, nil
}
