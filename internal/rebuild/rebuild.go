// Package rebuild performs the nuclear rebuild: the consolidated collections
// are dropped and recreated in one pass, and optionally the legacy tables are
// dropped from the legacy database.
//
// A rebuild is destructive. It refuses to run without a valid backup, and it
// refuses to drop legacy tables the backup does not fully cover.
package rebuild

import (
	"context"
	"errors"
	"fmt"

	"github.com/pocketbase/pocketbase/core"
	"go.uber.org/zap"

	"github.com/geoffjay/garage/internal/backup"
	"github.com/geoffjay/garage/internal/legacy"
	"github.com/geoffjay/garage/internal/schema"
)

var (
	// ErrBackupRequired is returned when no backup is supplied.
	ErrBackupRequired = errors.New("a validated backup is required before rebuilding")
	// ErrBackupStale is returned when the legacy database no longer matches
	// the backup that is supposed to cover it.
	ErrBackupStale = errors.New("backup does not match the legacy database")
)

// Options controls a rebuild.
type Options struct {
	Backup *backup.Backup
	// Legacy and DropLegacy together drop every catalog object from the
	// legacy database after the consolidated schema is in place.
	Legacy     *legacy.Source
	DropLegacy bool
	Logger     *zap.Logger
}

// Result describes a finished rebuild.
type Result struct {
	Collections   []string
	LegacyDropped []string
}

// Rebuild drops and recreates the consolidated collections.
func Rebuild(ctx context.Context, app core.App, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.Backup == nil {
		return nil, ErrBackupRequired
	}
	if err := opts.Backup.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackupRequired, err)
	}

	var legacyObjects []legacy.SQLObject
	if opts.DropLegacy {
		if opts.Legacy == nil {
			return nil, errors.New("dropping legacy tables needs an open legacy database")
		}
		objects, err := checkCoverage(ctx, opts.Legacy, opts.Backup)
		if err != nil {
			return nil, err
		}
		legacyObjects = objects
	}

	err := app.RunInTransaction(func(txApp core.App) error {
		if err := schema.Drop(txApp); err != nil {
			return err
		}
		return schema.Apply(txApp)
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild failed, nothing was changed: %w", err)
	}

	result := &Result{Collections: schema.Names()}
	logger.Info("consolidated schema rebuilt", zap.Strings("collections", result.Collections))

	if len(legacyObjects) > 0 {
		if err := opts.Legacy.DropAll(ctx, legacyObjects); err != nil {
			return result, fmt.Errorf("consolidated schema rebuilt but legacy drop failed: %w", err)
		}
		for _, o := range legacyObjects {
			result.LegacyDropped = append(result.LegacyDropped, o.Name)
		}
		logger.Warn("legacy objects dropped",
			zap.String("legacy_db", opts.Legacy.Path()),
			zap.Int("count", len(result.LegacyDropped)),
		)
	}

	return result, nil
}

// checkCoverage returns the live catalog objects of the legacy database after
// confirming that every one of them is in the backup with the same row count.
func checkCoverage(ctx context.Context, src *legacy.Source, b *backup.Backup) ([]legacy.SQLObject, error) {
	objects, err := src.Objects(ctx)
	if err != nil {
		return nil, err
	}

	var covered []legacy.SQLObject
	for _, o := range objects {
		if _, ok := legacy.Lookup(o.Name); !ok {
			continue
		}
		td, ok := b.Tables[o.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not in the backup", ErrBackupStale, o.Name)
		}
		if o.Kind == legacy.KindTable {
			n, err := src.Count(ctx, o.Name)
			if err != nil {
				return nil, err
			}
			if n != td.Count {
				return nil, fmt.Errorf("%w: %s has %d rows, backup has %d", ErrBackupStale, o.Name, n, td.Count)
			}
		}
		covered = append(covered, o)
	}
	return covered, nil
}
