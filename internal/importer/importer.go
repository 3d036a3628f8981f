// Package importer loads a legacy backup into the consolidated collections.
//
// Carried tables are imported parents first so relations can be resolved
// through each record's legacyId, then the four per-type event tables are
// folded into the unified events collection. A row whose legacyId already
// exists is skipped, so importing the same backup twice is harmless.
package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/security"
	"go.uber.org/zap"

	"github.com/geoffjay/garage/internal/backup"
	"github.com/geoffjay/garage/internal/legacy"
	"github.com/geoffjay/garage/internal/mapping"
	"github.com/geoffjay/garage/internal/schema"
)

// ErrSchemaMissing is returned when the consolidated collections have not
// been created yet.
var ErrSchemaMissing = errors.New("consolidated schema missing, run the rebuild first")

// ErrOrphan is returned in strict mode for rows whose parent is unknown.
var ErrOrphan = errors.New("orphaned legacy row")

var errDryRun = errors.New("dry run")

// Options contains import configuration.
type Options struct {
	DryRun bool // Run the whole import, then roll it back
	Strict bool // Fail on the first invalid or orphaned row
	Logger *zap.Logger
}

// Counts tracks one target collection.
type Counts struct {
	Created int
	Skipped int // already imported by a previous run
}

// Issue is a legacy row that could not be imported.
type Issue struct {
	Table    string
	LegacyID string
	Reason   string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s/%s: %s", i.Table, i.LegacyID, i.Reason)
}

// Result contains statistics about the import operation.
type Result struct {
	Collections map[string]*Counts
	Orphans     []Issue
	Invalid     []Issue
	DryRun      bool
}

func (r *Result) counts(collection string) *Counts {
	c, ok := r.Collections[collection]
	if !ok {
		c = &Counts{}
		r.Collections[collection] = c
	}
	return c
}

// Created returns how many records were created in a collection.
func (r *Result) Created(collection string) int {
	if c, ok := r.Collections[collection]; ok {
		return c.Created
	}
	return 0
}

// Skipped returns how many rows of a collection were already present.
func (r *Result) Skipped(collection string) int {
	if c, ok := r.Collections[collection]; ok {
		return c.Skipped
	}
	return 0
}

type importer struct {
	app    core.App
	opts   Options
	logger *zap.Logger
	result *Result
	// ids maps legacy table -> legacy id -> consolidated record id.
	ids map[string]map[string]string
}

// Import loads b into app in a single transaction.
func Import(ctx context.Context, app core.App, b *backup.Backup, opts Options) (*Result, error) {
	if b == nil {
		return nil, errors.New("no backup to import")
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	result := &Result{Collections: make(map[string]*Counts), DryRun: opts.DryRun}

	err := app.RunInTransaction(func(txApp core.App) error {
		if err := schema.Check(txApp); err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
		}

		im := &importer{
			app:    txApp,
			opts:   opts,
			logger: logger,
			result: result,
			ids:    make(map[string]map[string]string),
		}

		for _, o := range legacy.Carried() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := im.carry(o, b.Rows(o.Name)); err != nil {
				return err
			}
		}
		for _, o := range legacy.Folded() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := im.fold(o, b.Rows(o.Name)); err != nil {
				return err
			}
		}

		if opts.DryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return nil, err
	}

	logger.Info("legacy import finished",
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("events_created", result.Created(schema.Events)),
		zap.Int("events_skipped", result.Skipped(schema.Events)),
		zap.Int("orphans", len(result.Orphans)),
		zap.Int("invalid", len(result.Invalid)),
	)
	return result, nil
}

func (im *importer) carry(o legacy.Object, rows []legacy.Row) error {
	mapper, err := mapping.RecordForTable(o.Name)
	if err != nil {
		return err
	}
	collection, err := im.app.FindCollectionByNameOrId(o.Target)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSchemaMissing, o.Target)
	}
	existing, err := legacyIDs(im.app, collection, nil)
	if err != nil {
		return err
	}
	ids := make(map[string]string, len(rows))
	im.ids[o.Name] = ids
	counts := im.result.counts(o.Target)

	for _, row := range rows {
		rec, err := mapper(row)
		if err != nil {
			if ierr := im.reject(&im.result.Invalid, o.Name, row.String("id"), err); ierr != nil {
				return ierr
			}
			continue
		}

		if id, ok := existing[rec.LegacyID]; ok {
			ids[rec.LegacyID] = id
			counts.Skipped++
			continue
		}

		record := core.NewRecord(collection)
		for field, value := range rec.Fields {
			record.Set(field, value)
		}
		record.Set(schema.LegacyIDField, rec.LegacyID)

		if p := rec.Parent; p != nil {
			parentID, ok := im.ids[p.Table][p.LegacyID]
			switch {
			case ok:
				record.Set(p.Field, parentID)
			case p.Required:
				orphan := fmt.Errorf("%w: unknown %s %s", ErrOrphan, p.Table, p.LegacyID)
				if ierr := im.reject(&im.result.Orphans, o.Name, rec.LegacyID, orphan); ierr != nil {
					return ierr
				}
				continue
			default:
				im.logger.Warn("dropping unresolved optional relation",
					zap.String("table", o.Name),
					zap.String("legacy_id", rec.LegacyID),
					zap.String("parent", p.Table+"/"+p.LegacyID),
				)
			}
		}

		if collection.IsAuth() {
			record.SetPassword(security.RandomString(32))
			record.SetVerified(false)
		}

		if err := im.app.Save(record); err != nil {
			if ierr := im.reject(&im.result.Invalid, o.Name, rec.LegacyID, err); ierr != nil {
				return ierr
			}
			continue
		}
		ids[rec.LegacyID] = record.Id
		counts.Created++
	}
	return nil
}

func (im *importer) fold(o legacy.Object, rows []legacy.Row) error {
	mapper, err := mapping.ForTable(o.Name)
	if err != nil {
		return err
	}
	collection, err := im.app.FindCollectionByNameOrId(schema.Events)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSchemaMissing, schema.Events)
	}
	existing, err := legacyIDs(im.app, collection, dbx.HashExp{"legacyTable": o.Name})
	if err != nil {
		return err
	}
	counts := im.result.counts(schema.Events)

	for _, row := range rows {
		ev, err := mapper(row)
		if err != nil {
			if ierr := im.reject(&im.result.Invalid, o.Name, row.String("id"), err); ierr != nil {
				return ierr
			}
			continue
		}

		if _, ok := existing[ev.LegacyID]; ok {
			counts.Skipped++
			continue
		}

		vehicleID, ok := im.ids[legacy.TableVehicles][ev.VehicleRef]
		if !ok {
			orphan := fmt.Errorf("%w: unknown vehicle %s", ErrOrphan, ev.VehicleRef)
			if ierr := im.reject(&im.result.Orphans, o.Name, ev.LegacyID, orphan); ierr != nil {
				return ierr
			}
			continue
		}

		record := core.NewRecord(collection)
		record.Set("vehicle", vehicleID)
		record.Set("type", ev.Type)
		record.Set("date", ev.Date)
		record.Set("mileage", ev.Mileage)
		record.Set("payload", ev.Payload)
		record.Set("notes", ev.Notes)
		record.Set("legacyTable", ev.LegacyTable)
		record.Set(schema.LegacyIDField, ev.LegacyID)

		if err := im.app.Save(record); err != nil {
			if ierr := im.reject(&im.result.Invalid, o.Name, ev.LegacyID, err); ierr != nil {
				return ierr
			}
			continue
		}
		counts.Created++
	}
	return nil
}

// reject records a row that could not be imported. In strict mode the
// failure aborts the whole import instead, so nothing is written.
func (im *importer) reject(list *[]Issue, table, legacyID string, cause error) error {
	if im.opts.Strict {
		return fmt.Errorf("%s/%s: %w", table, legacyID, cause)
	}
	*list = append(*list, Issue{Table: table, LegacyID: legacyID, Reason: cause.Error()})
	im.logger.Warn("skipping legacy row",
		zap.String("table", table),
		zap.String("legacy_id", legacyID),
		zap.Error(cause),
	)
	return nil
}

// legacyIDs maps the legacyId of every previously imported record to its id.
func legacyIDs(app core.App, collection *core.Collection, scope dbx.Expression) (map[string]string, error) {
	exprs := []dbx.Expression{dbx.NewExp("[[" + schema.LegacyIDField + "]] != ''")}
	if scope != nil {
		exprs = append(exprs, scope)
	}
	records, err := app.FindAllRecords(collection, exprs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load imported %s: %w", collection.Name, err)
	}
	ids := make(map[string]string, len(records))
	for _, r := range records {
		ids[r.GetString(schema.LegacyIDField)] = r.Id
	}
	return ids, nil
}
