package rebuild

import (
	"context"
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffjay/garage/internal/backup"
	"github.com/geoffjay/garage/internal/exporter"
	"github.com/geoffjay/garage/internal/legacy"
	"github.com/geoffjay/garage/internal/legacy/legacytest"
	"github.com/geoffjay/garage/internal/schema"
	"github.com/geoffjay/garage/internal/testutil"
)

func exportFixture(t *testing.T) (*legacy.Source, *backup.Backup) {
	t.Helper()

	src, err := legacy.Open(legacytest.Create(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	b, _, err := exporter.Export(context.Background(), src, nil)
	require.NoError(t, err)
	return src, b
}

func TestRebuildRequiresBackup(t *testing.T) {
	app := testutil.NewBareApp(t)

	_, err := Rebuild(context.Background(), app, Options{})
	assert.ErrorIs(t, err, ErrBackupRequired)

	_, err = Rebuild(context.Background(), app, Options{Backup: &backup.Backup{}})
	assert.ErrorIs(t, err, ErrBackupRequired)

	assert.ErrorIs(t, schema.Check(app), schema.ErrMissing)
}

func TestRebuildRecreatesCollections(t *testing.T) {
	app := testutil.NewApp(t)
	_, b := exportFixture(t)

	tenants, err := app.FindCollectionByNameOrId(schema.Tenants)
	require.NoError(t, err)
	stale := core.NewRecord(tenants)
	stale.Set("name", "Stale")
	require.NoError(t, app.Save(stale))

	result, err := Rebuild(context.Background(), app, Options{Backup: b})
	require.NoError(t, err)
	assert.Equal(t, schema.Names(), result.Collections)
	assert.Empty(t, result.LegacyDropped)

	require.NoError(t, schema.Check(app))
	n, err := app.CountRecords(schema.Tenants)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRebuildOnFreshApp(t *testing.T) {
	app := testutil.NewBareApp(t)
	_, b := exportFixture(t)

	_, err := Rebuild(context.Background(), app, Options{Backup: b})
	require.NoError(t, err)
	require.NoError(t, schema.Check(app))
}

func TestRebuildDropsLegacy(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewBareApp(t)
	src, b := exportFixture(t)

	result, err := Rebuild(ctx, app, Options{Backup: b, Legacy: src, DropLegacy: true})
	require.NoError(t, err)
	assert.Len(t, result.LegacyDropped, 25)

	left, err := src.Objects(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRebuildRefusesStaleBackup(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewBareApp(t)
	src, b := exportFixture(t)

	legacytest.Exec(t, src.Path(), "INSERT INTO fuel_logs (id, vehicle_id, fill_date) VALUES ('f-late', 'v-1', '2024-04-01')")

	_, err := Rebuild(ctx, app, Options{Backup: b, Legacy: src, DropLegacy: true})
	assert.ErrorIs(t, err, ErrBackupStale)

	assert.ErrorIs(t, schema.Check(app), schema.ErrMissing, "nothing may change when the backup is stale")
	n, err := src.Count(ctx, legacy.TableFuelLogs)
	require.NoError(t, err)
	assert.Equal(t, legacytest.FuelRows+1, n)
}

func TestRebuildDropLegacyNeedsSource(t *testing.T) {
	app := testutil.NewBareApp(t)
	_, b := exportFixture(t)

	_, err := Rebuild(context.Background(), app, Options{Backup: b, DropLegacy: true})
	assert.Error(t, err)
}
