package legacy_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffjay/garage/internal/legacy"
	"github.com/geoffjay/garage/internal/legacy/legacytest"
)

func openFixture(t *testing.T) *legacy.Source {
	t.Helper()
	src, err := legacy.Open(legacytest.Create(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestOpenMissingFile(t *testing.T) {
	_, err := legacy.Open(filepath.Join(t.TempDir(), "absent.db"))
	assert.Error(t, err)
}

func TestObjectsMatchCatalog(t *testing.T) {
	src := openFixture(t)

	objects, err := src.Objects(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, len(legacy.Catalog()))

	for _, o := range objects {
		entry, ok := legacy.Lookup(o.Name)
		require.True(t, ok, "%s not in catalog", o.Name)
		assert.Equal(t, entry.Kind, o.Kind, o.Name)
	}
}

func TestCountAndDump(t *testing.T) {
	ctx := context.Background()
	src := openFixture(t)

	n, err := src.Count(ctx, legacy.TableFuelLogs)
	require.NoError(t, err)
	assert.Equal(t, legacytest.FuelRows, n)

	dump, err := src.Dump(ctx, legacy.TableOdometerReadings)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "vehicle_id", "mileage", "reading_date", "notes"}, dump.Columns)
	require.Len(t, dump.Rows, legacytest.OdometerRows)

	first := dump.Rows[0]
	assert.Equal(t, "o-1", first.String("id"))
	mileage, err := first.Float("mileage")
	require.NoError(t, err)
	assert.Equal(t, 41000.0, mileage)
	assert.Nil(t, first["notes"])
}

func TestDumpNormalizesBlobs(t *testing.T) {
	src := openFixture(t)

	dump, err := src.Dump(context.Background(), "vin_cache")
	require.NoError(t, err)
	require.Len(t, dump.Rows, 1)
	assert.Equal(t, "{}", dump.Rows[0]["payload"])
}

func TestDropAll(t *testing.T) {
	ctx := context.Background()
	src := openFixture(t)

	objects, err := src.Objects(ctx)
	require.NoError(t, err)
	require.NoError(t, src.DropAll(ctx, objects))

	left, err := src.Objects(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}
