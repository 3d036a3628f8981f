package exporter

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geoffjay/garage/internal/backup"
	"github.com/geoffjay/garage/internal/legacy"
	"github.com/geoffjay/garage/internal/legacy/legacytest"
)

func TestExportFixture(t *testing.T) {
	src, err := legacy.Open(legacytest.Create(t))
	require.NoError(t, err)
	defer src.Close()

	b, summary, err := Export(context.Background(), src, zap.NewNop())
	require.NoError(t, err)

	assert.Len(t, b.Tables, 25)
	assert.Empty(t, summary.Missing)
	assert.Empty(t, summary.Unknown)
	assert.Equal(t, legacytest.EventRows, summary.Events)
	assert.Equal(t, 15, b.EventRowTotal())

	assert.Len(t, b.Rows(legacy.TableOdometerReadings), legacytest.OdometerRows)
	assert.Len(t, b.Rows(legacy.TableFuelLogs), legacytest.FuelRows)
	assert.Len(t, b.Rows(legacy.TableServiceRecords), legacytest.ServiceRows)
	assert.Len(t, b.Rows(legacy.TableVehicleEvents), legacytest.ManualRows)

	view := b.Tables["vehicle_health_summary"]
	require.NotNil(t, view)
	assert.Equal(t, legacy.KindView, view.Kind)
	assert.Empty(t, view.Rows)

	require.NoError(t, b.Validate())
}

func TestExportReportsMissingAndUnknown(t *testing.T) {
	path := legacytest.Create(t)
	legacytest.Exec(t, path,
		"DROP TABLE audit_logs",
		"CREATE TABLE scratch (id INTEGER)",
	)

	src, err := legacy.Open(path)
	require.NoError(t, err)
	defer src.Close()

	b, summary, err := Export(context.Background(), src, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"audit_logs"}, summary.Missing)
	assert.Equal(t, []string{"scratch"}, summary.Unknown)
	assert.Len(t, b.Tables, 24)
	_, ok := b.Tables["scratch"]
	assert.False(t, ok)
}

func TestExportKindMismatch(t *testing.T) {
	path := legacytest.Create(t)
	legacytest.Exec(t, path,
		"DROP VIEW vehicle_health_summary",
		"CREATE TABLE vehicle_health_summary (vehicle_id TEXT, score INTEGER)",
	)

	src, err := legacy.Open(path)
	require.NoError(t, err)
	defer src.Close()

	_, _, err = Export(context.Background(), src, nil)
	assert.Error(t, err)
}

func TestRunWritesBackup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")

	summary, err := Run(context.Background(), Options{
		LegacyDB:  legacytest.Create(t),
		BackupDir: dir,
	})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(summary.Path))

	_, _, err = backup.ParseFileName(summary.Path)
	require.NoError(t, err)

	b, err := backup.Read(summary.Path)
	require.NoError(t, err)
	assert.Equal(t, legacytest.EventRows, b.EventRowTotal())
	assert.Equal(t, summary.Rows, countRows(b))
}

func TestRunMissingDatabase(t *testing.T) {
	_, err := Run(context.Background(), Options{
		LegacyDB:  filepath.Join(t.TempDir(), "absent.db"),
		BackupDir: t.TempDir(),
	})
	assert.Error(t, err)
}

func countRows(b *backup.Backup) int {
	n := 0
	for _, td := range b.Tables {
		n += len(td.Rows)
	}
	return n
}
