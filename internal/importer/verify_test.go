package importer

import (
	"context"
	"testing"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffjay/garage/internal/legacy"
	"github.com/geoffjay/garage/internal/legacy/legacytest"
	"github.com/geoffjay/garage/internal/schema"
	"github.com/geoffjay/garage/internal/testutil"
)

func TestVerifyAfterImport(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	b := fixtureBackup(t)

	_, err := Import(ctx, app, b, Options{})
	require.NoError(t, err)

	report, err := Verify(ctx, app, b)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, legacytest.EventRows, report.ExpectedTotal)
	assert.Equal(t, legacytest.EventRows, report.LegacyEvents)
	assert.Equal(t, legacytest.EventRows, report.TotalEvents)
	require.Len(t, report.Tables, 4)
}

func TestVerifyBeforeImport(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	b := fixtureBackup(t)

	report, err := Verify(ctx, app, b)
	require.NoError(t, err)
	assert.False(t, report.OK())

	for _, c := range report.Tables {
		assert.Len(t, c.Missing, c.Expected, c.Table)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	b := fixtureBackup(t)

	_, err := Import(ctx, app, b, Options{})
	require.NoError(t, err)

	fuel := eventsOf(t, app, legacy.TableFuelLogs)["f-2"]
	require.NotNil(t, fuel)
	fuel.Set("payload", map[string]any{"total_amount": 1.0})
	require.NoError(t, app.Save(fuel))

	odo := eventsOf(t, app, legacy.TableOdometerReadings)["o-3"]
	require.NotNil(t, odo)
	require.NoError(t, app.Delete(odo))

	report, err := Verify(ctx, app, b)
	require.NoError(t, err)
	assert.False(t, report.OK())

	checks := map[string]*TableCheck{}
	for _, c := range report.Tables {
		checks[c.Table] = c
	}
	assert.Equal(t, []string{"o-3"}, checks[legacy.TableOdometerReadings].Missing)
	require.Len(t, checks[legacy.TableFuelLogs].Mismatched, 1)
	assert.Contains(t, checks[legacy.TableFuelLogs].Mismatched[0], "f-2")
	assert.Equal(t, legacytest.EventRows-1, report.LegacyEvents)
}

func TestVerifyIgnoresNewEvents(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	b := fixtureBackup(t)

	_, err := Import(ctx, app, b, Options{})
	require.NoError(t, err)

	vehicle, err := app.FindFirstRecordByData(schema.Vehicles, schema.LegacyIDField, "v-2")
	require.NoError(t, err)
	events, err := app.FindCollectionByNameOrId(schema.Events)
	require.NoError(t, err)

	fresh := core.NewRecord(events)
	fresh.Set("vehicle", vehicle.Id)
	fresh.Set("type", legacy.EventOdometer)
	fresh.Set("date", "2026-10-01 00:00:00.000Z")
	fresh.Set("mileage", 30000)
	require.NoError(t, app.Save(fresh))

	report, err := Verify(ctx, app, b)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, legacytest.EventRows+1, report.TotalEvents)
}

func TestVerifySubMillisecondDates(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	b := fixtureBackup(t)

	rows := b.Rows(legacy.TableOdometerReadings)
	require.NotEmpty(t, rows)
	rows[0]["reading_date"] = "2024-02-01T10:15:30.123456Z"
	id := rows[0].String("id")

	_, err := Import(ctx, app, b, Options{})
	require.NoError(t, err)

	stored := eventsOf(t, app, legacy.TableOdometerReadings)[id]
	require.NotNil(t, stored)
	assert.True(t, stored.GetDateTime("date").Time().Equal(time.Date(2024, 2, 1, 10, 15, 30, 123000000, time.UTC)))

	report, err := Verify(ctx, app, b)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report.Tables)
}

func TestVerifyReportsFullTimestamps(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	b := fixtureBackup(t)

	_, err := Import(ctx, app, b, Options{})
	require.NoError(t, err)

	odo := eventsOf(t, app, legacy.TableOdometerReadings)["o-1"]
	require.NotNil(t, odo)
	want := odo.GetDateTime("date").Time()
	odo.Set("date", want.Add(90*time.Minute))
	require.NoError(t, app.Save(odo))

	svc := eventsOf(t, app, legacy.TableServiceRecords)["s-1"]
	require.NotNil(t, svc)
	svc.Set("notes", "edited")
	require.NoError(t, app.Save(svc))

	report, err := Verify(ctx, app, b)
	require.NoError(t, err)
	assert.False(t, report.OK())

	checks := map[string]*TableCheck{}
	for _, c := range report.Tables {
		checks[c.Table] = c
	}
	require.Len(t, checks[legacy.TableOdometerReadings].Mismatched, 1)
	assert.Contains(t, checks[legacy.TableOdometerReadings].Mismatched[0], want.Add(90*time.Minute).Format(time.RFC3339Nano))
	assert.Contains(t, checks[legacy.TableOdometerReadings].Mismatched[0], want.Format(time.RFC3339Nano))
	require.Len(t, checks[legacy.TableServiceRecords].Mismatched, 1)
	assert.Contains(t, checks[legacy.TableServiceRecords].Mismatched[0], `notes "edited"`)
}
