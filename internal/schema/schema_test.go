package schema_test

import (
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffjay/garage/internal/schema"
	"github.com/geoffjay/garage/internal/testutil"
)

func TestApplyCreatesCollections(t *testing.T) {
	app := testutil.NewBareApp(t)

	assert.ErrorIs(t, schema.Check(app), schema.ErrMissing)
	require.NoError(t, schema.Apply(app))
	require.NoError(t, schema.Check(app))

	for _, name := range schema.Names() {
		collection, err := app.FindCollectionByNameOrId(name)
		require.NoError(t, err, name)

		switch name {
		case schema.Users:
			assert.Equal(t, core.CollectionTypeAuth, collection.Type)
		case schema.CurrentMileage:
			assert.Equal(t, core.CollectionTypeView, collection.Type)
		default:
			assert.Equal(t, core.CollectionTypeBase, collection.Type, name)
			assert.NotNil(t, collection.Fields.GetByName(schema.LegacyIDField), name)
		}
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	app := testutil.NewApp(t)

	require.NoError(t, schema.Apply(app))

	events, err := app.FindCollectionByNameOrId(schema.Events)
	require.NoError(t, err)

	count := 0
	for _, f := range events.Fields {
		if f.GetName() == "payload" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestEventsFields(t *testing.T) {
	app := testutil.NewApp(t)

	events, err := app.FindCollectionByNameOrId(schema.Events)
	require.NoError(t, err)

	expected := map[string]string{
		"vehicle":            core.FieldTypeRelation,
		"type":               core.FieldTypeSelect,
		"date":               core.FieldTypeDate,
		"mileage":            core.FieldTypeNumber,
		"payload":            core.FieldTypeJSON,
		"notes":              core.FieldTypeText,
		"legacyTable":        core.FieldTypeText,
		schema.LegacyIDField: core.FieldTypeText,
	}
	for name, typ := range expected {
		f := events.Fields.GetByName(name)
		if !assert.NotNil(t, f, name) {
			continue
		}
		assert.Equal(t, typ, f.Type(), name)
	}

	typeField, ok := events.Fields.GetByName("type").(*core.SelectField)
	require.True(t, ok)
	assert.ElementsMatch(t, schema.EventTypes, typeField.Values)
}

func TestDropThenApply(t *testing.T) {
	app := testutil.NewApp(t)

	require.NoError(t, schema.Drop(app))

	for _, name := range schema.Names() {
		_, err := app.FindCollectionByNameOrId(name)
		if name == schema.Users {
			assert.NoError(t, err, "users must survive a drop")
			continue
		}
		assert.Error(t, err, name)
	}

	users, err := app.FindCollectionByNameOrId(schema.Users)
	require.NoError(t, err)
	assert.Nil(t, users.Fields.GetByName("tenant"))

	require.NoError(t, schema.Apply(app))
	require.NoError(t, schema.Check(app))
}

func TestCurrentMileageView(t *testing.T) {
	app := testutil.NewApp(t)

	tenant := core.NewRecord(mustCollection(t, app, schema.Tenants))
	tenant.Set("name", "Acme")
	require.NoError(t, app.Save(tenant))

	garage := core.NewRecord(mustCollection(t, app, schema.Garages))
	garage.Set("tenant", tenant.Id)
	require.NoError(t, app.Save(garage))

	vehicle := core.NewRecord(mustCollection(t, app, schema.Vehicles))
	vehicle.Set("garage", garage.Id)
	vehicle.Set("name", "Truck")
	require.NoError(t, app.Save(vehicle))

	idle := core.NewRecord(mustCollection(t, app, schema.Vehicles))
	idle.Set("garage", garage.Id)
	require.NoError(t, app.Save(idle))

	readings := []struct {
		date    string
		mileage float64
	}{
		{"2024-03-01 00:00:00.000Z", 41000},
		{"2024-03-02 00:00:00.000Z", 42150.5},
		{"2024-03-03 00:00:00.000Z", 0},
	}
	for _, r := range readings {
		ev := core.NewRecord(mustCollection(t, app, schema.Events))
		ev.Set("vehicle", vehicle.Id)
		ev.Set("type", "odometer")
		ev.Set("date", r.date)
		ev.Set("mileage", r.mileage)
		require.NoError(t, app.Save(ev))
	}

	row, err := app.FindRecordById(schema.CurrentMileage, vehicle.Id)
	require.NoError(t, err)
	assert.Equal(t, 42150.5, row.GetFloat("mileage"))
	assert.Equal(t, tenant.Id, row.GetString("tenant"))

	row, err = app.FindRecordById(schema.CurrentMileage, idle.Id)
	require.NoError(t, err)
	assert.Zero(t, row.GetFloat("mileage"))
}

func mustCollection(t *testing.T, app core.App, name string) *core.Collection {
	t.Helper()
	collection, err := app.FindCollectionByNameOrId(name)
	require.NoError(t, err)
	return collection
}
