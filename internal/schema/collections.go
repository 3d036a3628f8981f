package schema

import (
	"github.com/pocketbase/pocketbase/core"
)

const (
	tenantRead  = "@request.auth.id != '' && id = @request.auth.tenant"
	garageRead  = "@request.auth.id != '' && tenant = @request.auth.tenant"
	vehicleRead = "@request.auth.id != '' && garage.tenant = @request.auth.tenant"
	childRead   = "@request.auth.id != '' && vehicle.garage.tenant = @request.auth.tenant"
)

func EnsureTenants(app core.App) error {
	collection, err := findOrNew(app, TenantsID, Tenants, core.CollectionTypeBase)
	if err != nil {
		return err
	}

	addField(collection,
		&core.TextField{
			Name:     "name",
			Required: true,
			Min:      1,
			Max:      255,
		},
		&core.TextField{
			Name:    "slug",
			Max:     100,
			Pattern: `^[a-z0-9][a-z0-9-]*$`,
		},
	)
	addLegacyID(collection)
	addTimestamps(collection)
	collection.AddIndex("idx_tenants_slug", true, "`slug`", "`slug` != ''")

	collection.ListRule = ptrStr(tenantRead)
	collection.ViewRule = ptrStr(tenantRead)

	return app.Save(collection)
}

// EnsureUsers extends the default users auth collection with a tenant.
func EnsureUsers(app core.App) error {
	collection, err := findOrNew(app, UsersID, Users, core.CollectionTypeAuth)
	if err != nil {
		return err
	}

	addField(collection,
		&core.TextField{
			Name:     "name",
			Required: false,
			Max:      255,
		},
		&core.RelationField{
			Name:         "tenant",
			CollectionId: TenantsID,
			MaxSelect:    1,
		},
	)
	addLegacyID(collection)

	return app.Save(collection)
}

func EnsureGarages(app core.App) error {
	collection, err := findOrNew(app, GaragesID, Garages, core.CollectionTypeBase)
	if err != nil {
		return err
	}

	addField(collection,
		&core.RelationField{
			Name:          "tenant",
			Required:      true,
			CollectionId:  TenantsID,
			CascadeDelete: true,
			MaxSelect:     1,
		},
		&core.TextField{
			Name:     "name",
			Required: false,
			Max:      255,
		},
	)
	addLegacyID(collection)
	addTimestamps(collection)

	setRules(collection, garageRead, garageRead)

	return app.Save(collection)
}

func EnsureVehicles(app core.App) error {
	collection, err := findOrNew(app, VehiclesID, Vehicles, core.CollectionTypeBase)
	if err != nil {
		return err
	}

	addField(collection,
		&core.RelationField{
			Name:          "garage",
			Required:      true,
			CollectionId:  GaragesID,
			CascadeDelete: true,
			MaxSelect:     1,
		},
		&core.TextField{
			Name: "name",
			Max:  255,
		},
		&core.TextField{
			Name: "make",
			Max:  100,
		},
		&core.TextField{
			Name: "model",
			Max:  100,
		},
		&core.NumberField{
			Name:    "year",
			OnlyInt: true,
		},
		&core.TextField{
			Name: "vin",
			Max:  17,
		},
	)
	addLegacyID(collection)
	addTimestamps(collection)

	setRules(collection, vehicleRead, vehicleRead)

	return app.Save(collection)
}

// EnsureEvents creates the unified vehicle events collection. Every kind of
// occurrence shares the date and mileage columns; anything specific to a
// type lives in payload.
func EnsureEvents(app core.App) error {
	collection, err := findOrNew(app, EventsID, Events, core.CollectionTypeBase)
	if err != nil {
		return err
	}

	addField(collection,
		&core.RelationField{
			Name:          "vehicle",
			Required:      true,
			CollectionId:  VehiclesID,
			CascadeDelete: true,
			MaxSelect:     1,
		},
		&core.SelectField{
			Name:      "type",
			Required:  true,
			Values:    EventTypes,
			MaxSelect: 1,
		},
		&core.DateField{
			Name:     "date",
			Required: true,
		},
		&core.NumberField{
			Name: "mileage",
		},
		&core.JSONField{
			Name:    "payload",
			MaxSize: 100000,
		},
		&core.TextField{
			Name: "notes",
			Max:  5000,
		},
		&core.TextField{
			Name: "legacyTable",
			Max:  100,
		},
	)
	// Legacy ids are only unique within their source table.
	addLegacyID(collection, "legacyTable")
	addTimestamps(collection)
	collection.AddIndex("idx_events_vehicle_date", false, "`vehicle`, `date`", "")

	setRules(collection, childRead, childRead)

	return app.Save(collection)
}

func EnsureVehicleImages(app core.App) error {
	collection, err := findOrNew(app, VehicleImagesID, VehicleImages, core.CollectionTypeBase)
	if err != nil {
		return err
	}

	addField(collection,
		&core.RelationField{
			Name:          "vehicle",
			Required:      true,
			CollectionId:  VehiclesID,
			CascadeDelete: true,
			MaxSelect:     1,
		},
		&core.FileField{
			Name:      "image",
			MaxSelect: 1,
			MaxSize:   10 << 20,
			MimeTypes: []string{"image/jpeg", "image/png", "image/webp"},
		},
		&core.TextField{
			Name: "url",
			Max:  2000,
		},
		&core.TextField{
			Name: "caption",
			Max:  500,
		},
		&core.BoolField{
			Name: "isPrimary",
		},
	)
	addLegacyID(collection)
	addTimestamps(collection)

	setRules(collection, childRead, childRead)

	return app.Save(collection)
}

func EnsureReminders(app core.App) error {
	collection, err := findOrNew(app, RemindersID, Reminders, core.CollectionTypeBase)
	if err != nil {
		return err
	}

	addField(collection,
		&core.RelationField{
			Name:          "vehicle",
			Required:      true,
			CollectionId:  VehiclesID,
			CascadeDelete: true,
			MaxSelect:     1,
		},
		&core.TextField{
			Name:     "title",
			Required: true,
			Min:      1,
			Max:      255,
		},
		&core.DateField{
			Name: "dueDate",
		},
		&core.NumberField{
			Name: "dueMileage",
		},
		&core.BoolField{
			Name: "completed",
		},
		&core.TextField{
			Name: "notes",
			Max:  5000,
		},
	)
	addLegacyID(collection)
	addTimestamps(collection)

	setRules(collection, childRead, childRead)

	return app.Save(collection)
}

// currentMileageQuery reports, per vehicle, the highest mileage recorded by
// any event and the date of the latest event.
const currentMileageQuery = `SELECT
	v.id AS id,
	g.tenant AS tenant,
	v.name AS name,
	CAST(COALESCE(MAX(e.mileage), 0) AS REAL) AS mileage,
	CAST(COALESCE(MAX(e.date), '') AS TEXT) AS lastEventDate
FROM vehicles v
JOIN garages g ON g.id = v.garage
LEFT JOIN events e ON e.vehicle = v.id
GROUP BY v.id`

func EnsureCurrentMileage(app core.App) error {
	collection, err := findOrNew(app, CurrentMileageID, CurrentMileage, core.CollectionTypeView)
	if err != nil {
		return err
	}

	collection.ViewQuery = currentMileageQuery
	collection.ListRule = ptrStr("@request.auth.id != '' && tenant = @request.auth.tenant")
	collection.ViewRule = ptrStr("@request.auth.id != '' && tenant = @request.auth.tenant")

	return app.Save(collection)
}
