// Package schema defines the consolidated garage collections.
//
// The definitions are shared by the registered migrations (fresh installs)
// and by the nuclear rebuild (drop-and-recreate after a legacy export). Every
// Ensure function is idempotent: it creates the collection when missing and
// adds any missing field, index or rule otherwise.
package schema

import (
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// Collection names.
const (
	Tenants        = "tenants"
	Users          = "users"
	Garages        = "garages"
	Vehicles       = "vehicles"
	Events         = "events"
	VehicleImages  = "vehicle_images"
	Reminders      = "reminders"
	CurrentMileage = "current_mileage"
)

// Fixed collection ids, so relations resolve the same way on every install.
const (
	TenantsID        = "pbc_tenants"
	UsersID          = "_pb_users_auth_"
	GaragesID        = "pbc_garages"
	VehiclesID       = "pbc_vehicles"
	EventsID         = "pbc_events"
	VehicleImagesID  = "pbc_vehicle_images"
	RemindersID      = "pbc_reminders"
	CurrentMileageID = "pbc_current_mileage"
)

// LegacyIDField links a consolidated record to the legacy row it came from.
const LegacyIDField = "legacyId"

// EventTypes are the values of the events.type select field.
var EventTypes = []string{"odometer", "fuel", "maintenance", "manual"}

// ErrMissing is returned when a consolidated collection does not exist.
var ErrMissing = errors.New("consolidated collection missing")

type step struct {
	name   string
	ensure func(core.App) error
}

var steps = []step{
	{Tenants, EnsureTenants},
	{Users, EnsureUsers},
	{Garages, EnsureGarages},
	{Vehicles, EnsureVehicles},
	{Events, EnsureEvents},
	{VehicleImages, EnsureVehicleImages},
	{Reminders, EnsureReminders},
	{CurrentMileage, EnsureCurrentMileage},
}

// Names lists the consolidated collections in creation order.
func Names() []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.name
	}
	return names
}

// Apply ensures every consolidated collection exists.
func Apply(app core.App) error {
	for _, s := range steps {
		if err := s.ensure(app); err != nil {
			return fmt.Errorf("failed to ensure %s: %w", s.name, err)
		}
	}
	return nil
}

// Check returns ErrMissing if any consolidated collection is absent.
func Check(app core.App) error {
	for _, name := range Names() {
		if _, err := app.FindCollectionByNameOrId(name); err != nil {
			return fmt.Errorf("%w: %s", ErrMissing, name)
		}
	}
	return nil
}

// Drop removes the consolidated collections in reverse creation order.
//
// The users auth collection is shared with accounts created directly in
// PocketBase, so it is kept: imported legacy users are deleted and the
// tenant relation is detached instead.
func Drop(app core.App) error {
	for i := len(steps) - 1; i >= 0; i-- {
		name := steps[i].name
		if name == Users {
			if err := dropLegacyUsers(app); err != nil {
				return err
			}
			continue
		}
		if err := DropOne(app, name); err != nil {
			return err
		}
	}
	return nil
}

// DropOne deletes a single collection if it exists.
func DropOne(app core.App, name string) error {
	collection, err := app.FindCollectionByNameOrId(name)
	if err != nil {
		return nil
	}
	if err := app.Delete(collection); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

func dropLegacyUsers(app core.App) error {
	collection, err := app.FindCollectionByNameOrId(UsersID)
	if err != nil {
		return nil
	}

	if collection.Fields.GetByName(LegacyIDField) != nil {
		records, err := app.FindAllRecords(collection, dbx.NewExp("[["+LegacyIDField+"]] != ''"))
		if err != nil {
			return fmt.Errorf("failed to list imported users: %w", err)
		}
		for _, record := range records {
			if err := app.Delete(record); err != nil {
				return fmt.Errorf("failed to delete user %s: %w", record.Id, err)
			}
		}
	}

	if collection.Fields.GetByName("tenant") != nil {
		collection.Fields.RemoveByName("tenant")
		if err := app.Save(collection); err != nil {
			return fmt.Errorf("failed to detach users.tenant: %w", err)
		}
	}
	return nil
}

func findOrNew(app core.App, id, name, typ string) (*core.Collection, error) {
	collection, err := app.FindCollectionByNameOrId(id)
	if err == nil {
		if collection.Type != typ {
			return nil, fmt.Errorf("collection %s exists with type %s, want %s", name, collection.Type, typ)
		}
		return collection, nil
	}

	switch typ {
	case core.CollectionTypeAuth:
		return core.NewAuthCollection(name, id), nil
	case core.CollectionTypeView:
		return core.NewViewCollection(name, id), nil
	}
	return core.NewBaseCollection(name, id), nil
}

// addField adds f unless a field with the same name is already present.
func addField(collection *core.Collection, fields ...core.Field) {
	for _, f := range fields {
		if collection.Fields.GetByName(f.GetName()) == nil {
			collection.Fields.Add(f)
		}
	}
}

// addLegacyID adds the legacyId field with a unique index. scope names
// extra columns the id is unique within.
func addLegacyID(collection *core.Collection, scope ...string) {
	addField(collection, &core.TextField{
		Name: LegacyIDField,
		Max:  255,
	})

	columns := ""
	for _, col := range scope {
		columns += "`" + col + "`, "
	}
	collection.AddIndex(
		"idx_"+collection.Name+"_legacyId",
		true,
		columns+"`"+LegacyIDField+"`",
		"`"+LegacyIDField+"` != ''",
	)
}

func addTimestamps(collection *core.Collection) {
	addField(collection,
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)
}

func ptrStr(s string) *string {
	return &s
}

func setRules(collection *core.Collection, read, write string) {
	collection.ListRule = ptrStr(read)
	collection.ViewRule = ptrStr(read)
	collection.CreateRule = ptrStr(write)
	collection.UpdateRule = ptrStr(write)
	collection.DeleteRule = ptrStr(write)
}
