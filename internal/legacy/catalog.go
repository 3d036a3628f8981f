// Package legacy describes and reads the pre-consolidation garage schema.
//
// The legacy database held 25 tables and views spread across unrelated
// feature areas. The catalog below is the authoritative list: every object
// is either carried forward into a consolidated collection, folded into the
// unified events collection, or dropped.
package legacy

import "fmt"

// Kind is the SQL object kind of a legacy catalog entry.
type Kind string

const (
	KindTable Kind = "table"
	KindView  Kind = "view"
)

// Disposition says what the consolidation does with a legacy object.
type Disposition string

const (
	// Carry moves rows into a consolidated collection of the same meaning.
	Carry Disposition = "carry"
	// Fold maps rows into the unified events collection.
	Fold Disposition = "fold"
	// Drop discards the object. Its rows survive only in the backup file.
	Drop Disposition = "drop"
)

// Event types used by folded tables.
const (
	EventOdometer    = "odometer"
	EventFuel        = "fuel"
	EventMaintenance = "maintenance"
	EventManual      = "manual"
)

// Legacy table names referenced by the mapping and import code.
const (
	TableTenants          = "tenants"
	TableUsers            = "users"
	TableGarages          = "garages"
	TableVehicles         = "vehicles"
	TableVehicleImages    = "vehicle_images"
	TableReminders        = "reminders"
	TableOdometerReadings = "odometer_readings"
	TableFuelLogs         = "fuel_logs"
	TableServiceRecords   = "service_records"
	TableVehicleEvents    = "vehicle_events"
)

// Object is one legacy table or view.
type Object struct {
	Name        string
	Kind        Kind
	Area        string
	Disposition Disposition
	// Target is the consolidated collection for Carry objects.
	Target string
	// EventType is the unified event discriminant for Fold objects.
	EventType string
}

func (o Object) String() string {
	switch o.Disposition {
	case Carry:
		return fmt.Sprintf("%s (%s) -> %s", o.Name, o.Kind, o.Target)
	case Fold:
		return fmt.Sprintf("%s (%s) -> events[%s]", o.Name, o.Kind, o.EventType)
	}
	return fmt.Sprintf("%s (%s) dropped", o.Name, o.Kind)
}

var catalog = []Object{
	{Name: TableTenants, Kind: KindTable, Area: "core", Disposition: Carry, Target: "tenants"},
	{Name: TableUsers, Kind: KindTable, Area: "core", Disposition: Carry, Target: "users"},
	{Name: TableGarages, Kind: KindTable, Area: "core", Disposition: Carry, Target: "garages"},
	{Name: TableVehicles, Kind: KindTable, Area: "core", Disposition: Carry, Target: "vehicles"},
	{Name: TableVehicleImages, Kind: KindTable, Area: "core", Disposition: Carry, Target: "vehicle_images"},
	{Name: TableReminders, Kind: KindTable, Area: "core", Disposition: Carry, Target: "reminders"},

	{Name: TableOdometerReadings, Kind: KindTable, Area: "events", Disposition: Fold, EventType: EventOdometer},
	{Name: TableFuelLogs, Kind: KindTable, Area: "events", Disposition: Fold, EventType: EventFuel},
	{Name: TableServiceRecords, Kind: KindTable, Area: "events", Disposition: Fold, EventType: EventMaintenance},
	{Name: TableVehicleEvents, Kind: KindTable, Area: "events", Disposition: Fold, EventType: EventManual},

	{Name: "vehicle_health_scores", Kind: KindTable, Area: "health", Disposition: Drop},
	{Name: "health_score_history", Kind: KindTable, Area: "health", Disposition: Drop},
	{Name: "vehicle_health_summary", Kind: KindView, Area: "health", Disposition: Drop},
	{Name: "vehicle_ai_metadata", Kind: KindTable, Area: "ai", Disposition: Drop},
	{Name: "ai_generation_jobs", Kind: KindTable, Area: "ai", Disposition: Drop},
	{Name: "vin_cache", Kind: KindTable, Area: "vin", Disposition: Drop},
	{Name: "vin_decode_log", Kind: KindTable, Area: "vin", Disposition: Drop},
	{Name: "plans", Kind: KindTable, Area: "billing", Disposition: Drop},
	{Name: "memberships", Kind: KindTable, Area: "billing", Disposition: Drop},
	{Name: "plan_limits", Kind: KindTable, Area: "billing", Disposition: Drop},
	{Name: "usage_counters", Kind: KindTable, Area: "usage", Disposition: Drop},
	{Name: "audit_logs", Kind: KindTable, Area: "audit", Disposition: Drop},
	{Name: "onboarding_state", Kind: KindTable, Area: "onboarding", Disposition: Drop},
	{Name: "vehicle_name_backups", Kind: KindTable, Area: "naming", Disposition: Drop},
	{Name: "garage_name_backups", Kind: KindTable, Area: "naming", Disposition: Drop},
}

var byName = func() map[string]Object {
	m := make(map[string]Object, len(catalog))
	for _, o := range catalog {
		m[o.Name] = o
	}
	return m
}()

// Catalog returns a copy of every legacy object in declaration order.
func Catalog() []Object {
	out := make([]Object, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a catalog entry by table or view name.
func Lookup(name string) (Object, bool) {
	o, ok := byName[name]
	return o, ok
}

// Folded returns the per-type event tables.
func Folded() []Object {
	return filter(Fold)
}

// Carried returns the tables moved into consolidated collections, in
// dependency order (parents before children).
func Carried() []Object {
	return filter(Carry)
}

// Dropped returns the objects with no consolidated counterpart.
func Dropped() []Object {
	return filter(Drop)
}

func filter(d Disposition) []Object {
	var out []Object
	for _, o := range catalog {
		if o.Disposition == d {
			out = append(out, o)
		}
	}
	return out
}
