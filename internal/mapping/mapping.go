// Package mapping turns legacy rows into consolidated records.
//
// Per-type event rows (odometer readings, fuel logs, service records and
// manual events) become Events tagged with a type discriminant. Fields that
// have no column of their own in the unified events collection travel in
// the payload. Carried tables (tenants, vehicles, ...) become plain field
// maps keyed by consolidated field name.
package mapping

import (
	"errors"
	"fmt"
	"time"

	"github.com/geoffjay/garage/internal/legacy"
)

// ErrInvalidRow is wrapped by every mapping failure caused by row content.
var ErrInvalidRow = errors.New("invalid legacy row")

// Event is a legacy event row in unified form.
type Event struct {
	Type        string
	VehicleRef  string
	Date        time.Time
	Mileage     float64
	Payload     map[string]any
	Notes       string
	LegacyTable string
	LegacyID    string
}

// EventMapper maps one row of a per-type event table.
type EventMapper func(row legacy.Row) (*Event, error)

var eventMappers = map[string]EventMapper{
	legacy.TableOdometerReadings: mapOdometer,
	legacy.TableFuelLogs:         mapFuel,
	legacy.TableServiceRecords:   mapService,
	legacy.TableVehicleEvents:    mapManual,
}

// ForTable returns the event mapper of a folded legacy table.
func ForTable(table string) (EventMapper, error) {
	m, ok := eventMappers[table]
	if !ok {
		return nil, fmt.Errorf("no event mapping for table %q", table)
	}
	return m, nil
}

// MapEvent maps a row of table in one call.
func MapEvent(table string, row legacy.Row) (*Event, error) {
	m, err := ForTable(table)
	if err != nil {
		return nil, err
	}
	return m(row)
}

func mapOdometer(row legacy.Row) (*Event, error) {
	ev, err := base(legacy.TableOdometerReadings, legacy.EventOdometer, "reading_date", row)
	if err != nil {
		return nil, err
	}
	if !row.Has("mileage") {
		return nil, invalid(ev, "odometer reading without mileage")
	}
	ev.Notes = row.String("notes")
	return ev, nil
}

func mapFuel(row legacy.Row) (*Event, error) {
	ev, err := base(legacy.TableFuelLogs, legacy.EventFuel, "fill_date", row)
	if err != nil {
		return nil, err
	}

	p := payload{}
	if err := p.float(row, "total_amount", "total_amount"); err != nil {
		return nil, invalid(ev, err.Error())
	}
	if err := p.float(row, "gallons", "gallons"); err != nil {
		return nil, invalid(ev, err.Error())
	}
	if err := p.float(row, "price_per_gallon", "price_per_gallon"); err != nil {
		return nil, invalid(ev, err.Error())
	}
	p.text(row, "station_name", "station_name")
	ev.Payload = p
	return ev, nil
}

func mapService(row legacy.Row) (*Event, error) {
	ev, err := base(legacy.TableServiceRecords, legacy.EventMaintenance, "service_date", row)
	if err != nil {
		return nil, err
	}

	p := payload{}
	p.text(row, "service_type", "service_type")
	if err := p.float(row, "total_cost", "total_cost"); err != nil {
		return nil, invalid(ev, err.Error())
	}
	p.text(row, "vendor_name", "vendor_name")
	ev.Payload = p
	ev.Notes = row.String("notes")
	return ev, nil
}

func mapManual(row legacy.Row) (*Event, error) {
	ev, err := base(legacy.TableVehicleEvents, legacy.EventManual, "event_date", row)
	if err != nil {
		return nil, err
	}

	p := payload{}
	p.text(row, "title", "title")
	p.text(row, "description", "description")
	p.text(row, "event_type", "kind")
	ev.Payload = p
	return ev, nil
}

// base fills the fields every event table shares.
func base(table, eventType, dateCol string, row legacy.Row) (*Event, error) {
	ev := &Event{
		Type:        eventType,
		LegacyTable: table,
		LegacyID:    row.String("id"),
		VehicleRef:  row.String("vehicle_id"),
		Payload:     map[string]any{},
	}
	if ev.LegacyID == "" {
		return nil, invalid(ev, "missing id")
	}
	if ev.VehicleRef == "" {
		return nil, invalid(ev, "missing vehicle_id")
	}

	date, err := row.Time(dateCol)
	if err != nil {
		return nil, invalid(ev, err.Error())
	}
	if date.IsZero() {
		return nil, invalid(ev, "missing "+dateCol)
	}
	// Stored event dates keep millisecond precision.
	ev.Date = date.Truncate(time.Millisecond)

	mileage, err := row.Float("mileage")
	if err != nil {
		return nil, invalid(ev, err.Error())
	}
	ev.Mileage = mileage
	return ev, nil
}

func invalid(ev *Event, reason string) error {
	id := ev.LegacyID
	if id == "" {
		id = "?"
	}
	return fmt.Errorf("%w: %s/%s: %s", ErrInvalidRow, ev.LegacyTable, id, reason)
}

// payload only records columns that hold a value; NULL columns are left out.
type payload map[string]any

func (p payload) text(row legacy.Row, col, key string) {
	if row.Has(col) {
		p[key] = row.String(col)
	}
}

func (p payload) float(row legacy.Row, col, key string) error {
	if !row.Has(col) {
		return nil
	}
	f, err := row.Float(col)
	if err != nil {
		return err
	}
	p[key] = f
	return nil
}
