package mapping

import (
	"fmt"
	"time"

	"github.com/geoffjay/garage/internal/legacy"
)

// Ref points at the legacy parent of a carried row.
type Ref struct {
	Field    string // relation field on the consolidated record
	Table    string // legacy table the parent came from
	LegacyID string
	Required bool
}

// Record is a carried legacy row in consolidated form.
type Record struct {
	Collection  string
	LegacyTable string
	LegacyID    string
	Fields      map[string]any
	Parent      *Ref
}

// RecordMapper maps one row of a carried table.
type RecordMapper func(row legacy.Row) (*Record, error)

var recordMappers = map[string]RecordMapper{
	legacy.TableTenants:       mapTenant,
	legacy.TableUsers:         mapUser,
	legacy.TableGarages:       mapGarage,
	legacy.TableVehicles:      mapVehicle,
	legacy.TableVehicleImages: mapImage,
	legacy.TableReminders:     mapReminder,
}

// RecordForTable returns the mapper of a carried legacy table.
func RecordForTable(table string) (RecordMapper, error) {
	m, ok := recordMappers[table]
	if !ok {
		return nil, fmt.Errorf("no record mapping for table %q", table)
	}
	return m, nil
}

func newRecord(table string, row legacy.Row) (*Record, error) {
	o, ok := legacy.Lookup(table)
	if !ok || o.Disposition != legacy.Carry {
		return nil, fmt.Errorf("%s is not a carried table", table)
	}
	rec := &Record{
		Collection:  o.Target,
		LegacyTable: table,
		LegacyID:    row.String("id"),
		Fields:      map[string]any{},
	}
	if rec.LegacyID == "" {
		return nil, fmt.Errorf("%w: %s/?: missing id", ErrInvalidRow, table)
	}
	return rec, nil
}

func (r *Record) parent(row legacy.Row, col, field, table string, required bool) error {
	id := row.String(col)
	if id == "" {
		if required {
			return fmt.Errorf("%w: %s/%s: missing %s", ErrInvalidRow, r.LegacyTable, r.LegacyID, col)
		}
		return nil
	}
	r.Parent = &Ref{Field: field, Table: table, LegacyID: id, Required: required}
	return nil
}

func (r *Record) text(row legacy.Row, col, field string) {
	if row.Has(col) {
		r.Fields[field] = row.String(col)
	}
}

func (r *Record) date(row legacy.Row, col, field string) error {
	t, err := row.Time(col)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrInvalidRow, r.LegacyTable, r.LegacyID, err)
	}
	if !t.IsZero() {
		r.Fields[field] = t.Format(time.RFC3339)
	}
	return nil
}

func (r *Record) number(row legacy.Row, col, field string) error {
	if !row.Has(col) {
		return nil
	}
	f, err := row.Float(col)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrInvalidRow, r.LegacyTable, r.LegacyID, err)
	}
	r.Fields[field] = f
	return nil
}

func (r *Record) integer(row legacy.Row, col, field string) error {
	if !row.Has(col) {
		return nil
	}
	i, err := row.Int(col)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrInvalidRow, r.LegacyTable, r.LegacyID, err)
	}
	r.Fields[field] = i
	return nil
}

func (r *Record) flag(row legacy.Row, col, field string) error {
	b, err := row.Bool(col)
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrInvalidRow, r.LegacyTable, r.LegacyID, err)
	}
	r.Fields[field] = b
	return nil
}

func mapTenant(row legacy.Row) (*Record, error) {
	rec, err := newRecord(legacy.TableTenants, row)
	if err != nil {
		return nil, err
	}
	rec.text(row, "name", "name")
	rec.text(row, "slug", "slug")
	if _, ok := rec.Fields["name"]; !ok {
		rec.Fields["name"] = rec.LegacyID
	}
	return rec, nil
}

func mapUser(row legacy.Row) (*Record, error) {
	rec, err := newRecord(legacy.TableUsers, row)
	if err != nil {
		return nil, err
	}
	if !row.Has("email") {
		return nil, fmt.Errorf("%w: %s/%s: missing email", ErrInvalidRow, rec.LegacyTable, rec.LegacyID)
	}
	rec.text(row, "email", "email")
	rec.text(row, "display_name", "name")
	if err := rec.parent(row, "tenant_id", "tenant", legacy.TableTenants, false); err != nil {
		return nil, err
	}
	return rec, nil
}

func mapGarage(row legacy.Row) (*Record, error) {
	rec, err := newRecord(legacy.TableGarages, row)
	if err != nil {
		return nil, err
	}
	rec.text(row, "name", "name")
	if err := rec.parent(row, "tenant_id", "tenant", legacy.TableTenants, true); err != nil {
		return nil, err
	}
	return rec, nil
}

func mapVehicle(row legacy.Row) (*Record, error) {
	rec, err := newRecord(legacy.TableVehicles, row)
	if err != nil {
		return nil, err
	}
	rec.text(row, "nickname", "name")
	rec.text(row, "make", "make")
	rec.text(row, "model", "model")
	rec.text(row, "vin", "vin")
	if err := rec.integer(row, "year", "year"); err != nil {
		return nil, err
	}
	if err := rec.parent(row, "garage_id", "garage", legacy.TableGarages, true); err != nil {
		return nil, err
	}
	return rec, nil
}

func mapImage(row legacy.Row) (*Record, error) {
	rec, err := newRecord(legacy.TableVehicleImages, row)
	if err != nil {
		return nil, err
	}
	rec.text(row, "url", "url")
	rec.text(row, "caption", "caption")
	if err := rec.flag(row, "is_primary", "isPrimary"); err != nil {
		return nil, err
	}
	if err := rec.parent(row, "vehicle_id", "vehicle", legacy.TableVehicles, true); err != nil {
		return nil, err
	}
	return rec, nil
}

func mapReminder(row legacy.Row) (*Record, error) {
	rec, err := newRecord(legacy.TableReminders, row)
	if err != nil {
		return nil, err
	}
	rec.text(row, "title", "title")
	rec.text(row, "notes", "notes")
	if err := rec.date(row, "due_date", "dueDate"); err != nil {
		return nil, err
	}
	if err := rec.number(row, "due_mileage", "dueMileage"); err != nil {
		return nil, err
	}
	if err := rec.flag(row, "completed", "completed"); err != nil {
		return nil, err
	}
	if err := rec.parent(row, "vehicle_id", "vehicle", legacy.TableVehicles, true); err != nil {
		return nil, err
	}
	return rec, nil
}
