package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"github.com/geoffjay/garage/internal/backup"
	"github.com/geoffjay/garage/internal/legacy"
	"github.com/geoffjay/garage/internal/mapping"
	"github.com/geoffjay/garage/internal/schema"
)

// TableCheck is the verification outcome for one per-type event table.
type TableCheck struct {
	Table      string
	EventType  string
	Expected   int // rows in the backup
	Found      int // events carrying this legacyTable
	Missing    []string
	Duplicate  []string
	Mismatched []string
	Invalid    []string
}

func (c *TableCheck) ok() bool {
	return c.Expected == c.Found &&
		len(c.Missing) == 0 &&
		len(c.Duplicate) == 0 &&
		len(c.Mismatched) == 0 &&
		len(c.Invalid) == 0
}

// Report is the result of comparing a backup against imported events.
type Report struct {
	Tables []*TableCheck
	// ExpectedTotal is the sum of rows over the per-type event tables.
	ExpectedTotal int
	// LegacyEvents counts events that came from one of those tables; events
	// created after the migration are not part of the comparison.
	LegacyEvents int
	TotalEvents  int
}

// OK reports whether every legacy event row maps to exactly one matching
// unified event and the totals agree.
func (r *Report) OK() bool {
	for _, c := range r.Tables {
		if !c.ok() {
			return false
		}
	}
	return r.ExpectedTotal == r.LegacyEvents
}

// Verify checks that every folded row of b exists exactly once in the events
// collection with the same type, date, mileage and payload.
func Verify(ctx context.Context, app core.App, b *backup.Backup) (*Report, error) {
	if err := schema.Check(app); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMissing, err)
	}

	total, err := app.CountRecords(schema.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	report := &Report{
		ExpectedTotal: b.EventRowTotal(),
		TotalEvents:   int(total),
	}

	for _, o := range legacy.Folded() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		check, err := verifyTable(app, o, b.Rows(o.Name))
		if err != nil {
			return nil, err
		}
		report.Tables = append(report.Tables, check)
		report.LegacyEvents += check.Found
	}
	return report, nil
}

func verifyTable(app core.App, o legacy.Object, rows []legacy.Row) (*TableCheck, error) {
	check := &TableCheck{Table: o.Name, EventType: o.EventType, Expected: len(rows)}

	records, err := app.FindAllRecords(schema.Events, dbx.HashExp{"legacyTable": o.Name})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s events: %w", o.Name, err)
	}
	check.Found = len(records)

	byLegacyID := make(map[string][]*core.Record, len(records))
	for _, r := range records {
		id := r.GetString(schema.LegacyIDField)
		byLegacyID[id] = append(byLegacyID[id], r)
	}

	for _, row := range rows {
		ev, err := mapping.MapEvent(o.Name, row)
		if err != nil {
			check.Invalid = append(check.Invalid, row.String("id"))
			continue
		}

		matches := byLegacyID[ev.LegacyID]
		switch len(matches) {
		case 0:
			check.Missing = append(check.Missing, ev.LegacyID)
			continue
		case 1:
		default:
			check.Duplicate = append(check.Duplicate, ev.LegacyID)
			continue
		}

		if reason := compare(ev, matches[0]); reason != "" {
			check.Mismatched = append(check.Mismatched, ev.LegacyID+": "+reason)
		}
	}

	sort.Strings(check.Missing)
	sort.Strings(check.Duplicate)
	sort.Strings(check.Mismatched)
	return check, nil
}

// compare returns a description of the first difference between the mapped
// legacy row and the stored event, or "" when they agree.
func compare(ev *mapping.Event, record *core.Record) string {
	if got := record.GetString("type"); got != ev.Type {
		return fmt.Sprintf("type %q, want %q", got, ev.Type)
	}
	if got := record.GetDateTime("date").Time(); !got.Equal(ev.Date) {
		return fmt.Sprintf("date %s, want %s", got.Format(time.RFC3339Nano), ev.Date.Format(time.RFC3339Nano))
	}
	if got := record.GetFloat("mileage"); got != ev.Mileage {
		return fmt.Sprintf("mileage %v, want %v", got, ev.Mileage)
	}
	if got := record.GetString("notes"); got != ev.Notes {
		return fmt.Sprintf("notes %q, want %q", got, ev.Notes)
	}

	var stored map[string]any
	if err := record.UnmarshalJSONField("payload", &stored); err != nil {
		return "unreadable payload: " + err.Error()
	}
	if !samePayload(stored, ev.Payload) {
		got, _ := json.Marshal(stored)
		want, _ := json.Marshal(ev.Payload)
		return fmt.Sprintf("payload %s, want %s", got, want)
	}
	return ""
}

func samePayload(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
