// Package legacytest builds legacy garage databases for tests.
package legacytest

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"
)

// Row counts of the reference fixture's event tables.
const (
	OdometerRows = 3
	FuelRows     = 4
	ServiceRows  = 2
	ManualRows   = 6
	EventRows    = OdometerRows + FuelRows + ServiceRows + ManualRows
)

const schema = `
CREATE TABLE tenants (id TEXT PRIMARY KEY, name TEXT NOT NULL, slug TEXT, created_at TEXT);
CREATE TABLE users (id TEXT PRIMARY KEY, tenant_id TEXT, email TEXT, display_name TEXT, created_at TEXT);
CREATE TABLE garages (id TEXT PRIMARY KEY, tenant_id TEXT, name TEXT, created_at TEXT);
CREATE TABLE vehicles (id TEXT PRIMARY KEY, garage_id TEXT, nickname TEXT, make TEXT, model TEXT, year INTEGER, vin TEXT, created_at TEXT);
CREATE TABLE vehicle_images (id TEXT PRIMARY KEY, vehicle_id TEXT, url TEXT, caption TEXT, is_primary INTEGER, created_at TEXT);
CREATE TABLE reminders (id TEXT PRIMARY KEY, vehicle_id TEXT, title TEXT, due_date TEXT, due_mileage REAL, completed INTEGER, notes TEXT);

CREATE TABLE odometer_readings (id TEXT PRIMARY KEY, vehicle_id TEXT, mileage REAL, reading_date TEXT, notes TEXT);
CREATE TABLE fuel_logs (id TEXT PRIMARY KEY, vehicle_id TEXT, fill_date TEXT, mileage REAL, gallons REAL, total_amount REAL, price_per_gallon REAL, station_name TEXT);
CREATE TABLE service_records (id TEXT PRIMARY KEY, vehicle_id TEXT, service_date TEXT, mileage REAL, service_type TEXT, total_cost REAL, vendor_name TEXT, notes TEXT);
CREATE TABLE vehicle_events (id TEXT PRIMARY KEY, vehicle_id TEXT, event_date TEXT, event_type TEXT, title TEXT, description TEXT, mileage REAL);

CREATE TABLE vehicle_health_scores (id TEXT PRIMARY KEY, vehicle_id TEXT, score INTEGER, computed_at TEXT);
CREATE TABLE health_score_history (id TEXT PRIMARY KEY, vehicle_id TEXT, score INTEGER, recorded_at TEXT);
CREATE VIEW vehicle_health_summary AS SELECT vehicle_id, MAX(score) AS score FROM vehicle_health_scores GROUP BY vehicle_id;
CREATE TABLE vehicle_ai_metadata (id TEXT PRIMARY KEY, vehicle_id TEXT, summary TEXT, model TEXT);
CREATE TABLE ai_generation_jobs (id TEXT PRIMARY KEY, vehicle_id TEXT, status TEXT);
CREATE TABLE vin_cache (vin TEXT PRIMARY KEY, payload BLOB, fetched_at TEXT);
CREATE TABLE vin_decode_log (id INTEGER PRIMARY KEY, vin TEXT, ok INTEGER);
CREATE TABLE plans (id TEXT PRIMARY KEY, name TEXT, price_cents INTEGER);
CREATE TABLE memberships (id TEXT PRIMARY KEY, tenant_id TEXT, plan_id TEXT, status TEXT);
CREATE TABLE plan_limits (id TEXT PRIMARY KEY, plan_id TEXT, max_vehicles INTEGER);
CREATE TABLE usage_counters (id TEXT PRIMARY KEY, tenant_id TEXT, metric TEXT, value INTEGER);
CREATE TABLE audit_logs (id INTEGER PRIMARY KEY, actor TEXT, action TEXT, at TEXT);
CREATE TABLE onboarding_state (user_id TEXT PRIMARY KEY, step TEXT);
CREATE TABLE vehicle_name_backups (id TEXT PRIMARY KEY, vehicle_id TEXT, old_name TEXT);
CREATE TABLE garage_name_backups (id TEXT PRIMARY KEY, garage_id TEXT, old_name TEXT);
`

var seed = []string{
	`INSERT INTO tenants VALUES ('t-1', 'Acme Motors', 'acme', '2024-01-02T10:00:00Z')`,
	`INSERT INTO users VALUES ('u-1', 't-1', 'owner@acme.test', 'Dana Owner', '2024-01-02T10:05:00Z')`,
	`INSERT INTO users VALUES ('u-2', 't-1', NULL, 'No Email', '2024-01-03T10:05:00Z')`,
	`INSERT INTO garages VALUES ('g-1', 't-1', 'Home', '2024-01-02T11:00:00Z')`,
	`INSERT INTO vehicles VALUES ('v-1', 'g-1', 'Blue Truck', 'Ford', 'F-150', 2018, '1FTEW1EP5JFA12345', '2024-01-02T12:00:00Z')`,
	`INSERT INTO vehicles VALUES ('v-2', 'g-1', 'Commuter', 'Honda', 'Civic', 2021, NULL, '2024-01-05T12:00:00Z')`,
	`INSERT INTO vehicle_images VALUES ('i-1', 'v-1', 'https://img.example.test/v-1.jpg', 'Front', 1, '2024-01-02T12:30:00Z')`,
	`INSERT INTO reminders VALUES ('r-1', 'v-1', 'Oil change', '2024-06-01', 45000, 0, 'synthetic')`,

	`INSERT INTO odometer_readings VALUES ('o-1', 'v-1', 41000, '2024-02-01', NULL)`,
	`INSERT INTO odometer_readings VALUES ('o-2', 'v-1', 42150.5, '2024-03-01', 'after trip')`,
	`INSERT INTO odometer_readings VALUES ('o-3', 'v-2', 12000, '2024-03-15', NULL)`,

	`INSERT INTO fuel_logs VALUES ('f-1', 'v-1', '2024-02-03', 41100, 18.2, 63.52, 3.49, 'Shell Main St')`,
	`INSERT INTO fuel_logs VALUES ('f-2', 'v-1', '2024-02-20', 41600, 17.9, 61.05, 3.41, 'Costco')`,
	`INSERT INTO fuel_logs VALUES ('f-3', 'v-2', '2024-03-02', 11800, 9.1, 30.94, 3.40, 'Costco')`,
	`INSERT INTO fuel_logs VALUES ('f-4', 'v-2', '2024-03-20', 12100, 8.7, 29.58, NULL, NULL)`,

	`INSERT INTO service_records VALUES ('s-1', 'v-1', '2024-02-10', 41300, 'oil_change', 89.99, 'Quick Lube', 'full synthetic')`,
	`INSERT INTO service_records VALUES ('s-2', 'v-2', '2024-03-10', 11950, 'tire_rotation', 40, 'Tire Barn', NULL)`,

	`INSERT INTO vehicle_events VALUES ('e-1', 'v-1', '2024-01-10', 'purchase', 'Bought it', 'Used, one owner', 40500)`,
	`INSERT INTO vehicle_events VALUES ('e-2', 'v-1', '2024-02-14', 'note', 'Rattle', 'Rear left door', NULL)`,
	`INSERT INTO vehicle_events VALUES ('e-3', 'v-1', '2024-03-05', 'registration', 'Renewed tags', NULL, NULL)`,
	`INSERT INTO vehicle_events VALUES ('e-4', 'v-2', '2024-01-15', 'purchase', 'Bought it', 'New', 5)`,
	`INSERT INTO vehicle_events VALUES ('e-5', 'v-2', '2024-02-01', 'insurance', 'Policy started', NULL, NULL)`,
	`INSERT INTO vehicle_events VALUES ('e-6', 'v-2', '2024-03-25', 'note', 'Detailing', 'Interior only', 12150)`,

	`INSERT INTO vehicle_health_scores VALUES ('h-1', 'v-1', 82, '2024-03-01T00:00:00Z')`,
	`INSERT INTO vehicle_ai_metadata VALUES ('a-1', 'v-1', 'A dependable truck', 'gpt')`,
	`INSERT INTO vin_cache VALUES ('1FTEW1EP5JFA12345', X'7B7D', '2024-01-02T12:00:00Z')`,
	`INSERT INTO plans VALUES ('p-1', 'Pro', 900)`,
	`INSERT INTO memberships VALUES ('m-1', 't-1', 'p-1', 'active')`,
	`INSERT INTO audit_logs VALUES (1, 'u-1', 'vehicle.create', '2024-01-02T12:00:00Z')`,
	`INSERT INTO vehicle_name_backups VALUES ('nb-1', 'v-1', 'Truck')`,
}

// Create writes the reference legacy database into a temp dir and returns
// its path.
func Create(t testing.TB) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := dbx.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open fixture db: %v", err)
	}
	defer db.Close()

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.NewQuery(stmt).Execute(); err != nil {
			t.Fatalf("failed to create fixture schema (%s): %v", strings.TrimSpace(stmt), err)
		}
	}
	for _, stmt := range seed {
		if _, err := db.NewQuery(stmt).Execute(); err != nil {
			t.Fatalf("failed to seed fixture (%s): %v", stmt, err)
		}
	}
	return path
}

// Exec runs extra statements against a fixture database.
func Exec(t testing.TB, path string, stmts ...string) {
	t.Helper()

	db, err := dbx.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open fixture db: %v", err)
	}
	defer db.Close()

	for _, stmt := range stmts {
		if _, err := db.NewQuery(stmt).Execute(); err != nil {
			t.Fatalf("failed to exec %q: %v", stmt, err)
		}
	}
}
