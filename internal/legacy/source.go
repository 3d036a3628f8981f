package legacy

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"
)

// Source is an open legacy SQLite database.
type Source struct {
	path string
	db   *dbx.DB
}

// SQLObject is a table or view found in the legacy database.
type SQLObject struct {
	Name string `db:"name"`
	Kind Kind   `db:"type"`
}

// Dump holds every row of one legacy table.
type Dump struct {
	Columns []string
	Rows    []Row
}

// Open opens the legacy database at path. The file must already exist.
func Open(path string) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("legacy database %s: %w", path, err)
	}
	db, err := dbx.Open("sqlite", path+"?_pragma=busy_timeout(10000)&_pragma=foreign_keys(0)")
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy database: %w", err)
	}
	return &Source{path: path, db: db}, nil
}

// Path returns the database file path.
func (s *Source) Path() string { return s.path }

func (s *Source) Close() error {
	return s.db.Close()
}

// Objects lists the user tables and views present in the database, sorted
// by name.
func (s *Source) Objects(ctx context.Context) ([]SQLObject, error) {
	var objects []SQLObject
	err := s.db.NewQuery(
		"SELECT name, type FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'",
	).WithContext(ctx).All(&objects)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy objects: %w", err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Count returns the number of rows in a table or view.
func (s *Source) Count(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.NewQuery("SELECT COUNT(*) FROM " + s.db.QuoteTableName(name)).WithContext(ctx).Row(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", name, err)
	}
	return n, nil
}

// Dump reads every row of a table in insertion (rowid) order.
func (s *Source) Dump(ctx context.Context, name string) (*Dump, error) {
	rows, err := s.db.NewQuery("SELECT * FROM " + s.db.QuoteTableName(name) + " ORDER BY rowid").WithContext(ctx).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s columns: %w", name, err)
	}

	dump := &Dump{Columns: cols, Rows: []Row{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", name, err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i])
		}
		dump.Rows = append(dump.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", name, err)
	}
	return dump, nil
}

// DropAll drops the named objects in one transaction. Views go first so
// that no view is left referencing a dropped table.
func (s *Source) DropAll(ctx context.Context, objects []SQLObject) error {
	ordered := make([]SQLObject, len(objects))
	copy(ordered, objects)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind == KindView && ordered[j].Kind != KindView
	})

	return s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		for _, o := range ordered {
			stmt := "DROP TABLE IF EXISTS "
			if o.Kind == KindView {
				stmt = "DROP VIEW IF EXISTS "
			}
			if _, err := tx.NewQuery(stmt + s.db.QuoteTableName(o.Name)).Execute(); err != nil {
				return fmt.Errorf("failed to drop %s: %w", o.Name, err)
			}
		}
		return nil
	})
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}
