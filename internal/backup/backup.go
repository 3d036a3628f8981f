// Package backup reads and writes the timestamped JSON files produced by a
// legacy export. A backup is the only way back once the legacy tables are
// rebuilt, so files are written atomically and validated on read.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/geoffjay/garage/internal/legacy"
)

// Version is the backup format version written by this package.
const Version = 1

const (
	filePrefix = "garage-backup-"
	fileLayout = "20060102T150405Z"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid backup")

// Backup is the full contents of one export.
type Backup struct {
	Version    int                   `json:"version"`
	ExportedAt time.Time             `json:"exported_at"`
	Source     string                `json:"source"`
	Tables     map[string]*TableDump `json:"tables"`
}

// TableDump is the exported contents of one legacy object. Views carry no
// rows.
type TableDump struct {
	Kind    legacy.Kind  `json:"kind"`
	Columns []string     `json:"columns"`
	Count   int          `json:"count"`
	Rows    []legacy.Row `json:"rows"`
}

// New returns an empty backup stamped with the current time.
func New(source string) *Backup {
	return &Backup{
		Version:    Version,
		ExportedAt: time.Now().UTC(),
		Source:     source,
		Tables:     make(map[string]*TableDump),
	}
}

// Add stores the dump of a table.
func (b *Backup) Add(name string, kind legacy.Kind, dump *legacy.Dump) {
	td := &TableDump{Kind: kind, Columns: []string{}, Rows: []legacy.Row{}}
	if dump != nil {
		td.Columns = dump.Columns
		td.Rows = dump.Rows
	}
	td.Count = len(td.Rows)
	b.Tables[name] = td
}

// Rows returns the rows of a table, or nil if the table was not exported.
func (b *Backup) Rows(name string) []legacy.Row {
	td, ok := b.Tables[name]
	if !ok {
		return nil
	}
	return td.Rows
}

// Names returns the exported table names sorted.
func (b *Backup) Names() []string {
	names := make([]string, 0, len(b.Tables))
	for name := range b.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EventRowTotal sums the rows of every exported per-type event table. After
// a complete import the unified events collection holds exactly this many
// legacy-sourced records.
func (b *Backup) EventRowTotal() int {
	total := 0
	for _, o := range legacy.Folded() {
		total += len(b.Rows(o.Name))
	}
	return total
}

// Validate checks the structural invariants of a backup.
func (b *Backup) Validate() error {
	if b.Version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalid, b.Version)
	}
	if b.ExportedAt.IsZero() {
		return fmt.Errorf("%w: missing exported_at", ErrInvalid)
	}
	if len(b.Tables) == 0 {
		return fmt.Errorf("%w: no tables", ErrInvalid)
	}
	for _, name := range b.Names() {
		td := b.Tables[name]
		entry, ok := legacy.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: unknown table %q", ErrInvalid, name)
		}
		if td == nil {
			return fmt.Errorf("%w: table %q is null", ErrInvalid, name)
		}
		if td.Kind != entry.Kind {
			return fmt.Errorf("%w: %q is a %s, backup says %s", ErrInvalid, name, entry.Kind, td.Kind)
		}
		if td.Count != len(td.Rows) {
			return fmt.Errorf("%w: %q declares %d rows, has %d", ErrInvalid, name, td.Count, len(td.Rows))
		}
		if td.Kind == legacy.KindView && len(td.Rows) > 0 {
			return fmt.Errorf("%w: view %q carries rows", ErrInvalid, name)
		}
	}
	return nil
}

// FileName returns the backup file name for an export taken at t.
func FileName(t time.Time) string {
	return fileName(t, 1)
}

// fileName numbers the n-th export taken within the same second.
func fileName(t time.Time, n int) string {
	stamp := t.UTC().Format(fileLayout)
	if n > 1 {
		stamp += "-" + strconv.Itoa(n)
	}
	return filePrefix + stamp + ".json"
}

// ParseFileName extracts the export time and sequence number from a backup
// file name. The first export of a second has sequence 1.
func ParseFileName(name string) (time.Time, int, error) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, filePrefix) || !strings.HasSuffix(base, ".json") {
		return time.Time{}, 0, fmt.Errorf("%q is not a backup file name", base)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(base, filePrefix), ".json")

	seq := 1
	if i := strings.IndexByte(stamp, '-'); i >= 0 {
		n, err := strconv.Atoi(stamp[i+1:])
		if err != nil || n < 2 {
			return time.Time{}, 0, fmt.Errorf("%q has a bad sequence number", base)
		}
		stamp, seq = stamp[:i], n
	}

	t, err := time.Parse(fileLayout, stamp)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%q is not a backup file name: %w", base, err)
	}
	return t, seq, nil
}

// Entry is a backup file found in a backup directory.
type Entry struct {
	Path       string
	ExportedAt time.Time
	Seq        int
}

// ErrNoBackups is returned by Latest when a directory holds no backup.
var ErrNoBackups = errors.New("no backups found")

// List returns the backup files in dir, oldest first. Other files are
// ignored. A missing dir yields no entries.
func List(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		at, seq, err := ParseFileName(f.Name())
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Path: filepath.Join(dir, f.Name()), ExportedAt: at, Seq: seq})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ExportedAt.Equal(entries[j].ExportedAt) {
			return entries[i].ExportedAt.Before(entries[j].ExportedAt)
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries, nil
}

// Latest returns the path of the most recent backup in dir.
func Latest(dir string) (string, error) {
	entries, err := List(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoBackups, dir)
	}
	return entries[len(entries)-1].Path, nil
}

// maxSeq bounds the exports taken within one second.
const maxSeq = 100

// Write stores b in dir under its timestamped file name and returns the
// path. The file is written to a temp file first and linked into place, so
// an existing backup is never replaced. Exports sharing a second get a
// numbered suffix.
func Write(dir string, b *Backup) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, filePrefix+"*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp backup file: %w", err)
	}
	tempPath := tempFile.Name()
	defer func() {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
	}()

	if _, err := tempFile.Write(data); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync backup: %w", err)
	}
	_ = tempFile.Close()

	if err := os.Chmod(tempPath, 0o600); err != nil {
		return "", fmt.Errorf("failed to set backup permissions: %w", err)
	}

	for n := 1; n <= maxSeq; n++ {
		path := filepath.Join(dir, fileName(b.ExportedAt, n))
		err := os.Link(tempPath, path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to move backup into place: %w", err)
		}
	}
	return "", fmt.Errorf("more than %d backups taken at %s", maxSeq, b.ExportedAt.UTC().Format(time.RFC3339))
}

// Read loads and validates a backup file. Numbers are kept as json.Number
// so large integer ids survive untouched.
func Read(path string) (*Backup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()

	var b Backup
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &b, nil
}
