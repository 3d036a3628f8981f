// Package testutil provides PocketBase test apps with the consolidated
// schema applied.
package testutil

import (
	"testing"

	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/require"

	"github.com/geoffjay/garage/internal/schema"
)

// NewBareApp returns a fresh PocketBase app in a temp data dir with only the
// system migrations applied.
func NewBareApp(t testing.TB) *tests.TestApp {
	t.Helper()

	app, err := tests.NewTestApp(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	require.NoError(t, app.RunAllMigrations())
	return app
}

// NewApp returns a fresh app with the consolidated collections created.
func NewApp(t testing.TB) *tests.TestApp {
	t.Helper()

	app := NewBareApp(t)
	require.NoError(t, schema.Apply(app))
	return app
}
