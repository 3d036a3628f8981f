package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"github.com/geoffjay/garage/internal/schema"
)

func init() {
	m.Register(func(app core.App) error {
		return schema.EnsureTenants(app)
	}, func(app core.App) error {
		return schema.DropOne(app, schema.Tenants)
	})
}
