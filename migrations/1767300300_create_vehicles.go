package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"github.com/geoffjay/garage/internal/schema"
)

func init() {
	m.Register(func(app core.App) error {
		return schema.EnsureVehicles(app)
	}, func(app core.App) error {
		return schema.DropOne(app, schema.Vehicles)
	})
}
