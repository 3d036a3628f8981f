package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"github.com/geoffjay/garage/internal/schema"
)

func init() {
	m.Register(func(app core.App) error {
		return schema.EnsureUsers(app)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId(schema.UsersID)
		if err != nil {
			return nil // Collection doesn't exist, nothing to do
		}

		// The users collection itself belongs to PocketBase.
		collection.Fields.RemoveByName("tenant")
		collection.Fields.RemoveByName(schema.LegacyIDField)
		collection.RemoveIndex("idx_users_" + schema.LegacyIDField)

		return app.Save(collection)
	})
}
