// Package migrations registers the consolidated garage collections. The
// collection definitions live in internal/schema so that `legacy rebuild`
// recreates exactly what a fresh install migrates to.
//
// Available commands:
//   go run main.go migrate create      - Create a blank migration
//   go run main.go migrate collections - Snapshot current collections
//   go run main.go migrate up          - Apply pending migrations
//   go run main.go migrate down [n]    - Revert n migrations
//   go run main.go migrate history-sync - Clean orphaned history entries
package migrations
