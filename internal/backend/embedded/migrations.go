package embedded

import "go.etcd.io/bbolt"

// embeddedMigration mirrors backend.Migration but carries an imperative
// UpFunc since bbolt has no SQL dialect; bucket creation already happens in
// InitSchema, so migration 1 here is a no-op marker recording that the base
// schema (the bucket set) is in place, and migration 2 is a no-op too since
// bbolt has no secondary-index concept distinct from the moves_by_game
// index that AddMove already maintains unconditionally. Both are still
// recorded in schema_migrations so embedded and pooled backends report the
// same migration history to operators.
type embeddedMigration struct {
	Version int
	Name    string
	UpFunc  func(tx *bbolt.Tx) error
}

// Migrations is the ordered list of embedded-backend schema migrations.
var Migrations = []embeddedMigration{
	{
		Version: 1,
		Name:    "create_core_buckets",
		UpFunc:  func(tx *bbolt.Tx) error { return nil }, // InitSchema creates the buckets unconditionally
	},
	{
		Version: 2,
		Name:    "secondary_indexes",
		UpFunc:  func(tx *bbolt.Tx) error { return nil }, // moves_by_game doubles as the secondary index
	},
}
