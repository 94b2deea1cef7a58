package backend

// Migration is a single numbered, named, one-way schema change. Up/Down
// hold dialect-specific SQL for the pooled backend; the embedded backend
// uses its own migration type carrying an imperative UpFunc instead (and no
// down step) since bbolt has no SQL dialect to apply.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string // optional; empty means no rollback is provided
}

// AppliedMigration records one row of the schema_migrations bookkeeping
// table/bucket every backend maintains.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt int64 // unix seconds, avoids importing time for this bookkeeping-only shape
}
