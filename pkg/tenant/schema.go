package tenant

// schema is applied before the first operation of every actor lifetime.
// Each statement must stay safe to re-run.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenant (
		id                  INTEGER PRIMARY KEY CHECK (id = 1),
		billing_customer_id TEXT,
		creator_user_id     TEXT,
		creator_email       TEXT,
		created_at          INTEGER NOT NULL,
		updated_at          INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tenant_settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

const seedRecord = `INSERT OR IGNORE INTO tenant (id, created_at, updated_at) VALUES (?, ?, ?)`

const touchRecord = `UPDATE tenant SET updated_at = MAX(updated_at, ?) WHERE id = ?`
