package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	reference_number    TEXT NOT NULL UNIQUE,
	vendor_name         TEXT NOT NULL DEFAULT '',
	shipping_status     TEXT NOT NULL DEFAULT 'unknown',
	tracking_number     TEXT NOT NULL DEFAULT '',
	current_location    TEXT NOT NULL DEFAULT '',
	estimated_delivery  DATETIME,
	has_invoice         INTEGER NOT NULL DEFAULT 0,
	invoice_received_at DATETIME,
	last_status_update  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	status_history      TEXT NOT NULL DEFAULT '[]',
	created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY,
	order_id       INTEGER NOT NULL REFERENCES orders(id),
	invoice_number TEXT NOT NULL,
	amount         TEXT NOT NULL DEFAULT '0',
	file_path      TEXT NOT NULL DEFAULT '',
	file_name      TEXT NOT NULL DEFAULT '',
	received_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS processed_messages (
	message_id   TEXT PRIMARY KEY,
	processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	outcome      TEXT NOT NULL CHECK(outcome IN ('matched', 'unmatched', 'failed'))
);

CREATE TABLE IF NOT EXISTS processing_log (
	id               TEXT PRIMARY KEY,
	message_id       TEXT NOT NULL,
	order_reference  TEXT NOT NULL DEFAULT '',
	sender           TEXT NOT NULL DEFAULT '',
	subject          TEXT NOT NULL DEFAULT '',
	outcome          TEXT NOT NULL,
	status_updates   TEXT NOT NULL DEFAULT '[]',
	attachment_count INTEGER NOT NULL DEFAULT 0,
	processed_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_reference ON orders(reference_number);
CREATE INDEX IF NOT EXISTS idx_orders_shipping_status ON orders(shipping_status);
CREATE INDEX IF NOT EXISTS idx_invoices_order_id ON invoices(order_id);
CREATE INDEX IF NOT EXISTS idx_processing_log_message ON processing_log(message_id);
CREATE INDEX IF NOT EXISTS idx_processing_log_processed ON processing_log(processed_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
