package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/nhle/ordertrack/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const orderColumns = `id, reference_number, vendor_name, shipping_status,
	tracking_number, current_location, estimated_delivery, has_invoice,
	invoice_received_at, last_status_update, status_history, created_at`

// CreateOrder inserts a new order. Orders are created by the external
// order-placement flow; the pipeline itself only reads and updates them.
func (s *SQLiteStore) CreateOrder(ctx context.Context, o model.Order) (int64, error) {
	history, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return 0, fmt.Errorf("marshaling status history: %w", err)
	}

	status := o.ShippingStatus
	if status == "" {
		status = model.StatusUnknown
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (
			reference_number, vendor_name, shipping_status,
			tracking_number, current_location, estimated_delivery,
			has_invoice, invoice_received_at, last_status_update,
			status_history, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ReferenceNumber, o.VendorName, string(status),
		o.TrackingNumber, o.CurrentLocation, nullTime(o.EstimatedDelivery),
		boolToInt(o.HasInvoice), nullTime(o.InvoiceReceivedAt),
		time.Now().UTC(), string(history), time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("creating order %s: %w", o.ReferenceNumber, err)
	}

	return res.LastInsertId()
}

// FindOrderByReference returns the order with the given reference number.
func (s *SQLiteStore) FindOrderByReference(
	ctx context.Context, ref string,
) (*model.Order, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE reference_number = ?", ref,
	)

	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding order %s: %w", ref, err)
	}

	return &order, nil
}

// IsMessageProcessed reports whether a ledger row exists for the message ID.
func (s *SQLiteStore) IsMessageProcessed(
	ctx context.Context, messageID string,
) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM processed_messages WHERE message_id = ?", messageID,
	)
	if err != nil {
		return false, fmt.Errorf("checking ledger for %s: %w", messageID, err)
	}
	return count > 0, nil
}

// CountProcessedMessages returns the number of distinct messages seen.
func (s *SQLiteStore) CountProcessedMessages(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM processed_messages")
	if err != nil {
		return 0, fmt.Errorf("counting processed messages: %w", err)
	}
	return count, nil
}

// RecordOutcome writes the ledger row and audit entry for a message that
// did not mutate any order. When the ledger row already exists, the audit
// entry is skipped so re-delivery never produces duplicate log entries.
func (s *SQLiteStore) RecordOutcome(
	ctx context.Context,
	rec model.ProcessedMessage,
	entry model.ProcessingLogEntry,
) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.InsertProcessedMessage(ctx, rec); err != nil {
		if err == model.ErrAlreadyProcessed {
			return nil
		}
		return err
	}

	if err := tx.AppendLog(ctx, entry); err != nil {
		return err
	}

	return tx.Commit()
}

// RecentLog returns the most recent processing-log entries.
func (s *SQLiteStore) RecentLog(
	ctx context.Context, limit int,
) ([]model.ProcessingLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, message_id, order_reference, sender, subject,
			outcome, status_updates, attachment_count, processed_at
		FROM processing_log
		ORDER BY processed_at DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying processing log: %w", err)
	}
	defer rows.Close()

	var entries []model.ProcessingLogEntry
	for rows.Next() {
		var (
			e       model.ProcessingLogEntry
			outcome string
		)
		err := rows.Scan(
			&e.ID, &e.MessageID, &e.OrderReference, &e.Sender, &e.Subject,
			&outcome, &e.StatusUpdates, &e.AttachmentCount, &e.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning log row: %w", err)
		}
		e.Outcome = model.Outcome(outcome)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// InvoicesForOrder returns the invoices linked to an order.
func (s *SQLiteStore) InvoicesForOrder(
	ctx context.Context, orderID int64,
) ([]model.Invoice, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, order_id, invoice_number, amount, file_path, file_name, received_at
		FROM invoices WHERE order_id = ? ORDER BY received_at`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying invoices for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var invoices []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}

	return invoices, rows.Err()
}

// Begin opens a transaction for a multi-step order update.
func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

// sqliteTx implements Tx over a sqlx transaction.
type sqliteTx struct {
	tx *sqlx.Tx
}

// UpdateOrder applies the extracted field changes, touching only fields
// the message actually carried, and always bumps last_status_update.
func (t *sqliteTx) UpdateOrder(
	ctx context.Context, orderID int64, upd model.OrderUpdate,
) error {
	sets := []string{"last_status_update = ?"}
	args := []interface{}{time.Now().UTC()}

	if upd.ShippingStatus != "" {
		sets = append(sets, "shipping_status = ?")
		args = append(args, string(upd.ShippingStatus))
	}
	if upd.TrackingNumber != "" {
		sets = append(sets, "tracking_number = ?")
		args = append(args, upd.TrackingNumber)
	}
	if upd.CurrentLocation != "" {
		sets = append(sets, "current_location = ?")
		args = append(args, upd.CurrentLocation)
	}
	if upd.EstimatedDelivery != nil {
		sets = append(sets, "estimated_delivery = ?")
		args = append(args, upd.EstimatedDelivery.UTC())
	}

	args = append(args, orderID)
	query := "UPDATE orders SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating order %d: %w", orderID, err)
	}
	return nil
}

// AppendStatusHistory appends one entry to the order's status history.
// The history is append-only; existing entries are never rewritten.
func (t *sqliteTx) AppendStatusHistory(
	ctx context.Context, orderID int64, entry model.StatusHistoryEntry,
) error {
	var raw string
	err := t.tx.GetContext(ctx, &raw,
		"SELECT status_history FROM orders WHERE id = ?", orderID,
	)
	if err != nil {
		return fmt.Errorf("reading status history for order %d: %w", orderID, err)
	}

	var history []model.StatusHistoryEntry
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return fmt.Errorf("unmarshaling status history: %w", err)
		}
	}

	history = append(history, entry)
	updated, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshaling status history: %w", err)
	}

	_, err = t.tx.ExecContext(ctx,
		"UPDATE orders SET status_history = ? WHERE id = ?",
		string(updated), orderID,
	)
	if err != nil {
		return fmt.Errorf("appending status history for order %d: %w", orderID, err)
	}
	return nil
}

// InsertInvoice records a received invoice linked to an order.
func (t *sqliteTx) InsertInvoice(ctx context.Context, inv model.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO invoices (
			id, order_id, invoice_number, amount, file_path, file_name, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.OrderID, inv.InvoiceNumber, inv.Amount.String(),
		inv.FilePath, inv.FileName, inv.ReceivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting invoice %s: %w", inv.InvoiceNumber, err)
	}
	return nil
}

// MarkInvoiceReceived flags the order as having an invoice.
func (t *sqliteTx) MarkInvoiceReceived(
	ctx context.Context, orderID int64, at time.Time,
) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET has_invoice = 1, invoice_received_at = ?, last_status_update = ?
		WHERE id = ?`,
		at.UTC(), time.Now().UTC(), orderID,
	)
	if err != nil {
		return fmt.Errorf("marking invoice received for order %d: %w", orderID, err)
	}
	return nil
}

// InsertProcessedMessage writes the idempotency ledger row.
func (t *sqliteTx) InsertProcessedMessage(
	ctx context.Context, rec model.ProcessedMessage,
) error {
	processedAt := rec.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_messages (message_id, processed_at, outcome)
		VALUES (?, ?, ?)`,
		rec.MessageID, processedAt.UTC(), string(rec.Outcome),
	)
	if err != nil {
		return fmt.Errorf("inserting ledger row %s: %w", rec.MessageID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking ledger insert %s: %w", rec.MessageID, err)
	}
	if affected == 0 {
		return model.ErrAlreadyProcessed
	}
	return nil
}

// AppendLog writes the audit-trail entry.
func (t *sqliteTx) AppendLog(
	ctx context.Context, entry model.ProcessingLogEntry,
) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.StatusUpdates == "" {
		entry.StatusUpdates = "[]"
	}
	processedAt := entry.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO processing_log (
			id, message_id, order_reference, sender, subject,
			outcome, status_updates, attachment_count, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.MessageID, entry.OrderReference, entry.Sender,
		entry.Subject, string(entry.Outcome), entry.StatusUpdates,
		entry.AttachmentCount, processedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending processing log for %s: %w", entry.MessageID, err)
	}
	return nil
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// scanOrder scans a single order row.
func scanOrder(row *sqlx.Row) (model.Order, error) {
	var (
		order             model.Order
		status            string
		estimatedDelivery sql.NullTime
		invoiceReceivedAt sql.NullTime
		hasInvoice        int
		history           string
	)

	err := row.Scan(
		&order.ID, &order.ReferenceNumber, &order.VendorName, &status,
		&order.TrackingNumber, &order.CurrentLocation, &estimatedDelivery,
		&hasInvoice, &invoiceReceivedAt, &order.LastStatusUpdate,
		&history, &order.CreatedAt,
	)
	if err != nil {
		return model.Order{}, err
	}

	order.ShippingStatus = model.ShippingStatus(status)
	order.HasInvoice = hasInvoice != 0
	if estimatedDelivery.Valid {
		order.EstimatedDelivery = &estimatedDelivery.Time
	}
	if invoiceReceivedAt.Valid {
		order.InvoiceReceivedAt = &invoiceReceivedAt.Time
	}

	if history != "" {
		if err := json.Unmarshal([]byte(history), &order.StatusHistory); err != nil {
			return model.Order{}, fmt.Errorf("unmarshaling status history: %w", err)
		}
	}

	return order, nil
}

// scanInvoice scans an invoice row from a sqlx.Rows result set.
func scanInvoice(rows *sqlx.Rows) (model.Invoice, error) {
	var (
		inv    model.Invoice
		amount string
	)

	err := rows.Scan(
		&inv.ID, &inv.OrderID, &inv.InvoiceNumber, &amount,
		&inv.FilePath, &inv.FileName, &inv.ReceivedAt,
	)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("scanning invoice row: %w", err)
	}

	parsed, err := parseAmount(amount)
	if err != nil {
		return model.Invoice{}, err
	}
	inv.Amount = parsed

	return inv, nil
}

func parseAmount(raw string) (amount decimal.Decimal, err error) {
	amount, err = decimal.NewFromString(raw)
	if err != nil {
		err = fmt.Errorf("parsing invoice amount %q: %w", raw, err)
	}
	return amount, err
}

// nullTime converts an optional time to its SQL representation.
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
