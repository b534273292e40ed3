package store

import (
	"context"
	"time"

	"github.com/nhle/ordertrack/internal/model"
)

// Store is the persistence interface the pipeline consumes: order lookup,
// the idempotency ledger, the processing log, and transactional updates.
type Store interface {
	// FindOrderByReference returns the order with the given business
	// reference number, or model.ErrOrderNotFound.
	FindOrderByReference(ctx context.Context, ref string) (*model.Order, error)

	// IsMessageProcessed reports whether a ledger row exists for the
	// message ID.
	IsMessageProcessed(ctx context.Context, messageID string) (bool, error)

	// Begin opens a transaction for a multi-step order update.
	Begin(ctx context.Context) (Tx, error)

	// RecordOutcome writes the ledger row and audit entry for a message
	// that did not mutate any order (unmatched or failed outcomes). The
	// ledger insert is idempotent.
	RecordOutcome(
		ctx context.Context,
		rec model.ProcessedMessage,
		entry model.ProcessingLogEntry,
	) error

	// CountProcessedMessages returns the number of distinct messages seen.
	CountProcessedMessages(ctx context.Context) (int, error)

	// RecentLog returns the most recent processing-log entries.
	RecentLog(ctx context.Context, limit int) ([]model.ProcessingLogEntry, error)
}

// Tx is one transactional unit of reconciliation work. All writes commit
// together or not at all.
type Tx interface {
	// UpdateOrder applies the extracted field changes and bumps
	// last_status_update. Empty fields in upd are left untouched.
	UpdateOrder(ctx context.Context, orderID int64, upd model.OrderUpdate) error

	// AppendStatusHistory appends one entry to the order's append-only
	// status history.
	AppendStatusHistory(
		ctx context.Context, orderID int64, entry model.StatusHistoryEntry,
	) error

	// InsertInvoice records a received invoice linked to an order.
	InsertInvoice(ctx context.Context, inv model.Invoice) error

	// MarkInvoiceReceived flags the order as having an invoice.
	MarkInvoiceReceived(ctx context.Context, orderID int64, at time.Time) error

	// InsertProcessedMessage writes the idempotency ledger row. Returns
	// model.ErrAlreadyProcessed when a row already exists.
	InsertProcessedMessage(ctx context.Context, rec model.ProcessedMessage) error

	// AppendLog writes the audit-trail entry.
	AppendLog(ctx context.Context, entry model.ProcessingLogEntry) error

	Commit() error
	Rollback() error
}
