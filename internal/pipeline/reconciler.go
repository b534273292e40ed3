// Package pipeline drives message processing: fetching mail batches,
// extracting signals, and reconciling them against stored orders.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/ordertrack/internal/blob"
	"github.com/nhle/ordertrack/internal/extract"
	"github.com/nhle/ordertrack/internal/mailbox"
	"github.com/nhle/ordertrack/internal/model"
	"github.com/nhle/ordertrack/internal/notify"
	"github.com/nhle/ordertrack/internal/pdftext"
	"github.com/nhle/ordertrack/internal/store"
)

// invoiceExtensions are the attachment types treated as invoice documents.
var invoiceExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
	".csv":  true,
}

// Reconciler turns one parsed message into order updates inside a single
// database transaction.
type Reconciler struct {
	store         store.Store
	blobs         blob.Store
	pdf           pdftext.Extractor
	sink          notify.Sink
	log           *zap.Logger
	contextWindow int
}

// NewReconciler wires the reconciler's dependencies.
func NewReconciler(
	st store.Store,
	blobs blob.Store,
	pdf pdftext.Extractor,
	sink notify.Sink,
	log *zap.Logger,
	contextWindow int,
) *Reconciler {
	if contextWindow <= 0 {
		contextWindow = extract.DefaultContextWindow
	}
	return &Reconciler{
		store:         st,
		blobs:         blobs,
		pdf:           pdf,
		sink:          sink,
		log:           log,
		contextWindow: contextWindow,
	}
}

// Process reconciles one message. Returns the recorded outcome, or an
// empty outcome when the message had already been processed earlier.
// All order mutations for the message commit atomically; on any failure
// the transaction rolls back and the message is ledgered as failed.
func (r *Reconciler) Process(
	ctx context.Context, msg *mailbox.ParsedMessage,
) (model.Outcome, error) {
	seen, err := r.store.IsMessageProcessed(ctx, msg.MessageID)
	if err != nil {
		return "", fmt.Errorf("checking ledger: %w", err)
	}
	if seen {
		r.log.Debug("message already processed, skipping",
			zap.String("message_id", msg.MessageID))
		return "", nil
	}

	fullText := msg.Subject + "\n" + msg.Body() + "\n" + r.attachmentText(msg)
	signals := extract.Scan(fullText, r.contextWindow)

	orders, err := r.resolveOrders(ctx, signals.OrderReferences)
	if err != nil {
		// A lookup failure is transient; ledgering the message as
		// unmatched here would consume it for good.
		r.log.Error("order lookup failed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
		if recErr := r.recordFailed(ctx, msg, signals); recErr != nil {
			r.log.Error("recording failed outcome",
				zap.String("message_id", msg.MessageID),
				zap.Error(recErr))
		}
		return model.OutcomeFailed, err
	}
	if len(orders) == 0 {
		return r.recordUnmatched(ctx, msg, signals)
	}

	outcome, err := r.applyUpdates(ctx, msg, signals, orders)
	if err != nil {
		r.log.Error("reconciliation failed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
		if recErr := r.recordFailed(ctx, msg, signals); recErr != nil {
			r.log.Error("recording failed outcome",
				zap.String("message_id", msg.MessageID),
				zap.Error(recErr))
		}
		return model.OutcomeFailed, err
	}

	now := time.Now().UTC()
	for _, order := range orders {
		r.sink.Publish("order_update", notify.Payload{
			OrderReference: order.ReferenceNumber,
			UpdateType:     "vendor_response",
			Timestamp:      now,
		})
	}

	return outcome, nil
}

// RecordParseFailure ledgers a message whose MIME structure could not be
// parsed, so the poller never retries it.
func (r *Reconciler) RecordParseFailure(
	ctx context.Context, msg mailbox.RawMessage,
) error {
	return r.store.RecordOutcome(ctx,
		model.ProcessedMessage{
			MessageID:   msg.MessageID,
			ProcessedAt: time.Now().UTC(),
			Outcome:     model.OutcomeFailed,
		},
		model.ProcessingLogEntry{
			MessageID:   msg.MessageID,
			Sender:      msg.From,
			Subject:     msg.Subject,
			Outcome:     model.OutcomeFailed,
			ProcessedAt: time.Now().UTC(),
		},
	)
}

// attachmentText extracts plain text from PDF attachments. Extraction is
// best effort; a skipped document degrades to subject and body text only.
func (r *Reconciler) attachmentText(msg *mailbox.ParsedMessage) string {
	var parts []string
	for _, att := range msg.Attachments {
		if !pdftext.IsPDF(att.Filename, att.MIMEType) {
			continue
		}
		res := r.pdf.Extract(att.Content)
		if res.Skipped {
			r.log.Warn("attachment text extraction skipped",
				zap.String("message_id", msg.MessageID),
				zap.String("filename", att.Filename))
			continue
		}
		parts = append(parts, res.Text)
	}
	return strings.Join(parts, "\n")
}

// resolveOrders looks up each extracted reference. Unknown references are
// logged and dropped; one message may still match several orders. Store
// errors other than a missing order propagate so the message ends up
// failed rather than consumed as unmatched.
func (r *Reconciler) resolveOrders(
	ctx context.Context, refs []string,
) ([]*model.Order, error) {
	var orders []*model.Order
	for _, ref := range refs {
		order, err := r.store.FindOrderByReference(ctx, ref)
		if err == model.ErrOrderNotFound {
			r.log.Info("no order for extracted reference",
				zap.String("reference", ref))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("looking up order %s: %w", ref, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// applyUpdates runs the transactional part of reconciliation: every order
// mutation, the audit entry, and the ledger row commit together.
func (r *Reconciler) applyUpdates(
	ctx context.Context,
	msg *mailbox.ParsedMessage,
	signals extract.Signals,
	orders []*model.Order,
) (model.Outcome, error) {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	primary := extract.PrimaryStatus(signals.StatusMatches)

	for _, order := range orders {
		if err := r.updateOrder(ctx, tx, msg, signals, primary, order); err != nil {
			return "", err
		}
	}

	if err := tx.AppendLog(ctx, r.logEntry(msg, signals, orders)); err != nil {
		return "", err
	}

	err = tx.InsertProcessedMessage(ctx, model.ProcessedMessage{
		MessageID:   msg.MessageID,
		ProcessedAt: time.Now().UTC(),
		Outcome:     model.OutcomeMatched,
	})
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing reconciliation: %w", err)
	}
	return model.OutcomeMatched, nil
}

// updateOrder applies the extracted signals to a single order within the
// transaction: field updates, the history entry, and any invoice.
func (r *Reconciler) updateOrder(
	ctx context.Context,
	tx store.Tx,
	msg *mailbox.ParsedMessage,
	signals extract.Signals,
	primary *extract.StatusMatch,
	order *model.Order,
) error {
	upd := model.OrderUpdate{
		TrackingNumber:    signals.TrackingNumber,
		CurrentLocation:   signals.Location,
		EstimatedDelivery: signals.EstimatedDelivery,
	}

	historyStatus := order.ShippingStatus
	if primary != nil {
		upd.ShippingStatus = primary.Status
		historyStatus = primary.Status
	}

	if err := tx.UpdateOrder(ctx, order.ID, upd); err != nil {
		return err
	}

	err := tx.AppendStatusHistory(ctx, order.ID, model.StatusHistoryEntry{
		Timestamp: time.Now().UTC(),
		Status:    historyStatus,
		Source:    fmt.Sprintf("email from %s: %s", msg.From, msg.Subject),
	})
	if err != nil {
		return err
	}

	return r.attachInvoices(ctx, tx, msg, signals, order)
}

// attachInvoices persists invoice-bearing attachments and links them to
// the order. The file lands on disk before the transaction commits; an
// orphaned file after a rollback is harmless, a committed invoice row
// without its file is not.
func (r *Reconciler) attachInvoices(
	ctx context.Context,
	tx store.Tx,
	msg *mailbox.ParsedMessage,
	signals extract.Signals,
	order *model.Order,
) error {
	now := time.Now().UTC()

	for _, att := range msg.Attachments {
		ext := strings.ToLower(filepath.Ext(att.Filename))
		if !invoiceExtensions[ext] && !pdftext.IsPDF(att.Filename, att.MIMEType) {
			continue
		}

		path, err := r.blobs.Save(att.Content, att.Filename)
		if err != nil {
			return fmt.Errorf("saving attachment %s: %w", att.Filename, err)
		}

		inv := model.Invoice{
			OrderID:       order.ID,
			InvoiceNumber: signals.InvoiceNumber,
			FilePath:      path,
			FileName:      att.Filename,
			ReceivedAt:    now,
		}
		if inv.InvoiceNumber == "" {
			inv.InvoiceNumber = fmt.Sprintf("INV-%d", now.Unix())
		}
		if signals.InvoiceAmount != nil {
			inv.Amount = *signals.InvoiceAmount
		}

		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		if err := tx.MarkInvoiceReceived(ctx, order.ID, now); err != nil {
			return err
		}
	}

	return nil
}

// recordUnmatched ledgers a message that resolved to no known order. The
// message is consumed, never retried; the audit entry preserves what was
// extracted for later inspection.
func (r *Reconciler) recordUnmatched(
	ctx context.Context, msg *mailbox.ParsedMessage, signals extract.Signals,
) (model.Outcome, error) {
	r.log.Info("message matched no orders",
		zap.String("message_id", msg.MessageID),
		zap.Strings("references", signals.OrderReferences))

	err := r.store.RecordOutcome(ctx,
		model.ProcessedMessage{
			MessageID:   msg.MessageID,
			ProcessedAt: time.Now().UTC(),
			Outcome:     model.OutcomeUnmatched,
		},
		r.logEntry(msg, signals, nil),
	)
	if err != nil {
		return "", fmt.Errorf("recording unmatched outcome: %w", err)
	}
	return model.OutcomeUnmatched, nil
}

func (r *Reconciler) recordFailed(
	ctx context.Context, msg *mailbox.ParsedMessage, signals extract.Signals,
) error {
	entry := r.logEntry(msg, signals, nil)
	entry.Outcome = model.OutcomeFailed
	return r.store.RecordOutcome(ctx,
		model.ProcessedMessage{
			MessageID:   msg.MessageID,
			ProcessedAt: time.Now().UTC(),
			Outcome:     model.OutcomeFailed,
		},
		entry,
	)
}

// logEntry builds the audit-trail entry for a message.
func (r *Reconciler) logEntry(
	msg *mailbox.ParsedMessage,
	signals extract.Signals,
	orders []*model.Order,
) model.ProcessingLogEntry {
	outcome := model.OutcomeUnmatched
	var refs []string
	if len(orders) > 0 {
		outcome = model.OutcomeMatched
		for _, o := range orders {
			refs = append(refs, o.ReferenceNumber)
		}
	}

	updates := "[]"
	if raw, err := json.Marshal(signals.StatusMatches); err == nil {
		updates = string(raw)
	}

	return model.ProcessingLogEntry{
		MessageID:       msg.MessageID,
		OrderReference:  strings.Join(refs, ","),
		Sender:          msg.From,
		Subject:         msg.Subject,
		Outcome:         outcome,
		StatusUpdates:   updates,
		AttachmentCount: len(msg.Attachments),
		ProcessedAt:     time.Now().UTC(),
	}
}
