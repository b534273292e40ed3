package model

import "time"

// Outcome classifies how a message was handled.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeFailed    Outcome = "failed"
)

// ProcessedMessage is the idempotency ledger row for one mailbox message.
// At most one row exists per message ID; re-delivery is a no-op.
type ProcessedMessage struct {
	MessageID   string    `db:"message_id"`
	ProcessedAt time.Time `db:"processed_at"`
	Outcome     Outcome   `db:"outcome"`
}

// ProcessingLogEntry is one append-only audit record of a processed message.
type ProcessingLogEntry struct {
	ID              string    `db:"id" json:"id"`
	MessageID       string    `db:"message_id" json:"messageId"`
	OrderReference  string    `db:"order_reference" json:"orderReference"`
	Sender          string    `db:"sender" json:"sender"`
	Subject         string    `db:"subject" json:"subject"`
	Outcome         Outcome   `db:"outcome" json:"outcome"`
	StatusUpdates   string    `db:"status_updates" json:"statusUpdates"`
	AttachmentCount int       `db:"attachment_count" json:"attachmentCount"`
	ProcessedAt     time.Time `db:"processed_at" json:"processedAt"`
}
