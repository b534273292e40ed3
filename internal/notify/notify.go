// Package notify publishes order-update events after reconciliation
// commits. Events fire strictly after the database transaction succeeds,
// so a consumer never observes an update that was rolled back.
package notify

import (
	"time"

	"go.uber.org/zap"
)

// Payload describes one committed order update.
type Payload struct {
	OrderReference string    `json:"orderReference"`
	UpdateType     string    `json:"updateType"`
	Timestamp      time.Time `json:"timestamp"`
}

// Sink receives published events. Publishing is best effort; a sink must
// not block reconciliation.
type Sink interface {
	Publish(eventType string, p Payload)
}

// LogSink emits events to the structured log.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a log-backed event sink.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

// Publish implements Sink.
func (s *LogSink) Publish(eventType string, p Payload) {
	s.log.Info("event published",
		zap.String("event", eventType),
		zap.String("order_reference", p.OrderReference),
		zap.String("update_type", p.UpdateType),
		zap.Time("timestamp", p.Timestamp),
	)
}
