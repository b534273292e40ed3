package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSinkPublish(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	sink.Publish("order_update", Payload{
		OrderReference: "PO-2025-431261-2567",
		UpdateType:     "vendor_response",
		Timestamp:      time.Now().UTC(),
	})

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "order_update", fields["event"])
	assert.Equal(t, "PO-2025-431261-2567", fields["order_reference"])
	assert.Equal(t, "vendor_response", fields["update_type"])
}
