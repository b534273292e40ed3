package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/ordertrack/internal/blob"
	"github.com/nhle/ordertrack/internal/config"
	"github.com/nhle/ordertrack/internal/mailbox"
	"github.com/nhle/ordertrack/internal/model"
	"github.com/nhle/ordertrack/internal/pdftext"
	"github.com/nhle/ordertrack/internal/store"
)

// fakeSource serves a canned batch or a canned error and counts calls.
type fakeSource struct {
	batch []mailbox.RawMessage
	err   error
	calls int
}

func (f *fakeSource) FetchBatch(_ context.Context) ([]mailbox.RawMessage, error) {
	f.calls++
	return f.batch, f.err
}

// fakeParser fails messages whose ID is in failIDs and passes the rest
// through with the raw payload as the text body.
type fakeParser struct {
	failIDs map[string]bool
}

func (f *fakeParser) Parse(msg mailbox.RawMessage) (*mailbox.ParsedMessage, error) {
	if f.failIDs[msg.MessageID] {
		return nil, &mailbox.ParseError{
			MessageID: msg.MessageID,
			Err:       errors.New("malformed"),
		}
	}
	return &mailbox.ParsedMessage{
		MessageID: msg.MessageID,
		From:      msg.From,
		Subject:   msg.Subject,
		TextBody:  string(msg.Raw),
	}, nil
}

func pollConfig() config.PollConfig {
	return config.PollConfig{
		Interval:          time.Minute,
		MaxConnectRetries: 3,
		RetryDelay:        time.Millisecond,
		FetchLimit:        10,
	}
}

func newPipelineFixture(
	t *testing.T, source MailSource, parser Parser,
) (*Pipeline, *store.SQLiteStore) {
	t.Helper()

	dir := t.TempDir()

	st, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	blobs, err := blob.NewFSStore(filepath.Join(dir, "attachments"))
	require.NoError(t, err)

	rec := NewReconciler(st, blobs, pdftext.Noop{}, &fakeSink{}, zap.NewNop(), 0)
	p := New(source, parser, rec, st, pollConfig(), zap.NewNop())

	return p, st
}

func rawMsg(id, body string) mailbox.RawMessage {
	return mailbox.RawMessage{
		MessageID: id,
		From:      "vendor@example.com",
		Subject:   "update",
		Raw:       []byte(body),
	}
}

func TestRunNowProcessesBatch(t *testing.T) {
	source := &fakeSource{batch: []mailbox.RawMessage{
		rawMsg("<m1@example.com>", "PO-2025-431261-2567 has been shipped"),
		rawMsg("<m2@example.com>", "no references here"),
	}}
	p, st := newPipelineFixture(t, source, &fakeParser{})
	ctx := context.Background()

	_, err := st.CreateOrder(ctx, model.Order{ReferenceNumber: "PO-2025-431261-2567"})
	require.NoError(t, err)

	n, err := p.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	order, err := st.FindOrderByReference(ctx, "PO-2025-431261-2567")
	require.NoError(t, err)
	assert.Equal(t, model.StatusShipped, order.ShippingStatus)

	count, err := st.CountProcessedMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunNowParseFailureIsolated(t *testing.T) {
	source := &fakeSource{batch: []mailbox.RawMessage{
		rawMsg("<m1@example.com>", "PO-2025-431261-2567 shipped"),
		rawMsg("<m2@example.com>", "whatever"),
		rawMsg("<m3@example.com>", "PO-2025-431261-2567 delivered"),
	}}
	parser := &fakeParser{failIDs: map[string]bool{"<m2@example.com>": true}}
	p, st := newPipelineFixture(t, source, parser)
	ctx := context.Background()

	_, err := st.CreateOrder(ctx, model.Order{ReferenceNumber: "PO-2025-431261-2567"})
	require.NoError(t, err)

	n, err := p.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// The broken message is ledgered as failed; the rest still land.
	order, err := st.FindOrderByReference(ctx, "PO-2025-431261-2567")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, order.ShippingStatus)
	assert.Len(t, order.StatusHistory, 2)

	seen, err := st.IsMessageProcessed(ctx, "<m2@example.com>")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRunNowEmptyBatch(t *testing.T) {
	p, _ := newPipelineFixture(t, &fakeSource{}, &fakeParser{})

	n, err := p.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunNowRetriesConnectionErrors(t *testing.T) {
	source := &fakeSource{err: &mailbox.ConnectionError{
		Op:  "dial imap.example.com:993",
		Err: errors.New("connection refused"),
	}}
	p, _ := newPipelineFixture(t, source, &fakeParser{})

	_, err := p.RunNow(context.Background())
	require.Error(t, err)
	assert.True(t, mailbox.IsConnectionError(err))

	// One initial attempt plus the configured retries.
	assert.Equal(t, 4, source.calls)
}

func TestRunNowDoesNotRetryOtherErrors(t *testing.T) {
	source := &fakeSource{err: errors.New("broken pipe mid-fetch")}
	p, _ := newPipelineFixture(t, source, &fakeParser{})

	_, err := p.RunNow(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, source.calls)
}

// reentrantSource triggers a second cycle from inside the first.
type reentrantSource struct {
	p       *Pipeline
	nested  error
	invoked bool
}

func (r *reentrantSource) FetchBatch(ctx context.Context) ([]mailbox.RawMessage, error) {
	if !r.invoked {
		r.invoked = true
		_, r.nested = r.p.RunNow(ctx)
	}
	return nil, nil
}

func TestRunNowSkipsOverlappingCycle(t *testing.T) {
	source := &reentrantSource{}
	p, _ := newPipelineFixture(t, source, &fakeParser{})
	source.p = p

	_, err := p.RunNow(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, source.nested, model.ErrCycleRunning)
}

func TestStatus(t *testing.T) {
	source := &fakeSource{batch: []mailbox.RawMessage{
		rawMsg("<m1@example.com>", "nothing"),
	}}
	p, _ := newPipelineFixture(t, source, &fakeParser{})
	ctx := context.Background()

	st, err := p.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsProcessing)
	assert.True(t, st.LastCheckTime.IsZero())
	assert.Zero(t, st.MessagesSeen)

	_, err = p.RunNow(ctx)
	require.NoError(t, err)

	st, err = p.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.LastCheckTime.IsZero())
	assert.Equal(t, 1, st.MessagesSeen)
}
