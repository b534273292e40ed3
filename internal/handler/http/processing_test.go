package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/ordertrack/internal/mailbox"
	"github.com/nhle/ordertrack/internal/model"
	"github.com/nhle/ordertrack/internal/pipeline"
	"github.com/nhle/ordertrack/internal/store"
)

// fakeRunner serves canned poller results.
type fakeRunner struct {
	processed int
	runErr    error
	status    pipeline.Status
}

func (f *fakeRunner) RunNow(_ context.Context) (int, error) {
	return f.processed, f.runErr
}

func (f *fakeRunner) Status(_ context.Context) (pipeline.Status, error) {
	return f.status, nil
}

func newTestServer(t *testing.T, runner Runner) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := zap.NewNop()
	srv := httptest.NewServer(NewRouter(NewProcessingHandler(runner, st, log), log))
	t.Cleanup(srv.Close)

	return srv, st
}

func TestRunNow(t *testing.T) {
	tests := []struct {
		name       string
		runner     *fakeRunner
		wantStatus int
	}{
		{
			name:       "cycle runs",
			runner:     &fakeRunner{processed: 3},
			wantStatus: http.StatusOK,
		},
		{
			name:       "cycle already running",
			runner:     &fakeRunner{runErr: model.ErrCycleRunning},
			wantStatus: http.StatusConflict,
		},
		{
			name: "mailbox unreachable",
			runner: &fakeRunner{runErr: &mailbox.ConnectionError{
				Op:  "dial",
				Err: errors.New("connection refused"),
			}},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "internal failure",
			runner:     &fakeRunner{runErr: errors.New("db locked")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.runner)

			resp, err := http.Post(srv.URL+"/api/processing/run", "", nil)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantStatus == http.StatusOK {
				var body map[string]int
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, 3, body["messagesProcessed"])
			}
		})
	}
}

func TestGetStatus(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{
		status: pipeline.Status{IsProcessing: true, MessagesSeen: 7},
	})

	resp, err := http.Get(srv.URL + "/api/processing/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status pipeline.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.IsProcessing)
	assert.Equal(t, 7, status.MessagesSeen)
}

func TestGetLog(t *testing.T) {
	srv, st := newTestServer(t, &fakeRunner{})

	err := st.RecordOutcome(context.Background(),
		model.ProcessedMessage{
			MessageID: "<m1@example.com>",
			Outcome:   model.OutcomeUnmatched,
		},
		model.ProcessingLogEntry{
			MessageID: "<m1@example.com>",
			Subject:   "Newsletter",
			Outcome:   model.OutcomeUnmatched,
		},
	)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/processing/log")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []model.ProcessingLogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "<m1@example.com>", entries[0].MessageID)
	assert.Equal(t, model.OutcomeUnmatched, entries[0].Outcome)
}

func TestGetLogEmpty(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{})

	resp, err := http.Get(srv.URL + "/api/processing/log")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []model.ProcessingLogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	assert.Empty(t, entries)
}
