package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/ordertrack/internal/config"
	"github.com/nhle/ordertrack/internal/mailbox"
	"github.com/nhle/ordertrack/internal/model"
	"github.com/nhle/ordertrack/internal/store"
)

// MailSource fetches a batch of raw messages from the monitored mailbox.
type MailSource interface {
	FetchBatch(ctx context.Context) ([]mailbox.RawMessage, error)
}

// Parser decodes a raw message's MIME structure.
type Parser interface {
	Parse(msg mailbox.RawMessage) (*mailbox.ParsedMessage, error)
}

// Status is a snapshot of the poller's state.
type Status struct {
	IsProcessing  bool      `json:"isProcessing"`
	LastCheckTime time.Time `json:"lastCheckTime"`
	MessagesSeen  int       `json:"messagesSeen"`
}

// Pipeline runs the periodic poll cycle: fetch a batch, parse each
// message, and hand it to the reconciler. Cycles never overlap; a cycle
// requested while one is running is skipped, not queued.
type Pipeline struct {
	source     MailSource
	parser     Parser
	reconciler *Reconciler
	store      store.Store
	cfg        config.PollConfig
	log        *zap.Logger

	mu        sync.Mutex
	running   bool
	lastCheck time.Time
}

// New wires the poller.
func New(
	source MailSource,
	parser Parser,
	reconciler *Reconciler,
	st store.Store,
	cfg config.PollConfig,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		source:     source,
		parser:     parser,
		reconciler: reconciler,
		store:      st,
		cfg:        cfg,
		log:        log,
	}
}

// Run polls the mailbox on the configured interval until the context is
// cancelled. The first cycle runs immediately.
func (p *Pipeline) Run(ctx context.Context) {
	if _, err := p.RunNow(ctx); err != nil {
		p.log.Error("poll cycle failed", zap.Error(err))
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return
		case <-ticker.C:
			if _, err := p.RunNow(ctx); err != nil && err != model.ErrCycleRunning {
				p.log.Error("poll cycle failed", zap.Error(err))
			}
		}
	}
}

// RunNow runs one poll cycle synchronously and returns the number of
// messages processed. Returns model.ErrCycleRunning when a cycle is
// already in flight.
func (p *Pipeline) RunNow(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return 0, model.ErrCycleRunning
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.lastCheck = time.Now().UTC()
		p.mu.Unlock()
	}()

	return p.runCycle(ctx)
}

// Status reports the poller state and the lifetime count of distinct
// messages seen.
func (p *Pipeline) Status(ctx context.Context) (Status, error) {
	p.mu.Lock()
	st := Status{
		IsProcessing:  p.running,
		LastCheckTime: p.lastCheck,
	}
	p.mu.Unlock()

	seen, err := p.store.CountProcessedMessages(ctx)
	if err != nil {
		return Status{}, err
	}
	st.MessagesSeen = seen

	return st, nil
}

// runCycle fetches one batch and processes each message independently; a
// failure on one message never blocks the rest of the batch.
func (p *Pipeline) runCycle(ctx context.Context) (int, error) {
	batch, err := p.fetchWithRetry(ctx)
	if err != nil {
		return 0, err
	}

	if len(batch) == 0 {
		p.log.Debug("no new messages")
		return 0, nil
	}

	p.log.Info("processing batch", zap.Int("messages", len(batch)))

	processed := 0
	for _, raw := range batch {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		parsed, err := p.parser.Parse(raw)
		if err != nil {
			p.log.Warn("message parse failed",
				zap.String("message_id", raw.MessageID),
				zap.Error(err))
			if recErr := p.reconciler.RecordParseFailure(ctx, raw); recErr != nil {
				p.log.Error("recording parse failure",
					zap.String("message_id", raw.MessageID),
					zap.Error(recErr))
			}
			processed++
			continue
		}

		outcome, err := p.reconciler.Process(ctx, parsed)
		if err != nil {
			p.log.Warn("message processing failed",
				zap.String("message_id", parsed.MessageID),
				zap.Error(err))
		}
		if outcome != "" {
			processed++
		}
	}

	return processed, nil
}

// fetchWithRetry fetches the batch, retrying transient connection errors
// with a fixed delay. Non-connection errors fail immediately.
func (p *Pipeline) fetchWithRetry(ctx context.Context) ([]mailbox.RawMessage, error) {
	attempts := 1 + p.cfg.MaxConnectRetries

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		batch, err := p.source.FetchBatch(ctx)
		if err == nil {
			return batch, nil
		}
		lastErr = err

		if !mailbox.IsConnectionError(err) {
			return nil, err
		}

		if attempt < attempts {
			p.log.Warn("mailbox connection failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", p.cfg.RetryDelay),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.cfg.RetryDelay):
			}
		}
	}

	return nil, lastErr
}
