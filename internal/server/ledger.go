package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/ledger"
	"github.com/raaihank/pii-sentinel/internal/logger"
)

const (
	ledgerQueueSize     = 1024
	ledgerFlushSize     = 100
	ledgerFlushInterval = 5 * time.Second
)

// ledgerWriter records request documents in the background so that the
// database never sits on the request path. Documents are dropped, with a
// warning, when the queue is full or the ledger is unavailable.
type ledgerWriter struct {
	recorder Recorder
	runID    string
	logger   *logger.Logger

	queue   chan *ledger.Document
	done    chan struct{}
	mu      sync.RWMutex
	active  bool
	stopped bool
	dropped atomic.Int64
}

func newLedgerWriter(recorder Recorder, runID string, log *logger.Logger) *ledgerWriter {
	return &ledgerWriter{
		recorder: recorder,
		runID:    runID,
		logger:   log,
		queue:    make(chan *ledger.Document, ledgerQueueSize),
		done:     make(chan struct{}),
	}
}

// start opens the run and starts the flush loop.
func (l *ledgerWriter) start(ctx context.Context, run *ledger.Run) {
	if err := l.recorder.StartRun(ctx, run); err != nil {
		l.logger.Warn("Ledger unavailable, run will not be recorded", zap.Error(err))
		close(l.done)
		return
	}

	l.mu.Lock()
	l.active = true
	l.mu.Unlock()

	go l.loop()
}

// record queues a document row without blocking.
func (l *ledgerWriter) record(doc *ledger.Document) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.active || l.stopped {
		return
	}

	select {
	case l.queue <- doc:
	default:
		l.logger.Warn("Ledger queue full, dropping document row",
			zap.Int64("dropped", l.dropped.Add(1)))
	}
}

func (l *ledgerWriter) loop() {
	defer close(l.done)

	ticker := time.NewTicker(ledgerFlushInterval)
	defer ticker.Stop()

	var pending []*ledger.Document
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := l.recorder.RecordDocuments(context.Background(), l.runID, pending); err != nil {
			l.logger.Warn("Failed to record documents", zap.Error(err), zap.Int("documents", len(pending)))
		}
		pending = nil
	}

	for {
		select {
		case doc, ok := <-l.queue:
			if !ok {
				flush()
				return
			}
			pending = append(pending, doc)
			if len(pending) >= ledgerFlushSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// finish drains the queue and closes the run with summary.
func (l *ledgerWriter) finish(ctx context.Context, summary ledger.RunSummary) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	active := l.active
	if active {
		close(l.queue)
	}
	l.mu.Unlock()

	if !active {
		return
	}

	select {
	case <-l.done:
	case <-ctx.Done():
		l.logger.Warn("Timed out flushing ledger", zap.Error(ctx.Err()))
	}

	if err := l.recorder.FinishRun(context.WithoutCancel(ctx), l.runID, summary); err != nil {
		l.logger.Warn("Failed to finish ledger run", zap.Error(err))
	}
}
