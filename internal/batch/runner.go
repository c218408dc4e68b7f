// Package batch protects files on disk: it expands file arguments, runs the
// privacy engine over each document with a worker pool and writes protected
// copies next to the inputs.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/document"
	"github.com/raaihank/pii-sentinel/internal/ledger"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/metrics"
	"github.com/raaihank/pii-sentinel/internal/privacy"
)

const (
	statusOK      = metrics.StatusOK
	statusFailed  = metrics.StatusFailed
	statusSkipped = metrics.StatusSkipped

	// ledgerFlushSize is the number of document rows written per statement.
	ledgerFlushSize = 100
)

// Recorder persists the audit trail of a run.
type Recorder interface {
	StartRun(ctx context.Context, run *ledger.Run) error
	RecordDocuments(ctx context.Context, runID string, docs []*ledger.Document) error
	FinishRun(ctx context.Context, runID string, summary ledger.RunSummary) error
}

// Runner processes batches of files with a shared engine.
type Runner struct {
	engine   *privacy.Engine
	config   *Config
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewRunner creates a batch runner. recorder and m may be nil.
func NewRunner(engine *privacy.Engine, config *Config, recorder Recorder, m *metrics.Metrics, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{
		engine:   engine,
		config:   config,
		recorder: recorder,
		metrics:  m,
		logger:   log,
	}
}

// Run processes every path. Failed documents are recorded in the result and
// never stop the run; only cancellation of ctx does, in which case the
// partial result is returned along with the context error.
func (r *Runner) Run(ctx context.Context, paths []string) (*ProcessingResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := r.logger.WithRunID(runID)

	result := &ProcessingResult{
		RunID:     runID,
		Documents: []*DocumentResult{},
		tally:     make(privacy.Tally),
	}

	workers := r.config.Workers
	if workers <= 0 {
		workers = 1
	}
	if len(paths) > 0 && workers > len(paths) {
		workers = len(paths)
	}

	log.Info("Starting batch run",
		zap.Int("files", len(paths)),
		zap.Int("workers", workers),
		zap.Strings("categories", r.engine.Categories().Strings()))

	recorder := r.recorder
	if recorder != nil {
		run := &ledger.Run{
			ID:         runID,
			Source:     metrics.SourceBatch,
			Categories: r.engine.Categories().Strings(),
		}
		if err := recorder.StartRun(ctx, run); err != nil {
			log.Warn("Ledger unavailable, run will not be recorded", zap.Error(err))
			recorder = nil
		}
	}

	jobs := make(chan string)
	results := make(chan *DocumentResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- r.processFile(ctx, path)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, path := range paths {
			select {
			case jobs <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var pending []*ledger.Document
	flush := func() {
		if recorder == nil || len(pending) == 0 {
			return
		}
		if err := recorder.RecordDocuments(context.WithoutCancel(ctx), runID, pending); err != nil {
			log.Warn("Failed to record documents", zap.Error(err), zap.Int("documents", len(pending)))
		}
		pending = nil
	}

	for doc := range results {
		result.add(doc)
		r.metrics.RecordDocument(metrics.SourceBatch, doc.Status, doc.Findings, doc.Duration)
		r.logDocument(log, doc)

		if recorder != nil {
			pending = append(pending, toLedgerDocument(doc))
			if len(pending) >= ledgerFlushSize {
				flush()
			}
		}
	}
	flush()

	result.Categories = result.tally.Findings()
	result.Duration = time.Since(start)

	if recorder != nil {
		summary := ledger.RunSummary{
			Documents:    result.TotalDocuments,
			Succeeded:    result.ProcessedOK,
			Failed:       result.ProcessedFailed,
			Skipped:      result.Skipped,
			Replacements: result.Replacements,
		}
		if err := recorder.FinishRun(context.WithoutCancel(ctx), runID, summary); err != nil {
			log.Warn("Failed to finish ledger run", zap.Error(err))
		}
	}

	log.Info("Batch run completed",
		zap.Int64("total_documents", result.TotalDocuments),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("replacements", result.Replacements),
		zap.Duration("duration", result.Duration))

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("batch run interrupted: %w", err)
	}
	return result, nil
}

// processFile protects a single file. It never returns nil.
func (r *Runner) processFile(ctx context.Context, path string) *DocumentResult {
	start := time.Now()
	doc := &DocumentResult{
		Path:     path,
		Format:   document.DetectFormat(path),
		Findings: []privacy.Finding{},
	}

	if r.config.Suffix != "" && strings.HasSuffix(path, r.config.Suffix) {
		doc.Status = statusSkipped
		return doc
	}

	fail := func(err error) *DocumentResult {
		doc.Status = statusFailed
		doc.err = err
		doc.Error = err.Error()
		doc.Duration = time.Since(start)
		return doc
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(fmt.Errorf("failed to stat input: %w", err))
	}
	if info.IsDir() {
		return fail(errors.New("input is a directory"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Errorf("failed to read input: %w", err))
	}

	out, findings, err := r.protect(ctx, path, doc.Format, data)
	if err != nil {
		return fail(err)
	}

	outPath := OutputPath(path, r.config.Suffix)
	if err := writeFileAtomic(outPath, out, info.Mode().Perm()); err != nil {
		return fail(err)
	}

	doc.Status = statusOK
	doc.OutputPath = outPath
	doc.Findings = findings
	doc.Duration = time.Since(start)
	return doc
}

// protect decodes data, pseudonymizes every string leaf and re-encodes it in
// the same format.
func (r *Runner) protect(ctx context.Context, path string, format document.Format, data []byte) ([]byte, []privacy.Finding, error) {
	codec, err := document.ForFormat(format)
	if err != nil {
		return nil, nil, err
	}

	parsed, err := document.Decode(path, format, data)
	if err != nil {
		return nil, nil, err
	}

	res, err := r.engine.Walk(ctx, parsed)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to protect %s: %w", path, err)
	}

	out, err := codec.Encode(res.Document)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return out, res.Findings, nil
}

func (r *Runner) logDocument(log *logger.Logger, doc *DocumentResult) {
	switch doc.Status {
	case statusOK:
		log.Debug("Document protected",
			zap.String("path", doc.Path),
			zap.String("format", string(doc.Format)),
			zap.Int("replacements", doc.Replacements()),
			zap.Duration("duration", doc.Duration))
	case statusSkipped:
		log.Info("Skipping already protected file", zap.String("path", doc.Path))
	default:
		log.Warn("Document failed",
			zap.String("path", doc.Path),
			zap.String("format", string(doc.Format)),
			zap.Error(doc.err))
	}
}

func toLedgerDocument(doc *DocumentResult) *ledger.Document {
	return &ledger.Document{
		Path:         doc.Path,
		Format:       string(doc.Format),
		Status:       doc.Status,
		Replacements: int64(doc.Replacements()),
		Findings:     ledger.FindingsFrom(doc.Findings),
		DurationMs:   doc.Duration.Milliseconds(),
		Error:        doc.Error,
	}
}
