package annotator

import (
	"context"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/metrics"
	"github.com/raaihank/pii-sentinel/internal/privacy"
)

// EntityStore persists annotator output per text.
type EntityStore interface {
	Get(ctx context.Context, text string) ([]privacy.Entity, bool)
	Store(ctx context.Context, text string, entities []privacy.Entity) error
}

// CachingAnnotator serves repeated texts from an EntityStore and only calls
// the wrapped annotator on a miss. Store failures never fail a document.
type CachingAnnotator struct {
	next    privacy.Annotator
	store   EntityStore
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewCaching wraps next with store.
func NewCaching(next privacy.Annotator, store EntityStore, m *metrics.Metrics, log *logger.Logger) *CachingAnnotator {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachingAnnotator{
		next:    next,
		store:   store,
		metrics: m,
		logger:  log,
	}
}

// Annotate implements privacy.Annotator.
func (a *CachingAnnotator) Annotate(ctx context.Context, text string) ([]privacy.Entity, error) {
	if entities, ok := a.store.Get(ctx, text); ok {
		a.metrics.RecordAnnotatorCache(true)
		return entities, nil
	}
	a.metrics.RecordAnnotatorCache(false)

	entities, err := a.next.Annotate(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := a.store.Store(ctx, text, entities); err != nil {
		a.logger.Warn("Failed to cache annotations", zap.Error(err))
	}
	return entities, nil
}
