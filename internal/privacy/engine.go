package privacy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/pseudonym"
	"go.uber.org/zap"
)

// Engine detects and pseudonymizes PII. It is immutable after construction
// and safe for concurrent use by several workers.
type Engine struct {
	pseudonymizer *pseudonym.Pseudonymizer
	categories    CategorySet
	stages        []stage
	annotator     Annotator
	logger        *logger.Logger
}

// stage rewrites a buffer for one category.
type stage struct {
	category Category
	detect   func(text string, buf *buffer) []Match
}

// buffer carries the state every stage of one text shares.
type buffer struct {
	original string
	entities []Entity
}

// New creates an engine from the privacy configuration.
func New(cfg config.PrivacyConfig, p *pseudonym.Pseudonymizer, annotator Annotator, log *logger.Logger) (*Engine, error) {
	categories, err := ResolveCategoryList(cfg.Categories)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve categories: %w", err)
	}
	return NewEngine(p, categories, annotator, log)
}

// NewEngine creates an engine for the given categories. The annotator may be
// nil, in which case name and location never match.
func NewEngine(p *pseudonym.Pseudonymizer, categories CategorySet, annotator Annotator, log *logger.Logger) (*Engine, error) {
	if p == nil {
		return nil, errors.New("pseudonymizer is required")
	}
	if categories.Len() == 0 {
		return nil, errors.New("no categories enabled")
	}
	if log == nil {
		log = logger.NewNop()
	}

	e := &Engine{
		pseudonymizer: p,
		categories:    categories,
		annotator:     annotator,
		logger:        log,
	}

	for _, c := range categories.List() {
		if c.usesEntities() {
			category := c
			e.stages = append(e.stages, stage{
				category: category,
				detect: func(_ string, buf *buffer) []Match {
					return entityMatches(buf.original, buf.entities, category)
				},
			})
			continue
		}

		d, _ := detectorFor(c)
		e.stages = append(e.stages, stage{
			category: c,
			detect: func(text string, _ *buffer) []Match {
				return d.Detect(text)
			},
		})
	}

	if annotator == nil && categories.needsEntities() {
		log.Warn("No entity annotator configured, name and location will not be detected")
	}

	log.Info("Privacy engine initialized",
		zap.Strings("categories", categories.Strings()),
		zap.Bool("annotator", annotator != nil),
	)

	return e, nil
}

// Categories returns the enabled categories.
func (e *Engine) Categories() CategorySet {
	return e.categories
}

// WithCategories returns an engine sharing the salt and annotator but
// running a different category set. It is called per request, so the
// derived engine is built without the startup log lines.
func (e *Engine) WithCategories(categories CategorySet) (*Engine, error) {
	derived, err := NewEngine(e.pseudonymizer, categories, e.annotator, logger.NewNop())
	if err != nil {
		return nil, err
	}
	derived.logger = e.logger
	return derived, nil
}

// HasAnnotator reports whether an entity annotator is attached.
func (e *Engine) HasAnnotator() bool {
	return e.annotator != nil
}

// ProcessText runs every enabled stage, in the fixed category order, over
// text. Each stage sees the output of the previous one. The annotator runs
// once, on the original text, before any stage.
func (e *Engine) ProcessText(ctx context.Context, text string) (*ProcessResult, error) {
	if text == "" {
		return &ProcessResult{MaskedText: text, Findings: []Finding{}}, nil
	}

	buf := &buffer{original: text}
	if e.annotator != nil && e.categories.needsEntities() {
		entities, err := e.annotator.Annotate(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAnnotation, err)
		}
		buf.entities = entities
	}

	tally := make(Tally)
	current := text
	for _, st := range e.stages {
		var replaced int
		current, replaced = e.applyStage(st, current, buf)
		if replaced > 0 {
			tally[st.category] += replaced
			e.logger.Debug("PII pseudonymized",
				zap.String("category", string(st.category)),
				zap.Int("count", replaced),
			)
		}
	}

	return &ProcessResult{
		MaskedText: current,
		Findings:   tally.Findings(),
	}, nil
}

// applyStage replaces every occurrence of each matched literal in text and
// returns the new text with the number of occurrences replaced. Literal
// replace-all keeps a value consistent across the whole buffer.
func (e *Engine) applyStage(st stage, text string, buf *buffer) (string, int) {
	out := text
	replaced := 0
	for _, m := range st.detect(text, buf) {
		n := strings.Count(out, m.Text)
		if n == 0 {
			continue
		}
		out = strings.ReplaceAll(out, m.Text, e.token(m))
		replaced += n
	}
	return out, replaced
}

// token renders "<category>-<pseudonym>" plus any preserved suffix.
func (e *Engine) token(m Match) string {
	return m.Category.Prefix() + e.pseudonymizer.Pseudonymize(m.Key, m.Category.PseudonymLength()) + m.Suffix
}
