package batch

import (
	"time"

	"github.com/raaihank/pii-sentinel/internal/document"
	"github.com/raaihank/pii-sentinel/internal/privacy"
)

// Config contains batch runner configuration
type Config struct {
	Workers int    // 4
	Suffix  string // ".protected"
}

// DocumentResult is the outcome of one input file.
type DocumentResult struct {
	Path       string            `json:"path"`
	OutputPath string            `json:"output_path,omitempty"`
	Format     document.Format   `json:"format"`
	Status     string            `json:"status"`
	Findings   []privacy.Finding `json:"findings"`
	Duration   time.Duration     `json:"duration"`
	Error      string            `json:"error,omitempty"`

	err error
}

// Err returns the processing error of a failed document.
func (d *DocumentResult) Err() error {
	return d.err
}

// Replacements returns the total number of occurrences replaced.
func (d *DocumentResult) Replacements() int {
	total := 0
	for _, f := range d.Findings {
		total += f.Count
	}
	return total
}

// ProcessingResult represents the result of a batch run
type ProcessingResult struct {
	RunID           string            `json:"run_id"`
	TotalDocuments  int64             `json:"total_documents"`
	ProcessedOK     int64             `json:"processed_ok"`
	ProcessedFailed int64             `json:"processed_failed"`
	Skipped         int64             `json:"skipped"`
	Replacements    int64             `json:"replacements"`
	Categories      []privacy.Finding `json:"categories"`
	Documents       []*DocumentResult `json:"documents"`
	Duration        time.Duration     `json:"duration"`
	Errors          []string          `json:"errors,omitempty"`

	tally privacy.Tally
}

func (r *ProcessingResult) add(doc *DocumentResult) {
	r.TotalDocuments++
	r.Documents = append(r.Documents, doc)

	switch doc.Status {
	case statusOK:
		r.ProcessedOK++
		r.tally.Add(doc.Findings)
		r.Replacements += int64(doc.Replacements())
	case statusSkipped:
		r.Skipped++
	default:
		r.ProcessedFailed++
		r.Errors = append(r.Errors, doc.Error)
	}
}
