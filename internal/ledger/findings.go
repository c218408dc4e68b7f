package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/raaihank/pii-sentinel/internal/privacy"
)

// Findings maps a category name to its replacement count and is stored as
// JSONB.
type Findings map[string]int

// FindingsFrom converts engine findings.
func FindingsFrom(findings []privacy.Finding) Findings {
	out := make(Findings, len(findings))
	for _, f := range findings {
		out[string(f.Category)] += f.Count
	}
	return out
}

// Value implements driver.Valuer.
func (f Findings) Value() (driver.Value, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner.
func (f *Findings) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*f = Findings{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Findings", src)
	}
	out := Findings{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode findings: %w", err)
	}
	*f = out
	return nil
}
