package privacy

// Finding counts the occurrences replaced for one category
type Finding struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// ProcessResult contains the result of processing a text buffer
type ProcessResult struct {
	MaskedText string    `json:"maskedText"`
	Findings   []Finding `json:"findings"`
}

// WalkResult contains the result of processing a nested document
type WalkResult struct {
	Document any       `json:"document"`
	Findings []Finding `json:"findings"`
}

// Tally accumulates replacement counts per category.
type Tally map[Category]int

// Add merges findings into the tally.
func (t Tally) Add(findings []Finding) {
	for _, f := range findings {
		t[f.Category] += f.Count
	}
}

// Total returns the sum of all counts.
func (t Tally) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// Findings returns non-zero counts in processing order.
func (t Tally) Findings() []Finding {
	findings := make([]Finding, 0, len(t))
	for _, c := range processingOrder {
		if n := t[c]; n > 0 {
			findings = append(findings, Finding{Category: c, Count: n})
		}
	}
	return findings
}
