package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"

	"github.com/raaihank/pii-sentinel/internal/privacy"
)

// ReportRow is one document of a findings report. It holds counts only.
type ReportRow struct {
	Path         string `parquet:"path" json:"path"`
	Format       string `parquet:"format" json:"format"`
	Status       string `parquet:"status" json:"status"`
	Email        int64  `parquet:"email" json:"email"`
	IPv4         int64  `parquet:"ipv4" json:"ipv4"`
	Card         int64  `parquet:"card" json:"card"`
	IPv6         int64  `parquet:"ipv6" json:"ipv6"`
	IBAN         int64  `parquet:"iban" json:"iban"`
	Name         int64  `parquet:"name" json:"name"`
	Location     int64  `parquet:"location" json:"location"`
	Replacements int64  `parquet:"replacements" json:"replacements"`
	DurationMs   int64  `parquet:"duration_ms" json:"duration_ms"`
	Error        string `parquet:"error" json:"error,omitempty"`
}

var reportHeader = []string{
	"path", "format", "status",
	"email", "ipv4", "card", "ipv6", "iban", "name", "location",
	"replacements", "duration_ms", "error",
}

// ReportRows flattens a result into one row per document.
func ReportRows(result *ProcessingResult) []ReportRow {
	rows := make([]ReportRow, 0, len(result.Documents))
	for _, doc := range result.Documents {
		row := ReportRow{
			Path:         doc.Path,
			Format:       string(doc.Format),
			Status:       doc.Status,
			Replacements: int64(doc.Replacements()),
			DurationMs:   doc.Duration.Milliseconds(),
			Error:        doc.Error,
		}
		for _, f := range doc.Findings {
			n := int64(f.Count)
			switch f.Category {
			case privacy.CategoryEmail:
				row.Email += n
			case privacy.CategoryIPv4:
				row.IPv4 += n
			case privacy.CategoryCard:
				row.Card += n
			case privacy.CategoryIPv6:
				row.IPv6 += n
			case privacy.CategoryIBAN:
				row.IBAN += n
			case privacy.CategoryName:
				row.Name += n
			case privacy.CategoryLocation:
				row.Location += n
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// ValidateReportPath checks that the report extension is supported.
func ValidateReportPath(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".csv", ".parquet":
		return nil
	}
	return fmt.Errorf("unsupported report format: %s (must be .json, .csv or .parquet)", path)
}

// WriteReport writes the findings report of a run. The format follows the
// file extension: .json, .csv or .parquet.
func WriteReport(path string, result *ProcessingResult) error {
	if err := ValidateReportPath(path); err != nil {
		return err
	}
	rows := ReportRows(result)

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = writeJSONReport(path, result)
	case ".csv":
		err = writeCSVReport(path, rows)
	case ".parquet":
		err = writeParquetReport(path, rows)
	}
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func writeJSONReport(path string, result *ProcessingResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'), 0o644)
}

func writeCSVReport(path string, rows []ReportRow) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(reportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Path, row.Format, row.Status,
			itoa(row.Email), itoa(row.IPv4), itoa(row.Card), itoa(row.IPv6),
			itoa(row.IBAN), itoa(row.Name), itoa(row.Location),
			itoa(row.Replacements), itoa(row.DurationMs), row.Error,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return writeFileAtomic(path, []byte(sb.String()), 0o644)
}

func writeParquetReport(path string, rows []ReportRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[ReportRow](file)
	if _, err := writer.Write(rows); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return file.Close()
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
