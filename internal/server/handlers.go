package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/document"
	"github.com/raaihank/pii-sentinel/internal/ledger"
	"github.com/raaihank/pii-sentinel/internal/metrics"
	"github.com/raaihank/pii-sentinel/internal/privacy"
	"github.com/raaihank/pii-sentinel/internal/websocket"
)

// Response headers of the pseudonymize endpoint.
const (
	ReplacementsHeader = "X-PII-Replacements"
	FindingsHeader     = "X-PII-Findings"
	CategoriesParam    = "categories"
)

// requestPath names request bodies in malformed input errors.
const requestPath = "request"

// errorResponse is the JSON body of every API error.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	engine := s.engine.Load()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       "pii-sentinel",
		"version":    Version,
		"run_id":     s.runID,
		"categories": engine.Categories().Strings(),
		"annotator":  engine.HasAnnotator(),
		"formats":    []document.Format{document.FormatText, document.FormatJSON, document.FormatYAML, document.FormatMsgpack},
		"ledger":     s.ledger != nil,
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handlePseudonymize protects the request body and answers with the
// protected document in the same format.
func (s *Server) handlePseudonymize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	engine := s.engine.Load()
	if requested, ok := r.URL.Query()[CategoriesParam]; ok {
		categories, err := privacy.ResolveCategoryList(requested)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if engine, err = engine.WithCategories(categories); err != nil {
			log.Error("Failed to build request engine", zap.Error(err))
			s.writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	}

	format, err := document.FormatFromContentType(r.Header.Get("Content-Type"))
	if err != nil {
		s.writeError(w, r, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
			return
		}
		log.Warn("Failed to read request body", zap.Error(err))
		s.writeError(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}

	codec, err := document.ForFormat(format)
	if err != nil {
		s.writeError(w, r, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	out, findings, err := s.protect(r, engine, codec, format, body)
	duration := time.Since(start)
	s.recordDocument(requestID, engine, format, findings, duration, err)

	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error("Failed to protect request", zap.String("format", string(format)), zap.Error(err))
		} else {
			log.Warn("Rejected request document", zap.String("format", string(format)), zap.Error(err))
		}
		s.writeError(w, r, status, err.Error())
		return
	}

	log.Debug("Request protected",
		zap.String("format", string(format)),
		zap.Int("replacements", total(findings)),
		zap.Duration("duration", duration))

	w.Header().Set("Content-Type", codec.ContentType())
	w.Header().Set(ReplacementsHeader, strconv.Itoa(total(findings)))
	w.Header().Set(FindingsHeader, formatFindings(findings))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// protect decodes, walks and re-encodes one request document.
func (s *Server) protect(r *http.Request, engine *privacy.Engine, codec document.Codec, format document.Format, body []byte) ([]byte, []privacy.Finding, error) {
	parsed, err := document.Decode(requestPath, format, body)
	if err != nil {
		return nil, nil, err
	}

	res, err := engine.Walk(r.Context(), parsed)
	if err != nil {
		return nil, nil, err
	}

	out, err := codec.Encode(res.Document)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return out, res.Findings, nil
}

// recordDocument updates counters, metrics, the ledger and the event hub
// for one processed request document.
func (s *Server) recordDocument(requestID string, engine *privacy.Engine, format document.Format, findings []privacy.Finding, duration time.Duration, err error) {
	status := metrics.StatusOK
	errMsg := ""
	if err != nil {
		status = metrics.StatusFailed
		errMsg = err.Error()
	}
	replacements := total(findings)

	s.stats.documents.Add(1)
	if err != nil {
		s.stats.failed.Add(1)
	} else {
		s.stats.succeeded.Add(1)
		s.stats.replacements.Add(int64(replacements))
	}

	s.metrics.RecordDocument(metrics.SourceHTTP, status, findings, duration)

	if s.ledger != nil {
		s.ledger.record(&ledger.Document{
			Path:         requestID,
			Format:       string(format),
			Status:       status,
			Replacements: int64(replacements),
			Findings:     ledger.FindingsFrom(findings),
			DurationMs:   duration.Milliseconds(),
			Error:        errMsg,
		})
	}

	if findings == nil {
		findings = []privacy.Finding{}
	}
	s.wsHub.PublishDocument(websocket.DocumentProcessedEvent{
		RequestID:    requestID,
		Source:       metrics.SourceHTTP,
		Format:       string(format),
		Status:       status,
		Categories:   engine.Categories().Strings(),
		Findings:     findings,
		Replacements: replacements,
		ProcessingMS: float64(duration.Microseconds()) / 1000,
		Error:        errMsg,
	})
}

// systemStatus snapshots the run counters for the event hub.
func (s *Server) systemStatus() websocket.SystemStatusEvent {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	engine := s.engine.Load()
	return websocket.SystemStatusEvent{
		Status:          "healthy",
		Uptime:          time.Since(s.startTime).Round(time.Second).String(),
		TotalDocuments:  s.stats.documents.Load(),
		FailedDocuments: s.stats.failed.Load(),
		TotalReplaced:   s.stats.replacements.Load(),
		Categories:      engine.Categories().Strings(),
		Annotator:       engine.HasAnnotator(),
		MemoryUsage:     fmt.Sprintf("%.1f MB", float64(mem.Alloc)/(1<<20)),
	}
}

// errorStatus maps a protection error to an HTTP status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, document.ErrMalformedInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, privacy.ErrAnnotation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: getRequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func total(findings []privacy.Finding) int {
	n := 0
	for _, f := range findings {
		n += f.Count
	}
	return n
}

// formatFindings renders findings as "email=2,ipv4=1".
func formatFindings(findings []privacy.Finding) string {
	parts := make([]string, len(findings))
	for i, f := range findings {
		parts[i] = fmt.Sprintf("%s=%d", f.Category, f.Count)
	}
	return strings.Join(parts, ",")
}
