package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the zap logger shared by every component.
type Logger struct {
	*zap.Logger
}

// Config selects level, encoding and an optional log file.
type Config struct {
	Level  string
	Format string // json or console
	File   *FileConfig
}

// FileConfig enables a JSON copy of the log stream in a file.
type FileConfig struct {
	Enabled bool
	Path    string
}

// redactedHeaders are matched as substrings of the lower-cased header name.
var redactedHeaders = []string{
	"authorization",
	"cookie",
	"api-key",
	"token",
	"bearer",
	"secret",
}

// New builds a logger writing to stderr and, when configured, to a file.
func New(config Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", config.Level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "console":
		consoleConfig := zap.NewDevelopmentEncoderConfig()
		consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(consoleConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	// stdout is left to command output
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level),
	}

	if config.File != nil && config.File.Enabled {
		file, err := os.OpenFile(config.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: zl}, nil
}

// NewNop discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String(key, value))}
}

// WithRequestID tags entries with an HTTP request id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with("request_id", requestID)
}

// WithRunID tags entries with a protection run id.
func (l *Logger) WithRunID(runID string) *Logger {
	return l.with("run_id", runID)
}

// WithComponent tags entries with the emitting package.
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// LogRequest logs request metadata at debug level. Credential headers are
// redacted and bodies are never logged.
func (l *Logger) LogRequest(method, path string, headers map[string][]string, contentLength int64) {
	safe := make(map[string]string, len(headers))
	for name, values := range headers {
		switch {
		case isSensitiveHeader(name):
			safe[name] = "[REDACTED]"
		case len(values) > 0:
			safe[name] = values[0]
		}
	}

	l.Debug("HTTP request started",
		zap.String("method", method),
		zap.String("path", path),
		zap.Any("headers", safe),
		zap.Int64("content_length", contentLength),
	)
}

func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range redactedHeaders {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
