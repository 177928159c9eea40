package masto

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// HCLogger adapts an hclog.Logger to Logger.
type HCLogger struct {
	logger hclog.Logger
}

// NewHCLogger wraps an existing hclog logger.
func NewHCLogger(logger hclog.Logger) *HCLogger {
	return &HCLogger{logger: logger}
}

// DefaultLogger returns an hclog-backed logger writing to stderr.
func DefaultLogger(level string) *HCLogger {
	return NewHCLogger(hclog.New(&hclog.LoggerOptions{
		Name:   "masto",
		Level:  hclog.LevelFromString(level),
		Output: os.Stderr,
	}))
}

// NopLogger returns a logger that discards everything.
func NopLogger() *HCLogger {
	return NewHCLogger(hclog.NewNullLogger())
}

// Named returns a sub-logger.
func (l *HCLogger) Named(name string) *HCLogger {
	return &HCLogger{logger: l.logger.Named(name)}
}

func (l *HCLogger) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug(msg, flatten(fields)...)
}

func (l *HCLogger) Info(msg string, fields map[string]interface{}) {
	l.logger.Info(msg, flatten(fields)...)
}

func (l *HCLogger) Warn(msg string, fields map[string]interface{}) {
	l.logger.Warn(msg, flatten(fields)...)
}

func (l *HCLogger) Error(msg string, fields map[string]interface{}) {
	l.logger.Error(msg, flatten(fields)...)
}

func flatten(fields map[string]interface{}) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	return args
}

// LoggerOrNop returns l, or a discarding logger when l is nil.
func LoggerOrNop(l Logger) Logger {
	if l == nil {
		return NopLogger()
	}

	return l
}
