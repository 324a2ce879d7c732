package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

// LogEncoder handles encoding of log entries
type LogEncoder interface {
	Encode(entry *LogEntry) ([]byte, error)
}

// JSONEncoder encodes log entries as JSON
type JSONEncoder struct {
	pretty bool
}

// NewJSONEncoder creates a new JSON encoder
func NewJSONEncoder(pretty bool) *JSONEncoder {
	return &JSONEncoder{pretty: pretty}
}

// Encode encodes a log entry to JSON
func (e *JSONEncoder) Encode(entry *LogEntry) ([]byte, error) {
	if e.pretty {
		return json.MarshalIndent(entry, "", "  ")
	}
	return json.Marshal(entry)
}

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level   LogLevel
	Output  io.Writer
	Service string
	Version string
	Encoder LogEncoder
}

// Logger provides structured logging capabilities
type Logger struct {
	mu      *sync.Mutex
	level   LogLevel
	output  io.Writer
	fields  map[string]interface{}
	service string
	version string
	encoder LogEncoder
}

// NewLogger creates a new logger instance
func NewLogger(config LoggerConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}
	if config.Encoder == nil {
		config.Encoder = NewJSONEncoder(false)
	}
	if config.Service == "" {
		config.Service = "hcahps"
	}

	return &Logger{
		mu:      &sync.Mutex{},
		level:   config.Level,
		output:  config.Output,
		fields:  make(map[string]interface{}),
		service: config.Service,
		version: config.Version,
		encoder: config.Encoder,
	}
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a new logger with additional fields. The child shares
// the parent's output and lock.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	child := *l
	child.fields = newFields
	return &child
}

func (l *Logger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	entry := &LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     levelNames[level],
		Message:   msg,
		Service:   l.service,
		Version:   l.version,
	}

	if len(l.fields)+len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(l.fields)+len(fields))
		for k, v := range l.fields {
			entry.Fields[k] = v
		}
		for k, v := range fields {
			entry.Fields[k] = v
		}
	}

	if _, file, line, ok := runtime.Caller(2); ok {
		entry.Caller = fmt.Sprintf("%s:%d", trimPath(file), line)
	}

	data, err := l.encoder.Encode(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode log entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.output.Write(append(data, '\n'))
}

// trimPath keeps the package directory and file name
func trimPath(file string) string {
	idx := strings.LastIndexByte(file, '/')
	if idx == -1 {
		return file
	}
	idx = strings.LastIndexByte(file[:idx], '/')
	if idx == -1 {
		return file
	}
	return file[idx+1:]
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.log(DebugLevel, msg, nil)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(format, args...), nil)
}

// DebugWithFields logs a debug message with fields
func (l *Logger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log(DebugLevel, msg, fields)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.log(InfoLevel, msg, nil)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(format, args...), nil)
}

// InfoWithFields logs an info message with fields
func (l *Logger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log(InfoLevel, msg, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.log(WarnLevel, msg, nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(format, args...), nil)
}

// WarnWithFields logs a warning message with fields
func (l *Logger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log(WarnLevel, msg, fields)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.log(ErrorLevel, msg, nil)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...), nil)
}

// ErrorWithFields logs an error message with fields
func (l *Logger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log(ErrorLevel, msg, fields)
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// LogLevelFromString converts a string to LogLevel
func LogLevelFromString(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

var defaultLogger = NewLogger(LoggerConfig{Level: InfoLevel})

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the global default logger
func GetDefaultLogger() *Logger {
	return defaultLogger
}

// Discard returns a logger that writes nothing. Used by tests.
func Discard() *Logger {
	return NewLogger(LoggerConfig{Level: ErrorLevel + 1, Output: io.Discard})
}
