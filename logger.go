package settlement

import "log"

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// DefaultLogger implements Logger using standard log package
type DefaultLogger struct{}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, args ...any) {
	log.Printf("[INFO] "+msg, args...)
}

// Warn logs a warning; degraded settlements are reported at this level
func (l *DefaultLogger) Warn(msg string, args ...any) {
	log.Printf("[WARN] "+msg, args...)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, args ...any) {
	log.Printf("[ERROR] "+msg, args...)
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, args ...any) {
	log.Printf("[DEBUG] "+msg, args...)
}

// SilentLogger implements Logger interface but does not output any logs
type SilentLogger struct{}

// NewSilentLogger creates a new silent logger instance
func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (l *SilentLogger) Info(msg string, args ...any)  {}
func (l *SilentLogger) Warn(msg string, args ...any)  {}
func (l *SilentLogger) Error(msg string, args ...any) {}
func (l *SilentLogger) Debug(msg string, args ...any) {}
