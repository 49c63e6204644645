// Package core defines the shared types and interfaces of the grid engine
package core

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// NopLogger discards everything. Used when a caller does not inject a logger.
type NopLogger struct{}

func (NopLogger) Debug(msg string, fields ...interface{})          {}
func (NopLogger) Info(msg string, fields ...interface{})           {}
func (NopLogger) Warn(msg string, fields ...interface{})           {}
func (NopLogger) Error(msg string, fields ...interface{})          {}
func (NopLogger) Fatal(msg string, fields ...interface{})          {}
func (l NopLogger) WithField(key string, value interface{}) ILogger { return l }
func (l NopLogger) WithFields(fields map[string]interface{}) ILogger {
	return l
}
