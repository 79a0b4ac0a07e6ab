// Package logging decouples the pipeline from a concrete logging framework.
// Components receive a Logger through their constructors; the container
// builds one LogrusAdapter from configuration and tests use MockLogger.
package logging

// Logger is the structured logger used throughout the import pipeline.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// WithError returns a derived logger carrying err.
	WithError(err error) Logger

	// WithField returns a derived logger carrying one extra field.
	WithField(key string, value interface{}) Logger

	// WithFields returns a derived logger carrying extra fields.
	WithFields(fields ...Field) Logger

	// Fatal logs and exits the program.
	Fatal(msg string, fields ...Field)

	// Fatalf logs with formatting and exits the program.
	Fatalf(msg string, args ...interface{})
}

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for building a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}
