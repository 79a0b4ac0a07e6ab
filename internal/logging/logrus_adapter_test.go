package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedAdapter(level logrus.Level) (Logger, *bytes.Buffer) {
	l := logrus.New()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return NewLogrusAdapterFromLogger(l), &buf
}

func TestNewLogrusAdapter(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		format      string
		expectLevel logrus.Level
		expectJSON  bool
	}{
		{"debug text", "debug", "text", logrus.DebugLevel, false},
		{"info json", "info", "json", logrus.InfoLevel, true},
		{"upper case level", "WARN", "text", logrus.WarnLevel, false},
		{"invalid level defaults to info", "loud", "text", logrus.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogrusAdapter(tt.level, tt.format)
			adapter, ok := logger.(*LogrusAdapter)
			require.True(t, ok)
			assert.Equal(t, tt.expectLevel, adapter.Level())

			_, isJSON := adapter.logger.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.expectJSON, isJSON)
		})
	}
}

func TestNewLogrusAdapterFromLogger_Nil(t *testing.T) {
	adapter, ok := NewLogrusAdapterFromLogger(nil).(*LogrusAdapter)
	require.True(t, ok)
	assert.NotNil(t, adapter.logger)
}

func TestLogrusAdapter_FieldsAndErrors(t *testing.T) {
	logger, buf := newBufferedAdapter(logrus.DebugLevel)

	logger.
		WithField(FieldBatchID, "b-1").
		WithFields(F(FieldImported, 3), F(FieldDuplicates, 1)).
		WithError(errors.New("disk full")).
		Error("batch failed", F(FieldOwner, "alice"))

	out := buf.String()
	assert.Contains(t, out, "batch failed")
	assert.Contains(t, out, "batch_id=b-1")
	assert.Contains(t, out, "imported=3")
	assert.Contains(t, out, "duplicates=1")
	assert.Contains(t, out, "owner=alice")
	assert.Contains(t, out, "disk full")
}

func TestLogrusAdapter_LevelFiltering(t *testing.T) {
	logger, buf := newBufferedAdapter(logrus.WarnLevel)

	logger.Debug("row skipped as duplicate")
	logger.Info("batch completed")
	logger.Warn("row rejected", F(FieldLine, 42))

	out := buf.String()
	assert.NotContains(t, out, "row skipped as duplicate")
	assert.NotContains(t, out, "batch completed")
	assert.Contains(t, out, "row rejected")
	assert.Contains(t, out, "line=42")
}

func TestConvertFields(t *testing.T) {
	fields := convertFields([]Field{F("a", 1), F("b", "x"), F("a", 2)})
	assert.Len(t, fields, 2)
	assert.Equal(t, 2, fields["a"])
	assert.Equal(t, "x", fields["b"])
}

func TestLogrusAdapter_ImplementsInterface(t *testing.T) {
	var _ Logger = (*LogrusAdapter)(nil)
	var _ Logger = (*MockLogger)(nil)
}
