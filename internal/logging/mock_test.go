package logging

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockLogger_DerivedLoggersShareEntries(t *testing.T) {
	root := NewMockLogger()
	child := root.WithField(FieldBatchID, "b-1").WithError(errors.New("boom"))

	child.Warn("row rejected", F(FieldLine, 7))
	root.Info("done")

	entries := root.GetEntries()
	require.Len(t, entries, 2)

	assert.Equal(t, "WARN", entries[0].Level)
	assert.EqualError(t, entries[0].Error, "boom")
	v, ok := entries[0].FieldValue(FieldBatchID)
	assert.True(t, ok)
	assert.Equal(t, "b-1", v)
	v, ok = entries[0].FieldValue(FieldLine)
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = entries[1].FieldValue(FieldBatchID)
	assert.False(t, ok, "parent must not inherit child fields")
}

func TestMockLogger_Queries(t *testing.T) {
	m := NewMockLogger()
	m.Debug("a")
	m.Error("b")
	m.Fatalf("c %d", 1)

	assert.True(t, m.HasEntry("ERROR", "b"))
	assert.True(t, m.HasEntry("FATAL", "c 1"))
	assert.False(t, m.HasEntry("INFO", "a"))
	assert.Len(t, m.GetEntriesByLevel("DEBUG"), 1)

	m.Clear()
	assert.Empty(t, m.GetEntries())
}

func TestMockLogger_ConcurrentUse(t *testing.T) {
	m := NewMockLogger()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.WithField(FieldCount, i).Info("tick")
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.GetEntriesByLevel("INFO"), 20)
}

func TestMockLogger_ZeroValueUsable(t *testing.T) {
	var m MockLogger
	m.Info("hello")
	assert.True(t, m.HasEntry("INFO", "hello"))
}
