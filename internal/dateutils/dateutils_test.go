package dateutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatementDate(t *testing.T) {
	want := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"iso", "2025-08-01", false},
		{"polish", "01.08.2025", false},
		{"padded", "  2025-08-01 ", false},
		{"slashes", "01/08/2025", true},
		{"invalid day", "2025-02-30", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatementDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, want.Equal(got))
		})
	}
}

func TestFormatISO(t *testing.T) {
	assert.Equal(t, "", FormatISO(time.Time{}))
	assert.Equal(t, "2025-08-01", FormatISO(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)))
}
