package merchant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  titleParts
	}{
		{
			name:  "store code with register",
			title: "ZABKA Z5727 K.1 WARSZAWA",
			want:  titleParts{name: "ZABKA", storeID: "Z5727 K.1", location: "Warszawa", confidence: confidenceWithStore},
		},
		{
			name:  "numeric store code",
			title: "ŻABKA 1234 WARSZAWA",
			want:  titleParts{name: "ŻABKA", storeID: "1234", location: "Warszawa", confidence: confidenceWithStore},
		},
		{
			name:  "location after slash",
			title: "DECATHLON WARSZAWA /WARSZAWA",
			want:  titleParts{name: "DECATHLON", location: "Warszawa", confidence: confidenceWithLocation},
		},
		{
			name:  "slash location wins over trailing words",
			title: "ROSSMANN 128 ARKADIA /WARSZAWA PL",
			want:  titleParts{name: "ROSSMANN", storeID: "128", location: "Warszawa", confidence: confidenceWithStore},
		},
		{
			name:  "noise tokens are stripped",
			title: "KARTA NETFLIX.COM 2025-03-14",
			want:  titleParts{name: "NETFLIX.COM", confidence: confidenceBare},
		},
		{
			name:  "multi-word location",
			title: "MCDONALDS 20154 ZIELONA GORA",
			want:  titleParts{name: "MCDONALDS", storeID: "20154", location: "Zielona Gora", confidence: confidenceWithStore},
		},
		{
			name:  "nothing but digits",
			title: "12345",
			want:  titleParts{name: "12345", confidence: confidenceFallback},
		},
		{
			name:  "empty",
			title: "   ",
			want:  titleParts{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseTitle(tt.title))
		})
	}
}

func TestParseTitle_FirstTokenIsNeverAStoreCode(t *testing.T) {
	got := parseTitle("7ELEVEN 0042 KRAKOW")
	assert.Equal(t, "7ELEVEN", got.name)
	assert.Equal(t, "0042", got.storeID)
}
