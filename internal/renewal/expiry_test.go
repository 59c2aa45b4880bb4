// File: internal/renewal/expiry_test.go
package renewal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkrsz/renewctl/internal/renewal"
)

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{
			name: "plain row text",
			text: "利用期限 2024年6月10日",
			want: time.Date(2024, time.June, 10, 0, 0, 0, 0, renewal.JST),
		},
		{
			name: "zero padded components",
			text: "利用期限 2025年12月01日",
			want: time.Date(2025, time.December, 1, 0, 0, 0, 0, renewal.JST),
		},
		{
			name: "date embedded in longer text",
			text: "ご利用中のサーバーの利用期限は2024年6月9日です",
			want: time.Date(2024, time.June, 9, 0, 0, 0, 0, renewal.JST),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renewal.ParseExpiry(tt.text)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestParseExpiry_Failures(t *testing.T) {
	for _, text := range []string{
		"",
		"利用期限 unknown",
		"2024-06-10",
		"2024年13月40日", // matches the pattern but is not a real date
	} {
		t.Run(text, func(t *testing.T) {
			_, err := renewal.ParseExpiry(text)
			assert.Error(t, err)
		})
	}
}

func TestExpiryRecord_Known(t *testing.T) {
	assert.False(t, renewal.ExpiryRecord{}.Known())
	assert.True(t, renewal.ExpiryRecord{Date: time.Now(), Source: "detail-page"}.Known())
}
