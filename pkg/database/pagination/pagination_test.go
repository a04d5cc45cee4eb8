package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSortOrder(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty uses default", "", "created_at DESC"},
		{"single column", "status", "status ASC"},
		{"direction kept", "rate desc", "rate DESC"},
		{"multiple columns", "status, created_at DESC", "status ASC, created_at DESC"},
		{"unknown column dropped", "status, password_hash", "status ASC"},
		{"injection attempt", "name; DROP TABLE orders", "created_at DESC"},
		{"bad direction defaults to ASC", "name sideways", "name ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeSortOrder(tt.input, OrderSortColumns, "created_at DESC"))
		})
	}
}

func TestClampPaginationParams(t *testing.T) {
	limit, offset := ClampPaginationParams(0, -5)
	assert.Equal(t, DefaultLimit, limit)
	assert.Equal(t, DefaultOffset, offset)

	limit, offset = ClampPaginationParams(1000, MaxOffset+1)
	assert.Equal(t, MaxPageSize, limit)
	assert.Equal(t, MaxOffset, offset)

	limit, offset = ClampPaginationParams(10, 20)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 20, offset)
}
