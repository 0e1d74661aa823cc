package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRows_HeaderCasingAndTrim(t *testing.T) {
	rows := [][]any{
		{" Zip ", "BOOKS"},
		{"37203", float64(10)},
	}

	records := NormalizeRows(rows)
	require.Len(t, records, 1)
	assert.Equal(t, "37203", records[0]["zip"])
	assert.Equal(t, float64(10), records[0]["books"])
}

func TestNormalizeRows_ShortAndLongRows(t *testing.T) {
	rows := [][]any{
		{"zip", "books", "notes"},
		{"37203", float64(5)},                          // missing trailing cell
		{"37206", float64(3), "south side", "ignored"}, // extra cell
	}

	records := NormalizeRows(rows)
	require.Len(t, records, 2)

	// Missing trailing cells become nil, not an error.
	assert.Nil(t, records[0]["notes"])
	assert.Equal(t, "south side", records[1]["notes"])
}

func TestNormalizeRows_Empty(t *testing.T) {
	assert.Nil(t, NormalizeRows(nil))
	assert.Empty(t, NormalizeRows([][]any{{"zip", "books"}}))
}

func TestInferColumn_PriorityOrder(t *testing.T) {
	rec := Record{"postal code": "37203", "zipcode": "37203"}

	// "zipcode" precedes "postal code" in the alias list.
	col, ok := InferColumn(rec, ZipAliases)
	require.True(t, ok)
	assert.Equal(t, "zipcode", col)
}

func TestInferColumn_NoMatch(t *testing.T) {
	_, ok := InferColumn(Record{"city": "Nashville"}, ZipAliases)
	assert.False(t, ok)
}

func TestCoerceCount(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"numeric passthrough", float64(12), 12},
		{"numeric string", "12", 12},
		{"thousands separator", "1,234", 1234},
		{"embedded number", "about 40 books", 40},
		{"negative", "-5", -5},
		{"decimal", "2.5", 2.5},
		{"no number", "lots", 0},
		{"empty string", "", 0},
		{"nil", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceCount(tt.in))
		})
	}
}

func TestCellString_WholeFloat(t *testing.T) {
	// Spreadsheet decoders hand back zips as floats; they must not grow an
	// exponent or a ".0" suffix.
	assert.Equal(t, "37218", CellString(float64(37218)))
	assert.Equal(t, "37218.5", CellString(37218.5))
	assert.Equal(t, "", CellString(nil))
}
