package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeZip(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"canonical passthrough", "37218", "37218"},
		{"trailing point zero", "37218.0", "37218"},
		{"trailing point double zero", "37218.00", "37218"},
		{"numeric cell", float64(37218), "37218"},
		{"surrounding whitespace", " 37218 ", "37218"},
		{"zip plus four", "37218-1234", "37218"},
		{"short zip left-padded", "123", "00123"},
		{"leading zero stripped by spreadsheet", float64(2134), "02134"},
		{"embedded junk", "zip: 37203", "37203"},
		{"empty string", "", ""},
		{"nil cell", nil, ""},
		{"no digits at all", "n/a", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeZip(tt.in))
		})
	}
}

func TestNormalizeZip_Idempotent(t *testing.T) {
	for _, in := range []any{"37218.0", float64(37218), " 37218 ", "123", "99999"} {
		once := NormalizeZip(in)
		assert.Equal(t, once, NormalizeZip(once), "normalizing %v twice changed the value", in)
	}
}
