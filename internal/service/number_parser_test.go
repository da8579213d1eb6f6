package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLocalizedNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
	}{
		{"float passthrough", 3.5, 3.5},
		{"int passthrough", 42, 42},
		{"float32", float32(0.5), 0.5},
		{"json number", json.Number("1,5"), 1.5},
		{"dot decimal", "144.01", 144.01},
		{"comma decimal", "-0,15", -0.15},
		{"only first comma replaced", "1,2,3", 0},
		{"trailing separator", "3.", 3},
		{"leading separator", ",5", 0.5},
		{"empty", "", 0},
		{"lone minus", "-", 0},
		{"garbage", "abc", 0},
		{"surrounding spaces", " 12 ", 12},
		{"nan text", "NaN", 0},
		{"infinite text", "Inf", 0},
		{"nil", nil, 0},
		{"unsupported type", []string{"1"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLocalizedNumber(tt.input))
		})
	}
}
