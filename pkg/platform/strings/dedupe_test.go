package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{
			name:     "broker list with spaces",
			input:    []string{"kafka-1:9092", " kafka-2:9092 "},
			expected: []string{"kafka-1:9092", "kafka-2:9092"},
		},
		{
			name:     "repeated status keeps first position",
			input:    []string{"ACCEPTED", "DENIED", "ACCEPTED"},
			expected: []string{"ACCEPTED", "DENIED"},
		},
		{
			name:     "blanks from trailing separators",
			input:    []string{"ACCEPTED", "", "  "},
			expected: []string{"ACCEPTED"},
		},
		{
			name:     "case is preserved",
			input:    []string{"accepted", "ACCEPTED"},
			expected: []string{"accepted", "ACCEPTED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
