package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeGenerator_Length(t *testing.T) {
	for _, length := range []int{0, 5, 13} {
		_, err := NewCodeGenerator(length)
		assert.Error(t, err, "length %d", length)
	}

	g, err := NewCodeGenerator(6)
	require.NoError(t, err)
	assert.Equal(t, 6, g.Length())
}

func TestCodeGenerator_Next(t *testing.T) {
	g, err := NewCodeGenerator(DefaultCodeLength)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		code, err := g.Next()
		require.NoError(t, err)
		assert.Len(t, code, DefaultCodeLength)
		assert.True(t, g.Valid(code), code)
	}
}

func TestCodeGenerator_Valid(t *testing.T) {
	g, err := NewCodeGenerator(8)
	require.NoError(t, err)

	tests := []struct {
		code string
		want bool
	}{
		{"01234567", true},
		{"00000000", true},
		{"1234567", false},
		{"123456789", false},
		{"1234a678", false},
		{"", false},
		{"١٢٣٤٥٦٧٨", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.Valid(tt.code), tt.code)
	}
}
