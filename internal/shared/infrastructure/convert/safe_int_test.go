package convert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToUint32(t *testing.T) {
	t.Run("converts in-range value", func(t *testing.T) {
		result, err := IntToUint32(5)
		require.NoError(t, err)
		assert.Equal(t, uint32(5), result)
	})

	t.Run("converts max uint32", func(t *testing.T) {
		result, err := IntToUint32(math.MaxUint32)
		require.NoError(t, err)
		assert.Equal(t, uint32(math.MaxUint32), result)
	})

	t.Run("rejects negative", func(t *testing.T) {
		_, err := IntToUint32(-1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overflow")
	})

	t.Run("rejects overflow", func(t *testing.T) {
		_, err := IntToUint32(math.MaxUint32 + 1)
		assert.Error(t, err)
	})
}

func TestIntToUint32Clamped(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want uint32
	}{
		{"zero", 0, 0},
		{"breaker threshold", 5, 5},
		{"negative clamps to zero", -3, 0},
		{"overflow clamps to max", math.MaxUint32 + 10, math.MaxUint32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IntToUint32Clamped(tt.in))
		})
	}
}

func TestIntToInt32Clamped(t *testing.T) {
	assert.Equal(t, int32(10), IntToInt32Clamped(10))
	assert.Equal(t, int32(math.MaxInt32), IntToInt32Clamped(math.MaxInt32+1))
	assert.Equal(t, int32(math.MinInt32), IntToInt32Clamped(math.MinInt32-1))
}
