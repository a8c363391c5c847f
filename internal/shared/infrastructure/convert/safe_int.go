// Package convert narrows configuration integers into the fixed-width
// types third-party clients expect.
package convert

import (
	"fmt"
	"math"
)

// IntToUint32 converts v, failing when it does not fit.
func IntToUint32(v int) (uint32, error) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to uint32", v)
	}
	return uint32(v), nil
}

// IntToUint32Clamped converts v, clamping negatives to 0 and large values
// to math.MaxUint32. Breaker thresholds from config go through it.
func IntToUint32Clamped(v int) uint32 {
	if v < 0 {
		return 0
	}
	if uint64(v) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// IntToInt32Clamped converts v, clamping to the int32 range. Pool sizes go
// through it.
func IntToInt32Clamped(v int) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}
