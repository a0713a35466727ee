package pool

import "runtime"

// DefaultSize derives the unit count from host hardware: half the logical
// cores, clamped to [minUnits, maxUnits].
func DefaultSize(minUnits, maxUnits int) int {
	return clampSize(runtime.NumCPU()/2, minUnits, maxUnits)
}

func clampSize(n, minUnits, maxUnits int) int {
	if minUnits < 1 {
		minUnits = 1
	}
	if maxUnits < minUnits {
		maxUnits = minUnits
	}
	if n < minUnits {
		return minUnits
	}
	if n > maxUnits {
		return maxUnits
	}
	return n
}
