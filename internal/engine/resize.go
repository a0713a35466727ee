package engine

import "math"

// percentageDims scales both axes by percent, rounding to nearest.
func percentageDims(width, height int, percent float64) (int, int) {
	scale := percent / 100
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// fitWithinDims shrinks to fit inside maxWidth x maxHeight, preserving
// aspect ratio. It never upscales: whichever axis overflows its bound by the
// larger ratio becomes the binding constraint and the other axis is derived
// from it.
func fitWithinDims(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	overflowW := 0.0
	if maxWidth > 0 {
		overflowW = float64(width) / float64(maxWidth)
	}
	overflowH := 0.0
	if maxHeight > 0 {
		overflowH = float64(height) / float64(maxHeight)
	}
	binding := math.Max(overflowW, overflowH)
	if binding <= 1 {
		return width, height
	}

	w := int(math.Round(float64(width) / binding))
	h := int(math.Round(float64(height) / binding))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	// Rounding must not push past a bound.
	if maxWidth > 0 && w > maxWidth {
		w = maxWidth
	}
	if maxHeight > 0 && h > maxHeight {
		h = maxHeight
	}
	return w, h
}
