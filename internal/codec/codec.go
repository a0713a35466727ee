package codec

// EncodeResult carries the output of one encode attempt.
type EncodeResult struct {
	Data   []byte
	Mime   string
	Width  int
	Height int
}

// Encoder is the opaque encode capability invoked inside an execution unit.
// Implementations must be safe for concurrent use: the pool runs one call
// per unit but several units run in parallel.
type Encoder interface {
	Encode(data []byte, input, output Format, quality int, lossless bool) (EncodeResult, error)
}

// Rasterizer redraws content to a lossless intermediate raster. A width and
// height of zero keeps the natural size; otherwise the content is scaled to
// the requested dimensions. Used by the resize and vector-to-raster stages.
type Rasterizer interface {
	Bounds(data []byte, format Format) (width, height int, err error)
	Rasterize(data []byte, format Format, width, height int) ([]byte, Format, error)
}

// ContainerDecoder converts a camera-container source into an intermediate
// lossless raster buffer before the raster pipeline begins.
type ContainerDecoder interface {
	DecodeContainer(data []byte, format Format) ([]byte, Format, error)
}

// VectorMinifier is the opaque structural-minification capability. It runs
// synchronously on the orchestrator's own goroutine, no pool involvement.
type VectorMinifier interface {
	Optimize(text string) (string, error)
}
