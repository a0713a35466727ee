package codec

import "strings"

// Kind partitions formats into the pipeline families the engine dispatches on.
type Kind string

const (
	KindRaster    Kind = "raster"
	KindVector    Kind = "vector"
	KindContainer Kind = "container"
	KindUnknown   Kind = "unknown"
)

// Format is a declared content format tag.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
	FormatSVG  Format = "svg"
	// FormatHEIC is the camera container format; its payload must be decoded
	// to an intermediate lossless raster before raster pipelines apply.
	FormatHEIC Format = "heic"
)

var mimeByFormat = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatWebP: "image/webp",
	FormatSVG:  "image/svg+xml",
	FormatHEIC: "image/heic",
}

var formatByAlias = map[string]Format{
	"jpeg": FormatJPEG,
	"jpg":  FormatJPEG,
	"png":  FormatPNG,
	"gif":  FormatGIF,
	"webp": FormatWebP,
	"svg":  FormatSVG,
	"heic": FormatHEIC,
	"heif": FormatHEIC,
}

// ParseFormat converts a user supplied format tag or file extension into a
// known Format.
func ParseFormat(value string) (Format, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.TrimPrefix(normalized, ".")
	format, ok := formatByAlias[normalized]
	return format, ok
}

// KindOf reports the pipeline family a format belongs to.
func KindOf(format Format) Kind {
	switch format {
	case FormatJPEG, FormatPNG, FormatGIF, FormatWebP:
		return KindRaster
	case FormatSVG:
		return KindVector
	case FormatHEIC:
		return KindContainer
	default:
		return KindUnknown
	}
}

// MimeTag returns the MIME type for a format, or an empty string when the
// format is unknown.
func MimeTag(format Format) string {
	return mimeByFormat[format]
}

// Extension returns the canonical file extension for a format, without dot.
func Extension(format Format) string {
	if format == FormatJPEG {
		return "jpg"
	}
	return string(format)
}
