package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"squish/internal/services"
)

// StdCodec implements the Encoder, Rasterizer, and ContainerDecoder
// capabilities on the Go standard image codecs. WebP is decode-only and HEIC
// payload extraction is not available, so those paths return classified
// errors instead of a result.
type StdCodec struct {
	// GIFColors caps the palette used when quality maps to a GIF palette
	// size. Zero means the full 256 colors.
	GIFColors int
}

// NewStdCodec returns the standard-library codec adapter.
func NewStdCodec() *StdCodec {
	return &StdCodec{}
}

// Encode decodes the input buffer and re-encodes it in the output format.
func (c *StdCodec) Encode(data []byte, input, output Format, quality int, lossless bool) (EncodeResult, error) {
	img, err := c.decode(data, input)
	if err != nil {
		return EncodeResult{}, err
	}

	var buf bytes.Buffer
	switch output {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
			return EncodeResult{}, services.Wrap(services.ErrDecode, "codec", "encode jpeg", "", err)
		}
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return EncodeResult{}, services.Wrap(services.ErrDecode, "codec", "encode png", "", err)
		}
	case FormatGIF:
		colors := c.GIFColors
		if colors <= 0 || colors > 256 {
			colors = 256
		}
		if !lossless {
			colors = paletteForQuality(clampQuality(quality), colors)
		}
		if err := gif.Encode(&buf, img, &gif.Options{NumColors: colors}); err != nil {
			return EncodeResult{}, services.Wrap(services.ErrDecode, "codec", "encode gif", "", err)
		}
	default:
		return EncodeResult{}, services.Wrap(services.ErrUnsupported, "codec", "encode",
			fmt.Sprintf("no encoder for %q", output), nil)
	}

	bounds := img.Bounds()
	return EncodeResult{
		Data:   buf.Bytes(),
		Mime:   MimeTag(output),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// Bounds reports the pixel dimensions of a raster buffer.
func (c *StdCodec) Bounds(data []byte, format Format) (int, int, error) {
	cfg, err := c.decodeConfig(data, format)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// Rasterize redraws the buffer as a lossless PNG, scaling when a non-zero
// target size is given. Vector inputs are not supported by this adapter.
func (c *StdCodec) Rasterize(data []byte, format Format, width, height int) ([]byte, Format, error) {
	if KindOf(format) == KindVector {
		return nil, "", services.Wrap(services.ErrUnsupported, "codec", "rasterize",
			"vector rasterization requires an external renderer", nil)
	}
	img, err := c.decode(data, format)
	if err != nil {
		return nil, "", err
	}

	if width > 0 && height > 0 {
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)
		img = scaled
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, "", services.Wrap(services.ErrDecode, "codec", "rasterize", "encode intermediate png", err)
	}
	return buf.Bytes(), FormatPNG, nil
}

// DecodeContainer is unavailable on the standard-library adapter; HEIC
// payloads need an external decoder.
func (c *StdCodec) DecodeContainer(data []byte, format Format) ([]byte, Format, error) {
	return nil, "", services.Wrap(services.ErrConversion, "codec", "decode container",
		fmt.Sprintf("no decoder for container format %q", format), nil)
}

func (c *StdCodec) decode(data []byte, format Format) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	reader := bytes.NewReader(data)
	switch format {
	case FormatJPEG:
		img, err = jpeg.Decode(reader)
	case FormatPNG:
		img, err = png.Decode(reader)
	case FormatGIF:
		img, err = gif.Decode(reader)
	case FormatWebP:
		img, err = webp.Decode(reader)
	default:
		img, _, err = image.Decode(reader)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, "codec", "decode",
			fmt.Sprintf("decode %s input", format), err)
	}
	return img, nil
}

func (c *StdCodec) decodeConfig(data []byte, format Format) (image.Config, error) {
	reader := bytes.NewReader(data)
	var (
		cfg image.Config
		err error
	)
	switch format {
	case FormatWebP:
		cfg, err = webp.DecodeConfig(reader)
	default:
		cfg, _, err = image.DecodeConfig(reader)
	}
	if err != nil {
		return image.Config{}, services.Wrap(services.ErrDecode, "codec", "decode config",
			fmt.Sprintf("read %s dimensions", format), err)
	}
	return cfg, nil
}

func clampQuality(quality int) int {
	if quality < 1 {
		return 1
	}
	if quality > 100 {
		return 100
	}
	return quality
}

// paletteForQuality maps a 1-100 quality to a GIF palette size between 8 and
// the configured ceiling.
func paletteForQuality(quality, ceiling int) int {
	colors := quality * ceiling / 100
	if colors < 8 {
		colors = 8
	}
	if colors > ceiling {
		colors = ceiling
	}
	return colors
}
