package codec_test

import (
	"errors"
	"testing"

	"squish/internal/codec"
	"squish/internal/services"
	"squish/internal/testsupport"
)

func TestStdCodecEncodeJPEG(t *testing.T) {
	std := codec.NewStdCodec()
	source := testsupport.PNGImage(t, 64, 48)

	result, err := std.Encode(source, codec.FormatPNG, codec.FormatJPEG, 80, false)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if result.Mime != "image/jpeg" {
		t.Fatalf("unexpected mime: %q", result.Mime)
	}
	if result.Width != 64 || result.Height != 48 {
		t.Fatalf("unexpected dimensions: %dx%d", result.Width, result.Height)
	}
	if len(result.Data) == 0 {
		t.Fatal("expected encoded bytes")
	}
}

func TestStdCodecQualityOrdering(t *testing.T) {
	std := codec.NewStdCodec()
	source := testsupport.NoisyPNGImage(t, 160, 120)

	low, err := std.Encode(source, codec.FormatPNG, codec.FormatJPEG, 10, false)
	if err != nil {
		t.Fatalf("low-quality encode: %v", err)
	}
	high, err := std.Encode(source, codec.FormatPNG, codec.FormatJPEG, 95, false)
	if err != nil {
		t.Fatalf("high-quality encode: %v", err)
	}
	if len(low.Data) >= len(high.Data) {
		t.Fatalf("expected low quality to be smaller: low=%d high=%d", len(low.Data), len(high.Data))
	}
}

func TestStdCodecDecodeFailureClassified(t *testing.T) {
	std := codec.NewStdCodec()
	_, err := std.Encode([]byte("not an image"), codec.FormatPNG, codec.FormatJPEG, 80, false)
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode classification, got %v", err)
	}
}

func TestStdCodecUnsupportedOutput(t *testing.T) {
	std := codec.NewStdCodec()
	source := testsupport.PNGImage(t, 8, 8)
	_, err := std.Encode(source, codec.FormatPNG, codec.FormatWebP, 80, false)
	if !errors.Is(err, services.ErrUnsupported) {
		t.Fatalf("expected unsupported classification, got %v", err)
	}
}

func TestStdCodecBounds(t *testing.T) {
	std := codec.NewStdCodec()
	source := testsupport.PNGImage(t, 31, 17)
	width, height, err := std.Bounds(source, codec.FormatPNG)
	if err != nil {
		t.Fatalf("Bounds returned error: %v", err)
	}
	if width != 31 || height != 17 {
		t.Fatalf("unexpected bounds: %dx%d", width, height)
	}
}

func TestStdCodecRasterizeScales(t *testing.T) {
	std := codec.NewStdCodec()
	source := testsupport.PNGImage(t, 100, 80)

	data, format, err := std.Rasterize(source, codec.FormatPNG, 50, 40)
	if err != nil {
		t.Fatalf("Rasterize returned error: %v", err)
	}
	if format != codec.FormatPNG {
		t.Fatalf("expected png intermediate, got %q", format)
	}
	width, height, err := std.Bounds(data, format)
	if err != nil {
		t.Fatalf("Bounds on intermediate: %v", err)
	}
	if width != 50 || height != 40 {
		t.Fatalf("unexpected scaled size: %dx%d", width, height)
	}
}

func TestStdCodecRasterizeVectorUnsupported(t *testing.T) {
	std := codec.NewStdCodec()
	_, _, err := std.Rasterize([]byte("<svg/>"), codec.FormatSVG, 0, 0)
	if !errors.Is(err, services.ErrUnsupported) {
		t.Fatalf("expected unsupported classification, got %v", err)
	}
}

func TestStdCodecContainerDecodeUnavailable(t *testing.T) {
	std := codec.NewStdCodec()
	_, _, err := std.DecodeContainer([]byte{0x00}, codec.FormatHEIC)
	if !errors.Is(err, services.ErrConversion) {
		t.Fatalf("expected conversion classification, got %v", err)
	}
}
