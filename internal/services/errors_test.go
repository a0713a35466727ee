package services_test

import (
	"errors"
	"testing"

	"squish/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	inner := errors.New("boom")
	err := services.Wrap(services.ErrDecode, "engine", "decode input", "bad header", inner)
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode marker, got %v", err)
	}
	if !errors.Is(err, inner) {
		t.Fatalf("expected inner error preserved, got %v", err)
	}
}

func TestWrapWithoutInnerError(t *testing.T) {
	err := services.Wrap(services.ErrUnsupported, "codec", "encode", "no encoder for bmp", nil)
	if !errors.Is(err, services.ErrUnsupported) {
		t.Fatalf("expected unsupported marker, got %v", err)
	}
	want := "unsupported format: codec: encode: no encoder for bmp"
	if err.Error() != want {
		t.Fatalf("unexpected message: got %q want %q", err.Error(), want)
	}
}

func TestWrapNilMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if err == nil {
		t.Fatal("expected non-nil error")
	}
	if err.Error() != "failure: service failure" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
