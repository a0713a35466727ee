package preflight

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"squish/internal/codec"
	"squish/internal/config"
)

// Result reports the outcome of one environment check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Run evaluates the environment a compression run depends on: writable
// output and store directories, free space, and a working encode capability.
// All checks run even when an early one fails, so the report is complete.
func Run(cfg *config.Config, encoder codec.Encoder) []Result {
	results := []Result{
		checkWritableDir("output directory", cfg.Paths.OutputDir),
		checkWritableDir("store directory", cfg.Paths.StoreDir),
		checkFreeSpace(cfg.Paths.OutputDir, cfg.Preflight.MinFreeSpaceMiB),
		checkEncoder(encoder),
	}
	return results
}

// AllPassed reports whether every check succeeded.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}

func checkWritableDir(name, dir string) Result {
	result := Result{Name: name}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Detail = fmt.Sprintf("cannot create %q: %v", dir, err)
		return result
	}
	probe := filepath.Join(dir, ".squish-preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		result.Detail = fmt.Sprintf("cannot write to %q: %v", dir, err)
		return result
	}
	_ = os.Remove(probe)
	result.Passed = true
	return result
}

func checkFreeSpace(dir string, minMiB int) Result {
	result := Result{Name: "free space"}
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		result.Detail = fmt.Sprintf("statfs %q: %v", dir, err)
		return result
	}
	availableMiB := stat.Bavail * uint64(stat.Bsize) / (1024 * 1024)
	if availableMiB < uint64(minMiB) {
		result.Detail = fmt.Sprintf("%d MiB available in %q, need %d MiB", availableMiB, dir, minMiB)
		return result
	}
	result.Passed = true
	result.Detail = fmt.Sprintf("%d MiB available", availableMiB)
	return result
}

// checkEncoder round-trips a tiny generated image through the encode
// capability, so a broken codec surfaces before any queued item does.
func checkEncoder(encoder codec.Encoder) Result {
	result := Result{Name: "encoder self-test"}
	if encoder == nil {
		result.Detail = "no encode capability configured"
		return result
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		result.Detail = fmt.Sprintf("build probe image: %v", err)
		return result
	}

	out, err := encoder.Encode(buf.Bytes(), codec.FormatPNG, codec.FormatJPEG, 80, false)
	if err != nil {
		result.Detail = fmt.Sprintf("probe encode failed: %v", err)
		return result
	}
	if len(out.Data) == 0 {
		result.Detail = "probe encode produced no output"
		return result
	}
	result.Passed = true
	return result
}
