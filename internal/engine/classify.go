package engine

import (
	"context"
	"errors"

	"squish/internal/services"
)

// Failure classifications surfaced on items. Exactly one is attached per
// failed item.
const (
	ClassDecode      = "decode-error"
	ClassMemory      = "out-of-memory"
	ClassUnsupported = "unsupported-format"
	ClassNetwork     = "network-error"
	ClassCancelled   = "cancelled"
	ClassWorkerCrash = "unexpected-worker-failure"
	ClassConversion  = "conversion-failed"
	ClassOther       = "processing-error"
)

// maxErrorMessageLen bounds the pass-through message attached for
// unclassified failures.
const maxErrorMessageLen = 200

// Classify maps an error to the single failure classification recorded on
// the item, plus the message to surface.
func Classify(err error) (kind, message string) {
	if err == nil {
		return ClassOther, "unknown failure"
	}
	switch {
	case errors.Is(err, services.ErrCancelled), errors.Is(err, context.Canceled):
		return ClassCancelled, "cancelled"
	case errors.Is(err, services.ErrDecode):
		return ClassDecode, err.Error()
	case errors.Is(err, services.ErrMemory):
		return ClassMemory, err.Error()
	case errors.Is(err, services.ErrUnsupported):
		return ClassUnsupported, err.Error()
	case errors.Is(err, services.ErrNetwork):
		return ClassNetwork, err.Error()
	case errors.Is(err, services.ErrWorkerCrash):
		return ClassWorkerCrash, err.Error()
	case errors.Is(err, services.ErrConversion):
		return ClassConversion, err.Error()
	default:
		return ClassOther, truncate(err.Error(), maxErrorMessageLen)
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
