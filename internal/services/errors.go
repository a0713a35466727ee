package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDecode marks corrupt or undecodable input content.
	ErrDecode = errors.New("decode error")
	// ErrMemory marks allocation exhaustion while processing an item.
	ErrMemory = errors.New("memory exhausted")
	// ErrUnsupported marks an input or output format no capability handles.
	ErrUnsupported = errors.New("unsupported format")
	// ErrNetwork marks a failure fetching a remotely sourced item.
	ErrNetwork = errors.New("network failure")
	// ErrCancelled marks work abandoned by a batch cancellation.
	ErrCancelled = errors.New("cancelled")
	// ErrWorkerCrash marks a job lost to an execution unit fault.
	ErrWorkerCrash = errors.New("unexpected worker failure")
	// ErrConversion marks a container-to-raster conversion failure.
	ErrConversion = errors.New("container conversion failed")
	// ErrTimeout marks a bounded wait that expired.
	ErrTimeout = errors.New("timeout")
	// ErrConfiguration marks invalid configuration supplied by the caller.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = errors.New("failure")
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
