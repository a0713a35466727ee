package items

import (
	"strings"
	"time"

	"squish/internal/codec"
)

// Status represents the lifecycle of a work item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ResizeMode selects how target dimensions are computed before encoding.
type ResizeMode string

const (
	ResizeNone ResizeMode = "none"
	// ResizePercent scales both axes by Percent, rounding to nearest.
	ResizePercent ResizeMode = "percent"
	// ResizeFit shrinks to fit within MaxWidth x MaxHeight, preserving
	// aspect ratio and never upscaling.
	ResizeFit ResizeMode = "fit"
)

// ResizeConfig describes the optional resize stage of an item.
type ResizeConfig struct {
	Mode      ResizeMode
	Percent   float64
	MaxWidth  int
	MaxHeight int
}

// Enabled reports whether a resize stage applies.
func (r ResizeConfig) Enabled() bool {
	return r.Mode == ResizePercent || r.Mode == ResizeFit
}

// TargetSize holds the state of a target-size search on an item.
type TargetSize struct {
	// Bytes is the requested output budget; zero disables the search.
	Bytes int64
	// ProbeIndex is the current probe ordinal, 1-based while searching.
	ProbeIndex int
	// MaxProbes bounds the search; zero falls back to the engine default.
	MaxProbes int
	// AchievedQuality is the quality of the accepted result.
	AchievedQuality int
	// Warning carries the shortfall message when no probe met the budget.
	Warning string
}

// Result carries the output of a completed item.
type Result struct {
	Data   []byte
	Mime   string
	Width  int
	Height int
}

// WorkItem is one unit of content queued for transformation.
type WorkItem struct {
	ID   int64
	Name string
	// Source holds the in-memory content handle while processing.
	Source []byte
	// SourcePath and OutputPath are set by callers that work with files;
	// the engine itself never touches the filesystem.
	SourcePath   string
	OutputPath   string
	InputFormat  codec.Format
	OutputFormat codec.Format
	Quality      int
	Lossless     bool
	Resize       ResizeConfig
	TargetSize   TargetSize
	Status       Status
	Progress     int
	Result       *Result
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// resultBytes mirrors the persisted output size when the result data
	// itself has already been released to disk.
	resultBytes int64
}

// ResultBytes reports the output size of a completed item, whether the
// result buffer is still held or already released.
func (i *WorkItem) ResultBytes() int64 {
	if i.Result != nil && len(i.Result.Data) > 0 {
		return int64(len(i.Result.Data))
	}
	return i.resultBytes
}

// SetResultBytes records the persisted output size after the result buffer
// has been released.
func (i *WorkItem) SetResultBytes(n int64) {
	i.resultBytes = n
}

// SetProgress advances item progress, never moving backwards within a run.
func (i *WorkItem) SetProgress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent > i.Progress {
		i.Progress = percent
	}
}

// ResetProgress clears progress at the start of a fresh run.
func (i *WorkItem) ResetProgress() {
	i.Progress = 0
}

// SetFailed marks the item as errored with a classification and message.
func (i *WorkItem) SetFailed(kind, message string) {
	i.Status = StatusError
	i.ErrorKind = kind
	i.ErrorMessage = message
	i.Result = nil
}

// SetCompleted records a result and terminal progress.
func (i *WorkItem) SetCompleted(result Result) {
	i.Status = StatusCompleted
	i.Result = &result
	i.Progress = 100
	i.ErrorKind = ""
	i.ErrorMessage = ""
}

// ResetForReprocess releases the prior result and re-enters the pipeline
// from the start.
func (i *WorkItem) ResetForReprocess() {
	i.Status = StatusPending
	i.Result = nil
	i.Progress = 0
	i.ErrorKind = ""
	i.ErrorMessage = ""
	i.TargetSize.ProbeIndex = 0
	i.TargetSize.AchievedQuality = 0
	i.TargetSize.Warning = ""
}
