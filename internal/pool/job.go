package pool

import (
	"fmt"

	"squish/internal/codec"
)

// Job is one dispatchable encode request. Input ownership moves to the
// assigned execution unit on submission; the submitter must not read the
// buffer afterward.
//
// Callbacks run on the pool's dispatch goroutine and must not block.
type Job struct {
	ID           string
	Input        []byte
	InputFormat  codec.Format
	OutputFormat codec.Format
	Quality      int
	Lossless     bool

	OnProgress func(percent int)
	OnComplete func(result codec.EncodeResult)
	OnError    func(err error)
}

// JobID composes a job identity from an item identity and probe index, so
// concurrent target-size probes of the same item never collide.
func JobID(itemID int64, probe int) string {
	return fmt.Sprintf("item-%d#%d", itemID, probe)
}
