package items

import "context"

// Store is the narrow item-store contract the engine consumes. The engine
// treats it as the sole source of truth and keeps no shadow copy beyond
// values needed mid-computation; it only needs consistent read-after-write.
type Store interface {
	GetByID(ctx context.Context, id int64) (*WorkItem, error)
	Update(ctx context.Context, item *WorkItem) error
	// StartBatch signals that count items were enqueued together. Starting
	// a batch while one is in flight extends the running batch.
	StartBatch(ctx context.Context, count int) error
	// EndBatch signals that the running batch drained.
	EndBatch(ctx context.Context) error
}
