package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"squish/internal/codec"
	"squish/internal/items"
	"squish/internal/logging"
	"squish/internal/pool"
)

// Capabilities bundles the opaque collaborators the orchestrator drives
// outside the pool. Any of them may be nil; pipelines needing a missing
// capability fail with an unsupported-format classification.
type Capabilities struct {
	Rasterizer codec.Rasterizer
	Container  codec.ContainerDecoder
	Minifier   codec.VectorMinifier
}

// Orchestrator drives work items from pending to completed or error. It
// selects a pipeline per item, runs pre-stages synchronously, submits encode
// jobs to the pool, and performs the target-size search when requested.
type Orchestrator struct {
	store  items.Store
	pool   *pool.Pool
	caps   Capabilities
	logger *slog.Logger

	mu    sync.Mutex
	batch *batchState
}

type batchState struct {
	id        string
	started   time.Time
	remaining int
	total     int
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// New constructs an orchestrator over the given store, pool, and
// capabilities.
func New(store items.Store, p *pool.Pool, caps Capabilities, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:  store,
		pool:   p,
		caps:   caps,
		logger: logging.NewComponentLogger(logger, "engine"),
	}
}

// Process enqueues the given item ids for compression and returns once they
// are scheduled. Starting a batch while one is in flight extends the running
// batch rather than overlapping a second one. Use Wait to block until the
// batch drains.
func (o *Orchestrator) Process(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	o.mu.Lock()
	batch := o.batch
	created := batch == nil
	if created {
		batchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		batch = &batchState{
			id:      uuid.NewString(),
			started: time.Now(),
			ctx:     batchCtx,
			cancel:  cancel,
			done:    make(chan struct{}),
		}
	}
	// The counts move only once the store accepts the batch; a rejected
	// batch must not leave remaining items nothing will ever retire.
	if err := o.store.StartBatch(ctx, len(ids)); err != nil {
		o.mu.Unlock()
		if created {
			batch.cancel()
		}
		return err
	}
	if created {
		o.batch = batch
		o.logger.Info("batch started",
			logging.String("batch", batch.id),
			logging.Int("items", len(ids)),
		)
	} else {
		o.logger.Info("batch extended",
			logging.String("batch", batch.id),
			logging.Int("items", len(ids)),
		)
	}
	batch.remaining += len(ids)
	batch.total += len(ids)
	batchCtx := batch.ctx
	o.mu.Unlock()

	// Items start strictly in submission order: each item runs up to its
	// first pool submission before the next item begins, so a single-unit
	// pool dispatches first jobs in the order they were enqueued here. The
	// items run concurrently from that point on.
	go func() {
		for _, id := range ids {
			submitted := make(chan struct{})
			var once sync.Once
			go o.processItem(batchCtx, id, func() {
				once.Do(func() { close(submitted) })
			})
			<-submitted
		}
	}()
	return nil
}

// ProcessAndWait enqueues the items and blocks until the batch drains.
func (o *Orchestrator) ProcessAndWait(ctx context.Context, ids []int64) error {
	if err := o.Process(ctx, ids); err != nil {
		return err
	}
	return o.Wait(ctx)
}

// Wait blocks until the running batch completes, or returns immediately
// when none is in flight.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	batch := o.batch
	o.mu.Unlock()
	if batch == nil {
		return nil
	}
	select {
	case <-batch.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cooperatively stops the running batch: items not yet dispatched to
// a unit revert to pending, while in-flight jobs are left to finish or fail
// independently.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	batch := o.batch
	o.mu.Unlock()
	if batch != nil {
		batch.cancel()
	}
}

// Reprocess releases the prior results of the given items, applies the
// mutation to each, resets them to pending, and re-enters the pipeline from
// the start.
func (o *Orchestrator) Reprocess(ctx context.Context, ids []int64, apply func(*items.WorkItem)) error {
	resubmit := make([]int64, 0, len(ids))
	for _, id := range ids {
		item, err := o.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			continue
		}
		if apply != nil {
			apply(item)
		}
		item.ResetForReprocess()
		if err := o.store.Update(ctx, item); err != nil {
			return err
		}
		resubmit = append(resubmit, id)
	}
	return o.Process(ctx, resubmit)
}

// itemFinished retires one item from the running batch and closes the batch
// once its queue drains with nothing further pending.
func (o *Orchestrator) itemFinished() {
	o.mu.Lock()
	batch := o.batch
	if batch == nil {
		o.mu.Unlock()
		return
	}
	batch.remaining--
	finished := batch.remaining == 0
	if finished {
		o.batch = nil
	}
	o.mu.Unlock()

	if !finished {
		return
	}
	batch.cancel()
	if err := o.store.EndBatch(context.Background()); err != nil {
		o.logger.Warn("failed to close batch record", logging.Error(err))
	}
	o.logger.Info("batch complete",
		logging.String("batch", batch.id),
		logging.Int("items", batch.total),
		logging.Duration("elapsed", time.Since(batch.started)),
	)
	close(batch.done)
}
