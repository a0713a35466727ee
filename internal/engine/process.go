package engine

import (
	"context"
	"errors"
	"fmt"

	"squish/internal/codec"
	"squish/internal/items"
	"squish/internal/logging"
	"squish/internal/pool"
	"squish/internal/services"
)

type pipelineKind int

const (
	pipelineMinify pipelineKind = iota
	pipelineRasterizeEncode
	pipelineContainerEncode
	pipelineDirectEncode
	pipelineResizeEncode
)

// preStageProgress is the leading share of an item's progress range granted
// to a synchronous rasterize, decode, or resize stage.
const preStageProgress = 20

// errNeverDispatched distinguishes a cancellation that arrived before the
// item ever reached a unit; such items revert to pending without side
// effects instead of being classified as failed.
var errNeverDispatched = errors.New("cancelled before dispatch")

func selectPipeline(item *items.WorkItem) (pipelineKind, error) {
	switch codec.KindOf(item.InputFormat) {
	case codec.KindVector:
		if codec.KindOf(item.OutputFormat) == codec.KindVector {
			return pipelineMinify, nil
		}
		return pipelineRasterizeEncode, nil
	case codec.KindContainer:
		return pipelineContainerEncode, nil
	case codec.KindRaster:
		if item.Resize.Enabled() {
			return pipelineResizeEncode, nil
		}
		return pipelineDirectEncode, nil
	default:
		return 0, services.Wrap(services.ErrUnsupported, "engine", "select pipeline",
			fmt.Sprintf("unknown input format %q", item.InputFormat), nil)
	}
}

// processItem carries an item from pending to a terminal status. release
// must be called once the item's first job reaches the pool, or as soon as
// it is known no job ever will; it unblocks the start of the next item.
func (o *Orchestrator) processItem(ctx context.Context, id int64, release func()) {
	defer o.itemFinished()
	defer release()

	updCtx := context.WithoutCancel(ctx)
	item, err := o.store.GetByID(updCtx, id)
	if err != nil {
		o.logger.Warn("failed to load item", logging.Int64("item", id), logging.Error(err))
		return
	}
	if item == nil {
		o.logger.Warn("unknown item id", logging.Int64("item", id))
		return
	}

	if ctx.Err() != nil {
		o.revertToPending(updCtx, item)
		return
	}

	item.Status = items.StatusProcessing
	item.ResetProgress()
	item.TargetSize.ProbeIndex = 0
	item.TargetSize.AchievedQuality = 0
	item.TargetSize.Warning = ""
	item.ErrorKind = ""
	item.ErrorMessage = ""
	if err := o.store.Update(updCtx, item); err != nil {
		o.logger.Warn("failed to mark item processing", logging.Int64("item", id), logging.Error(err))
		return
	}

	o.runPipeline(ctx, item, release)
}

func (o *Orchestrator) runPipeline(ctx context.Context, item *items.WorkItem, release func()) {
	updCtx := context.WithoutCancel(ctx)

	kind, err := selectPipeline(item)
	if err != nil {
		o.failItem(updCtx, item, err)
		return
	}

	if kind == pipelineMinify {
		o.minifyItem(updCtx, item)
		return
	}

	data := item.Source
	inputFormat := item.InputFormat
	base := 0
	dispatched := false

	switch kind {
	case pipelineRasterizeEncode:
		if o.caps.Rasterizer == nil {
			o.failItem(updCtx, item, services.Wrap(services.ErrUnsupported, "engine", "rasterize",
				"no rasterizer capability", nil))
			return
		}
		out, interFormat, rerr := o.caps.Rasterizer.Rasterize(data, inputFormat, 0, 0)
		if rerr != nil {
			o.failItem(updCtx, item, rerr)
			return
		}
		data, inputFormat = out, interFormat
		base = preStageProgress

	case pipelineContainerEncode:
		if o.caps.Container == nil {
			o.failItem(updCtx, item, services.Wrap(services.ErrConversion, "engine", "decode container",
				"no container-decode capability", nil))
			return
		}
		out, interFormat, cerr := o.caps.Container.DecodeContainer(data, item.InputFormat)
		if cerr != nil {
			o.failItem(updCtx, item, cerr)
			return
		}
		data, inputFormat = out, interFormat
		base = preStageProgress

	case pipelineResizeEncode:
		if o.caps.Rasterizer == nil {
			o.failItem(updCtx, item, services.Wrap(services.ErrUnsupported, "engine", "resize",
				"no rasterizer capability", nil))
			return
		}
		width, height, berr := o.caps.Rasterizer.Bounds(data, inputFormat)
		if berr != nil {
			o.failItem(updCtx, item, berr)
			return
		}
		targetW, targetH := targetDims(item.Resize, width, height)
		if targetW != width || targetH != height {
			out, interFormat, rerr := o.caps.Rasterizer.Rasterize(data, inputFormat, targetW, targetH)
			if rerr != nil {
				o.failItem(updCtx, item, rerr)
				return
			}
			data, inputFormat = out, interFormat
		}
		base = preStageProgress
	}

	if base > 0 {
		item.SetProgress(base)
		if err := o.store.Update(updCtx, item); err != nil {
			o.logger.Warn("failed to persist progress", logging.Int64("item", item.ID), logging.Error(err))
		}
	}

	// The original source handle is no longer needed once an intermediate
	// buffer exists; the encode phase owns its own copies.
	var (
		result  codec.EncodeResult
		quality = item.Quality
	)
	if targetSizeApplies(item) {
		result, quality, err = o.compressToTargetSize(ctx, item, data, inputFormat, release, &dispatched)
	} else {
		result, err = o.encodeOnce(ctx, item, data, inputFormat, item.Quality, 0,
			progressSpan{from: base, to: 100}, release, &dispatched)
	}
	if err != nil {
		if errors.Is(err, errNeverDispatched) {
			o.revertToPending(updCtx, item)
			return
		}
		o.failItem(updCtx, item, err)
		return
	}

	item.SetCompleted(items.Result{
		Data:   result.Data,
		Mime:   result.Mime,
		Width:  result.Width,
		Height: result.Height,
	})
	if targetSizeApplies(item) {
		item.TargetSize.AchievedQuality = quality
	}
	if err := o.store.Update(updCtx, item); err != nil {
		o.logger.Warn("failed to persist completion", logging.Int64("item", item.ID), logging.Error(err))
	}
}

func targetSizeApplies(item *items.WorkItem) bool {
	return item.TargetSize.Bytes > 0 &&
		!item.Lossless &&
		codec.KindOf(item.OutputFormat) == codec.KindRaster
}

func targetDims(resize items.ResizeConfig, width, height int) (int, int) {
	switch resize.Mode {
	case items.ResizePercent:
		return percentageDims(width, height, resize.Percent)
	case items.ResizeFit:
		return fitWithinDims(width, height, resize.MaxWidth, resize.MaxHeight)
	default:
		return width, height
	}
}

func (o *Orchestrator) minifyItem(updCtx context.Context, item *items.WorkItem) {
	if o.caps.Minifier == nil {
		o.failItem(updCtx, item, services.Wrap(services.ErrUnsupported, "engine", "minify",
			"no minifier capability", nil))
		return
	}
	optimized, err := o.caps.Minifier.Optimize(string(item.Source))
	if err != nil {
		o.failItem(updCtx, item, err)
		return
	}
	item.SetCompleted(items.Result{
		Data: []byte(optimized),
		Mime: codec.MimeTag(item.OutputFormat),
	})
	if err := o.store.Update(updCtx, item); err != nil {
		o.logger.Warn("failed to persist minified item", logging.Int64("item", item.ID), logging.Error(err))
	}
}

func (o *Orchestrator) failItem(updCtx context.Context, item *items.WorkItem, err error) {
	kind, message := Classify(err)
	item.SetFailed(kind, message)
	if uerr := o.store.Update(updCtx, item); uerr != nil {
		o.logger.Warn("failed to persist item failure", logging.Int64("item", item.ID), logging.Error(uerr))
	}
	o.logger.Warn("item failed",
		logging.Int64("item", item.ID),
		logging.String("classification", kind),
		logging.Error(err),
	)
}

func (o *Orchestrator) revertToPending(updCtx context.Context, item *items.WorkItem) {
	item.Status = items.StatusPending
	item.ResetProgress()
	item.ErrorKind = ""
	item.ErrorMessage = ""
	if err := o.store.Update(updCtx, item); err != nil {
		o.logger.Warn("failed to revert item", logging.Int64("item", item.ID), logging.Error(err))
	}
}

type encodeOutcome struct {
	result codec.EncodeResult
	err    error
}

type progressSpan struct {
	from, to int
}

func (s progressSpan) scale(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return s.from + percent*(s.to-s.from)/100
}

// encodeOnce submits one encode job and blocks until its terminal callback.
// Ownership of a fresh copy of data moves to the pool; the caller keeps its
// buffer for further probes.
func (o *Orchestrator) encodeOnce(ctx context.Context, item *items.WorkItem, data []byte, inputFormat codec.Format, quality, probe int, window progressSpan, release func(), dispatched *bool) (codec.EncodeResult, error) {
	if ctx.Err() != nil {
		if !*dispatched {
			return codec.EncodeResult{}, errNeverDispatched
		}
		return codec.EncodeResult{}, services.Wrap(services.ErrCancelled, "engine", "encode",
			"batch cancelled", context.Cause(ctx))
	}

	progressCh := make(chan int, 8)
	outcomeCh := make(chan encodeOutcome, 1)
	job := &pool.Job{
		ID:           pool.JobID(item.ID, probe),
		Input:        cloneBuffer(data),
		InputFormat:  inputFormat,
		OutputFormat: item.OutputFormat,
		Quality:      quality,
		Lossless:     item.Lossless,
		OnProgress: func(percent int) {
			select {
			case progressCh <- percent:
			default:
			}
		},
		OnComplete: func(result codec.EncodeResult) {
			outcomeCh <- encodeOutcome{result: result}
		},
		OnError: func(err error) {
			outcomeCh <- encodeOutcome{err: err}
		},
	}

	priorDispatch := *dispatched
	err := o.pool.Submit(ctx, job)
	release()
	if err != nil {
		if errors.Is(err, context.Canceled) && !*dispatched {
			return codec.EncodeResult{}, errNeverDispatched
		}
		return codec.EncodeResult{}, err
	}
	*dispatched = true

	updCtx := context.WithoutCancel(ctx)
	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			// Cancellation never tears down an in-flight job, but a job
			// still in the waiting queue is withdrawn before it reaches a
			// unit.
			ctxDone = nil
			if o.pool.Withdraw(job.ID) {
				*dispatched = priorDispatch
				if !priorDispatch {
					return codec.EncodeResult{}, errNeverDispatched
				}
				return codec.EncodeResult{}, services.Wrap(services.ErrCancelled, "engine", "encode",
					"batch cancelled", context.Cause(ctx))
			}
		case percent := <-progressCh:
			item.SetProgress(window.scale(percent))
			if err := o.store.Update(updCtx, item); err != nil {
				o.logger.Warn("failed to persist progress", logging.Int64("item", item.ID), logging.Error(err))
			}
		case outcome := <-outcomeCh:
			if outcome.err != nil {
				return codec.EncodeResult{}, outcome.err
			}
			return outcome.result, nil
		}
	}
}

func cloneBuffer(data []byte) []byte {
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp
}
