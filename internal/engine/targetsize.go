package engine

import (
	"context"
	"fmt"

	"squish/internal/codec"
	"squish/internal/items"
	"squish/internal/logging"
)

const (
	// qualityFloor and qualityCeil bound the target-size quality search.
	qualityFloor = 10
	qualityCeil  = 98
	// defaultMaxProbes bounds the bisection when the item does not specify
	// its own probe budget.
	defaultMaxProbes = 6
	// searchProgressCeil is the progress reached when the last probe ends;
	// the confirmed final encode fills the remainder.
	searchProgressCeil = 80
)

// compressToTargetSize searches an integer quality in [qualityFloor,
// qualityCeil] for the highest value whose encoded output still fits the
// item's byte budget, then re-encodes at that quality as the confirmed
// result. Correctness relies on the encoder's size being non-decreasing in
// quality; the search does not verify that precondition.
//
// When no probe meets the budget the item is encoded at the quality floor
// and a shortfall warning records the achieved size versus the budget.
func (o *Orchestrator) compressToTargetSize(ctx context.Context, item *items.WorkItem, data []byte, inputFormat codec.Format, release func(), dispatched *bool) (codec.EncodeResult, int, error) {
	target := item.TargetSize.Bytes
	maxProbes := item.TargetSize.MaxProbes
	if maxProbes <= 0 {
		maxProbes = defaultMaxProbes
	}
	updCtx := context.WithoutCancel(ctx)

	low, high := qualityFloor, qualityCeil
	bestQuality := 0

	for probe := 1; probe <= maxProbes && low <= high; probe++ {
		mid := (low + high) / 2

		item.TargetSize.ProbeIndex = probe
		if err := o.store.Update(updCtx, item); err != nil {
			o.logger.Warn("failed to persist probe index", logging.Int64("item", item.ID), logging.Error(err))
		}

		window := progressSpan{
			from: searchProgressCeil * (probe - 1) / maxProbes,
			to:   searchProgressCeil * probe / maxProbes,
		}
		result, err := o.encodeOnce(ctx, item, data, inputFormat, mid, probe, window, release, dispatched)
		if err != nil {
			return codec.EncodeResult{}, 0, err
		}

		size := int64(len(result.Data))
		if size <= target {
			// Under budget: remember it and look for a higher quality
			// that still fits.
			bestQuality = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
		o.logger.Debug("target-size probe",
			logging.Int64("item", item.ID),
			logging.Int("probe", probe),
			logging.Int("quality", mid),
			logging.Int64("size", size),
			logging.Int64("target", target),
		)

		item.SetProgress(window.to)
		if err := o.store.Update(updCtx, item); err != nil {
			o.logger.Warn("failed to persist progress", logging.Int64("item", item.ID), logging.Error(err))
		}
	}

	finalQuality := bestQuality
	if finalQuality == 0 {
		finalQuality = qualityFloor
	}

	result, err := o.encodeOnce(ctx, item, data, inputFormat, finalQuality, maxProbes+1,
		progressSpan{from: searchProgressCeil, to: 100}, release, dispatched)
	if err != nil {
		return codec.EncodeResult{}, 0, err
	}

	if bestQuality == 0 {
		item.TargetSize.Warning = fmt.Sprintf(
			"target of %d bytes not reachable; achieved %d bytes at quality %d",
			target, len(result.Data), finalQuality)
		o.logger.Warn("target size not reachable",
			logging.Int64("item", item.ID),
			logging.Int64("target", target),
			logging.Int("achieved", len(result.Data)),
		)
	}
	return result, finalQuality, nil
}
