// Package engine drives work items from pending to completed or error. Per
// item it selects a pipeline from the input and output format families, runs
// rasterize/decode/minify stages synchronously, submits encode jobs to the
// pool, and performs the target-size quality search when a byte budget is
// set. Batches are tracked as a whole: a batch started while one is in
// flight extends it, and completion fires only when the queue drains.
package engine
