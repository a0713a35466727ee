// Package services holds the sentinel error taxonomy shared by the pool,
// the engine, and the codec adapters. Every failure surfaced on a work item
// is wrapped with exactly one of these markers so callers can classify it
// with errors.Is instead of string matching.
package services
