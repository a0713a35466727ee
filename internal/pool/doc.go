// Package pool provides a bounded set of parallel execution units behind a
// FIFO-fair dispatch surface. Units are fungible: waiting jobs are
// dispatched strictly in queue order, but any free unit may take the next
// one. A unit fault fails only the job it held; the pool keeps running.
package pool
