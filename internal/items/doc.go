// Package items holds the work-item model and its stores. The engine
// consumes the narrow Store interface; MemStore backs tests and embedded
// use, SQLiteStore backs the CLI.
package items
