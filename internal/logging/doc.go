// Package logging builds the slog loggers used across squish and the attr
// helpers that keep field names consistent between the console and JSON
// output formats.
package logging
