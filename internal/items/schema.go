package items

import (
	"database/sql"
	"time"
)

const schemaVersion = 1

const createItemsTable = `
CREATE TABLE IF NOT EXISTS work_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL DEFAULT '',
    source_path TEXT,
    output_path TEXT,
    input_format TEXT NOT NULL,
    output_format TEXT NOT NULL,
    quality INTEGER NOT NULL DEFAULT 0,
    lossless INTEGER NOT NULL DEFAULT 0,
    resize_mode TEXT NOT NULL DEFAULT 'none',
    resize_percent REAL NOT NULL DEFAULT 0,
    resize_max_width INTEGER NOT NULL DEFAULT 0,
    resize_max_height INTEGER NOT NULL DEFAULT 0,
    target_bytes INTEGER NOT NULL DEFAULT 0,
    probe_index INTEGER NOT NULL DEFAULT 0,
    max_probes INTEGER NOT NULL DEFAULT 0,
    achieved_quality INTEGER NOT NULL DEFAULT 0,
    size_warning TEXT,
    status TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    result_mime TEXT,
    result_width INTEGER NOT NULL DEFAULT 0,
    result_height INTEGER NOT NULL DEFAULT 0,
    result_bytes INTEGER NOT NULL DEFAULT 0,
    error_kind TEXT,
    error_message TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

const createBatchesTable = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    item_count INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL,
    ended_at TEXT
);`

const createSchemaTable = `
CREATE TABLE IF NOT EXISTS schema_info (
    version INTEGER NOT NULL
);`

const itemColumns = `id, name, source_path, output_path, input_format, output_format,
    quality, lossless, resize_mode, resize_percent, resize_max_width, resize_max_height,
    target_bytes, probe_index, max_probes, achieved_quality, size_warning,
    status, progress, result_mime, result_width, result_height, result_bytes,
    error_kind, error_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*WorkItem, error) {
	var (
		item         WorkItem
		sourcePath   sql.NullString
		outputPath   sql.NullString
		lossless     int
		sizeWarning  sql.NullString
		resultMime   sql.NullString
		resultWidth  int
		resultHeight int
		resultBytes  int64
		errorKind    sql.NullString
		errorMessage sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(
		&item.ID,
		&item.Name,
		&sourcePath,
		&outputPath,
		(*string)(&item.InputFormat),
		(*string)(&item.OutputFormat),
		&item.Quality,
		&lossless,
		(*string)(&item.Resize.Mode),
		&item.Resize.Percent,
		&item.Resize.MaxWidth,
		&item.Resize.MaxHeight,
		&item.TargetSize.Bytes,
		&item.TargetSize.ProbeIndex,
		&item.TargetSize.MaxProbes,
		&item.TargetSize.AchievedQuality,
		&sizeWarning,
		(*string)(&item.Status),
		&item.Progress,
		&resultMime,
		&resultWidth,
		&resultHeight,
		&resultBytes,
		&errorKind,
		&errorMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.SourcePath = sourcePath.String
	item.OutputPath = outputPath.String
	item.Lossless = lossless != 0
	item.TargetSize.Warning = sizeWarning.String
	item.ErrorKind = errorKind.String
	item.ErrorMessage = errorMessage.String
	if resultMime.Valid && resultMime.String != "" {
		item.Result = &Result{
			Mime:   resultMime.String,
			Width:  resultWidth,
			Height: resultHeight,
		}
		// Result bytes live on disk at OutputPath; the stored count is
		// surfaced through ResultBytes for status rendering.
	}
	item.resultBytes = resultBytes
	item.CreatedAt = parseTimestamp(createdAt)
	item.UpdatedAt = parseTimestamp(updatedAt)
	return &item, nil
}

func parseTimestamp(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
