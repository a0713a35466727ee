package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists work items and batch records in SQLite. It implements
// Store plus the listing and maintenance surface the CLI needs.
type SQLiteStore struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// OpenSQLite initializes or connects to the item database. A lock file
// beside the database guards against concurrent writers from a second
// process.
func OpenSQLite(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure store directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "items.lock"))
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !held {
		return nil, errors.New("item store is locked by another process")
	}

	dbPath := filepath.Join(dir, "items.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, lock: lock, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return store, nil
}

// Close releases the database connection and the writer lock.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	var first error
	if s.db != nil {
		first = s.db.Close()
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) applySchema(ctx context.Context) error {
	for _, stmt := range []string{createItemsTable, createBatchesTable, createSchemaTable} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_info`)
	var count int
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_info (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return nil
}

// Insert ingests a new pending work item and returns the stored copy.
func (s *SQLiteStore) Insert(ctx context.Context, item WorkItem) (*WorkItem, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if item.Status == "" {
		item.Status = StatusPending
	}
	if item.Resize.Mode == "" {
		item.Resize.Mode = ResizeNone
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO work_items (
            name, source_path, output_path, input_format, output_format,
            quality, lossless, resize_mode, resize_percent, resize_max_width,
            resize_max_height, target_bytes, max_probes, status, progress,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Name,
		nullableString(item.SourcePath),
		nullableString(item.OutputPath),
		string(item.InputFormat),
		string(item.OutputFormat),
		item.Quality,
		boolToInt(item.Lossless),
		string(item.Resize.Mode),
		item.Resize.Percent,
		item.Resize.MaxWidth,
		item.Resize.MaxHeight,
		item.TargetSize.Bytes,
		item.TargetSize.MaxProbes,
		string(item.Status),
		item.Progress,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a work item by identifier, or nil when absent.
func (s *SQLiteStore) GetByID(ctx context.Context, id int64) (*WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing work item. The result buffer is not
// stored; only its metadata and byte count are.
func (s *SQLiteStore) Update(ctx context.Context, item *WorkItem) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()

	var resultMime any
	resultWidth, resultHeight := 0, 0
	if item.Result != nil {
		resultMime = item.Result.Mime
		resultWidth = item.Result.Width
		resultHeight = item.Result.Height
	}

	_, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items
         SET name = ?, source_path = ?, output_path = ?, input_format = ?,
             output_format = ?, quality = ?, lossless = ?, resize_mode = ?,
             resize_percent = ?, resize_max_width = ?, resize_max_height = ?,
             target_bytes = ?, probe_index = ?, max_probes = ?,
             achieved_quality = ?, size_warning = ?, status = ?, progress = ?,
             result_mime = ?, result_width = ?, result_height = ?,
             result_bytes = ?, error_kind = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		item.Name,
		nullableString(item.SourcePath),
		nullableString(item.OutputPath),
		string(item.InputFormat),
		string(item.OutputFormat),
		item.Quality,
		boolToInt(item.Lossless),
		string(item.Resize.Mode),
		item.Resize.Percent,
		item.Resize.MaxWidth,
		item.Resize.MaxHeight,
		item.TargetSize.Bytes,
		item.TargetSize.ProbeIndex,
		item.TargetSize.MaxProbes,
		item.TargetSize.AchievedQuality,
		nullableString(item.TargetSize.Warning),
		string(item.Status),
		item.Progress,
		resultMime,
		resultWidth,
		resultHeight,
		item.ResultBytes(),
		nullableString(item.ErrorKind),
		nullableString(item.ErrorMessage),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// List returns all work items ordered by creation.
func (s *SQLiteStore) List(ctx context.Context) ([]*WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM work_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []*WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ResetErrored flips errored items back to pending so a caller can resubmit
// them. Returns the number of items reset.
func (s *SQLiteStore) ResetErrored(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items
         SET status = ?, progress = 0, error_kind = NULL, error_message = NULL,
             probe_index = 0, achieved_quality = 0, size_warning = NULL,
             updated_at = ?
         WHERE status = ?`,
		string(StatusPending),
		time.Now().UTC().Format(time.RFC3339Nano),
		string(StatusError),
	)
	if err != nil {
		return 0, fmt.Errorf("reset errored: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every item and batch record.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM work_items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM batches`); err != nil {
		return fmt.Errorf("clear batches: %w", err)
	}
	return nil
}

// StartBatch opens a batch record, or extends the open one.
func (s *SQLiteStore) StartBatch(ctx context.Context, count int) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE batches SET item_count = item_count + ? WHERE ended_at IS NULL`,
		count,
	)
	if err != nil {
		return fmt.Errorf("extend batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("extend batch: %w", err)
	}
	if affected > 0 {
		return nil
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO batches (id, item_count, started_at) VALUES (?, ?, ?)`,
		uuid.NewString(),
		count,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("start batch: %w", err)
	}
	return nil
}

// EndBatch closes the open batch record, if any.
func (s *SQLiteStore) EndBatch(ctx context.Context) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE batches SET ended_at = ? WHERE ended_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("end batch: %w", err)
	}
	return nil
}

// BatchSummary describes one recorded batch.
type BatchSummary struct {
	ID        string
	ItemCount int
	StartedAt time.Time
	EndedAt   *time.Time
}

// LastBatch returns the most recently started batch, or nil when none exist.
func (s *SQLiteStore) LastBatch(ctx context.Context) (*BatchSummary, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, item_count, started_at, ended_at FROM batches ORDER BY started_at DESC LIMIT 1`,
	)
	var (
		summary BatchSummary
		started string
		ended   sql.NullString
	)
	err := row.Scan(&summary.ID, &summary.ItemCount, &started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last batch: %w", err)
	}
	summary.StartedAt = parseTimestamp(started)
	if ended.Valid {
		endTime := parseTimestamp(ended.String)
		summary.EndedAt = &endTime
	}
	return &summary, nil
}

// HealthSummary aggregates item counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Errored    int
}

// Health reports aggregate queue counts for observability.
func (s *SQLiteStore) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM work_items GROUP BY status`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("health query: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return HealthSummary{}, fmt.Errorf("health scan: %w", err)
		}
		summary.Total += count
		switch Status(status) {
		case StatusPending:
			summary.Pending = count
		case StatusProcessing:
			summary.Processing = count
		case StatusCompleted:
			summary.Completed = count
		case StatusError:
			summary.Errored = count
		}
	}
	return summary, rows.Err()
}
