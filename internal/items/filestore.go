package items

import (
	"context"
	"fmt"
	"os"
)

// FileBackedStore bridges a metadata-only Store to the filesystem. Loaded
// items are hydrated with their Source content from SourcePath, and a
// completed result buffer is spilled to OutputPath before the metadata
// update is delegated, so the backing store never holds blobs.
type FileBackedStore struct {
	Store
}

func (s FileBackedStore) GetByID(ctx context.Context, id int64) (*WorkItem, error) {
	item, err := s.Store.GetByID(ctx, id)
	if err != nil || item == nil {
		return item, err
	}
	if len(item.Source) == 0 && item.SourcePath != "" {
		data, err := os.ReadFile(item.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("load item source: %w", err)
		}
		item.Source = data
	}
	return item, nil
}

func (s FileBackedStore) Update(ctx context.Context, item *WorkItem) error {
	if item != nil && item.Status == StatusCompleted &&
		item.Result != nil && len(item.Result.Data) > 0 && item.OutputPath != "" {
		if err := os.WriteFile(item.OutputPath, item.Result.Data, 0o644); err != nil {
			return fmt.Errorf("write item result: %w", err)
		}
		item.SetResultBytes(int64(len(item.Result.Data)))
		item.Result.Data = nil
	}
	return s.Store.Update(ctx, item)
}
