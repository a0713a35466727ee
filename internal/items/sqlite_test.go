package items_test

import (
	"context"
	"testing"

	"squish/internal/codec"
	"squish/internal/items"
)

func openTestStore(t *testing.T) *items.SQLiteStore {
	t.Helper()
	store, err := items.OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	inserted, err := store.Insert(ctx, items.WorkItem{
		Name:         "photo.png",
		SourcePath:   "/tmp/photo.png",
		InputFormat:  codec.FormatPNG,
		OutputFormat: codec.FormatJPEG,
		Quality:      80,
		Resize:       items.ResizeConfig{Mode: items.ResizePercent, Percent: 50},
		TargetSize:   items.TargetSize{Bytes: 100_000, MaxProbes: 6},
	})
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if inserted.ID == 0 {
		t.Fatal("expected assigned identity")
	}
	if inserted.Status != items.StatusPending {
		t.Fatalf("expected pending status, got %q", inserted.Status)
	}

	got, err := store.GetByID(ctx, inserted.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected item")
	}
	if got.Resize.Mode != items.ResizePercent || got.Resize.Percent != 50 {
		t.Fatalf("resize config lost: %+v", got.Resize)
	}
	if got.TargetSize.Bytes != 100_000 || got.TargetSize.MaxProbes != 6 {
		t.Fatalf("target size config lost: %+v", got.TargetSize)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := openTestStore(t)
	got, err := store.GetByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing item, got %+v", got)
	}
}

func TestUpdatePersistsCompletion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item, err := store.Insert(ctx, items.WorkItem{
		Name:         "a.png",
		InputFormat:  codec.FormatPNG,
		OutputFormat: codec.FormatJPEG,
		Quality:      70,
	})
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}

	item.SetCompleted(items.Result{Mime: "image/jpeg", Width: 10, Height: 8})
	item.SetResultBytes(1234)
	item.TargetSize.AchievedQuality = 64
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	got, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got.Status != items.StatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}
	if got.Result == nil || got.Result.Mime != "image/jpeg" {
		t.Fatalf("result metadata lost: %+v", got.Result)
	}
	if got.ResultBytes() != 1234 {
		t.Fatalf("result bytes lost: %d", got.ResultBytes())
	}
	if got.TargetSize.AchievedQuality != 64 {
		t.Fatalf("achieved quality lost: %d", got.TargetSize.AchievedQuality)
	}
}

func TestResetErrored(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item, err := store.Insert(ctx, items.WorkItem{
		Name: "bad.png", InputFormat: codec.FormatPNG, OutputFormat: codec.FormatJPEG,
	})
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	item.SetFailed("decode-error", "corrupt input")
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	reset, err := store.ResetErrored(ctx)
	if err != nil {
		t.Fatalf("ResetErrored returned error: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected one reset item, got %d", reset)
	}

	got, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got.Status != items.StatusPending || got.ErrorMessage != "" {
		t.Fatalf("item not reset: status=%q err=%q", got.Status, got.ErrorMessage)
	}
}

func TestBatchExtension(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.StartBatch(ctx, 3); err != nil {
		t.Fatalf("StartBatch returned error: %v", err)
	}
	if err := store.StartBatch(ctx, 2); err != nil {
		t.Fatalf("second StartBatch returned error: %v", err)
	}

	batch, err := store.LastBatch(ctx)
	if err != nil {
		t.Fatalf("LastBatch returned error: %v", err)
	}
	if batch == nil || batch.ItemCount != 5 {
		t.Fatalf("expected extended batch of 5, got %+v", batch)
	}
	if batch.EndedAt != nil {
		t.Fatal("batch should still be open")
	}

	if err := store.EndBatch(ctx); err != nil {
		t.Fatalf("EndBatch returned error: %v", err)
	}
	batch, err = store.LastBatch(ctx)
	if err != nil {
		t.Fatalf("LastBatch returned error: %v", err)
	}
	if batch.EndedAt == nil {
		t.Fatal("expected batch to be closed")
	}

	// A fresh StartBatch after closure opens a new batch.
	if err := store.StartBatch(ctx, 1); err != nil {
		t.Fatalf("StartBatch returned error: %v", err)
	}
	batch, err = store.LastBatch(ctx)
	if err != nil {
		t.Fatalf("LastBatch returned error: %v", err)
	}
	if batch.ItemCount != 1 || batch.EndedAt != nil {
		t.Fatalf("expected new open batch of 1, got %+v", batch)
	}
}

func TestHealthCounts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Insert(ctx, items.WorkItem{
			Name: "x.png", InputFormat: codec.FormatPNG, OutputFormat: codec.FormatJPEG,
		}); err != nil {
			t.Fatalf("Insert returned error: %v", err)
		}
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health returned error: %v", err)
	}
	if summary.Total != 3 || summary.Pending != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
