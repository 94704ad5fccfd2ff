package suppression

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store := NewFileStore(path)
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	if err := store.Append(context.Background(), "alice:c1:stop_loss", now, 24*time.Hour); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// A second store instance over the same path must see the entry.
	reopened := NewFileStore(path)
	history, err := reopened.History(context.Background(), "alice:c1:stop_loss")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || !history[0].Equal(now) {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	history, err := store.History(context.Background(), "any")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("missing file means empty history, got %+v", history)
	}
}

func TestFileStoreCorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	store := NewFileStore(path)

	history, err := store.History(context.Background(), "any")
	if err != nil {
		t.Fatalf("corrupt document must reset, not error: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %+v", history)
	}

	if err := store.Append(context.Background(), "k", time.Now().UTC(), time.Hour); err != nil {
		t.Fatalf("Append after reset: %v", err)
	}
}

func TestFileStoreAppendPrunes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store := NewFileStore(path)
	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	stale := now.Add(-25 * time.Hour)
	if err := store.Append(context.Background(), "alice:c1:stop_loss", stale, 24*time.Hour); err != nil {
		t.Fatalf("Append stale: %v", err)
	}
	if err := store.Append(context.Background(), "bob:c2:scale_up", now, 24*time.Hour); err != nil {
		t.Fatalf("Append fresh: %v", err)
	}

	history, err := store.History(context.Background(), "alice:c1:stop_loss")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("pruning covers the whole document, got %+v", history)
	}
}
