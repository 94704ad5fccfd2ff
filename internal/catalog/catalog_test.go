package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"campaign-signal-alerts/internal/storage"
)

type fakeBatchStore struct {
	batches []storage.Batch
	err     error
}

func (f *fakeBatchStore) ListBatches(ctx context.Context, channel string, entityDate time.Time) ([]storage.Batch, error) {
	return f.batches, f.err
}

func TestListBatchesExcludesAnomalous(t *testing.T) {
	store := &fakeBatchStore{batches: []storage.Batch{
		{ID: "20250101_090512", RowCount: 2600},
		{ID: "20250101_080009", RowCount: 240},
		{ID: "20250101_100007", RowCount: 255},
	}}
	cat := New(store, 2500, zerolog.Nop())

	got := cat.ListBatches(context.Background(), "facebook", time.Now())

	if len(got) != 2 {
		t.Fatalf("expected 2 usable batches, got %d", len(got))
	}
	if got[0].ID != "20250101_080009" || got[1].ID != "20250101_100007" {
		t.Fatalf("wrong order or membership: %+v", got)
	}
}

func TestListBatchesCeilingDisabled(t *testing.T) {
	store := &fakeBatchStore{batches: []storage.Batch{
		{ID: "20250101_090512", RowCount: 2600},
	}}
	cat := New(store, 0, zerolog.Nop())

	got := cat.ListBatches(context.Background(), "facebook", time.Now())
	if len(got) != 1 {
		t.Fatalf("zero ceiling disables filtering, got %d batches", len(got))
	}
}

func TestListBatchesQueryFailure(t *testing.T) {
	store := &fakeBatchStore{err: errors.New("connection refused")}
	cat := New(store, 2500, zerolog.Nop())

	got := cat.ListBatches(context.Background(), "facebook", time.Now())
	if got != nil {
		t.Fatalf("a failed query yields no data, got %+v", got)
	}
}
