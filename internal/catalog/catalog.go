package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"campaign-signal-alerts/internal/storage"
)

// Catalog maps (channel, entity date) to the ordered set of usable batches.
// Batches whose row count exceeds the ceiling are excluded: the observed
// failure mode is a duplicated or partial ingestion landing with roughly 10x
// the normal row count, and such a batch must never win resolution.
type Catalog struct {
	store           storage.BatchStore
	rowCountCeiling int64
	logger          zerolog.Logger
}

// New constructs a batch catalog over the storage query interface.
func New(store storage.BatchStore, rowCountCeiling int64, logger zerolog.Logger) *Catalog {
	return &Catalog{
		store:           store,
		rowCountCeiling: rowCountCeiling,
		logger:          logger.With().Str("component", "catalog").Logger(),
	}
}

// ListBatches returns the usable batches for a channel and date, ascending
// by batch id. A failed query yields an empty list, never an error: "no
// data" is a normal outcome at this layer and retries belong to the storage
// collaborator.
func (c *Catalog) ListBatches(ctx context.Context, channel string, entityDate time.Time) []storage.Batch {
	batches, err := c.store.ListBatches(ctx, channel, entityDate)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("channel", channel).
			Str("entity_date", entityDate.Format("2006-01-02")).
			Msg("batch listing failed; treating as no data")
		return nil
	}

	usable := make([]storage.Batch, 0, len(batches))
	for _, batch := range batches {
		if c.rowCountCeiling > 0 && batch.RowCount > c.rowCountCeiling {
			c.logger.Warn().
				Str("batch_id", batch.ID).
				Int64("row_count", batch.RowCount).
				Int64("ceiling", c.rowCountCeiling).
				Msg("excluding anomalous batch")
			continue
		}
		usable = append(usable, batch)
	}

	sort.Slice(usable, func(i, j int) bool { return usable[i].ID < usable[j].ID })
	return usable
}
