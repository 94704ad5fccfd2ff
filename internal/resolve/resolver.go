package resolve

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"campaign-signal-alerts/internal/storage"
)

// Granularity selects the reporting cadence a window represents.
type Granularity string

const (
	Hourly Granularity = "hourly"
	Daily  Granularity = "daily"
	Weekly Granularity = "weekly"
)

// Comparison names the baseline period of a window.
type Comparison string

const (
	CompareNone              Comparison = "none"
	ComparePriorHour         Comparison = "prior-hour"
	ComparePriorDay          Comparison = "prior-day"
	ComparePriorWeek         Comparison = "prior-week"
	CompareSameHourYesterday Comparison = "same-hour-yesterday"
)

// Confidence reports how the winning batch was matched.
type Confidence string

const (
	// ConfidenceExact means the batch landed inside an hour-scoped search
	// window (or the date is historical and complete).
	ConfidenceExact Confidence = "exact"
	// ConfidenceFallback means the widest search won: the newest batch for
	// the date regardless of its hour.
	ConfidenceFallback Confidence = "fallback"
)

// Window is one resolution request.
type Window struct {
	Instant     time.Time
	EntityDate  time.Time
	Granularity Granularity
	Comparison  Comparison
}

// Resolved is the outcome of a resolution. Found is false when no batch
// qualifies at any tier; that is normal early-morning behaviour, not an
// error.
type Resolved struct {
	BatchID    string
	EntityDate time.Time
	Confidence Confidence
	Found      bool
}

// Lister is the slice of the batch catalog the resolver needs.
type Lister interface {
	ListBatches(ctx context.Context, channel string, entityDate time.Time) []storage.Batch
}

// Tier windows, as minute offsets from the top of the target hour. The
// delayed window exists because some sources land their hourly sync a few
// minutes late; the exact window is always searched first so a true
// top-of-hour batch is never shadowed.
const (
	exactWindowStartMin   = 0
	exactWindowEndMin     = 5
	delayedWindowStartMin = 3
	delayedWindowEndMin   = 8
)

// Resolver turns a reporting window into the single batch to read.
type Resolver struct {
	catalog Lister
	logger  zerolog.Logger
}

// New constructs a resolver over a batch catalog.
func New(catalog Lister, logger zerolog.Logger) *Resolver {
	return &Resolver{
		catalog: catalog,
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve picks the batch representing the window itself.
func (r *Resolver) Resolve(ctx context.Context, channel string, w Window) Resolved {
	date := dateOnly(w.EntityDate)

	// Historical dates are assumed complete: the newest ingestion of them
	// is the most accurate, and the hour argument is irrelevant.
	if date.Before(dateOnly(w.Instant)) {
		return r.resolveLatest(ctx, channel, date, ConfidenceExact)
	}

	if w.Granularity != Hourly {
		return r.resolveLatest(ctx, channel, date, ConfidenceExact)
	}

	return r.resolveHourly(ctx, channel, date, w.Instant.UTC().Hour())
}

// ResolveDate picks the newest usable batch for a date with no hour
// logic. Used for historical lookups and exports.
func (r *Resolver) ResolveDate(ctx context.Context, channel string, date time.Time) Resolved {
	return r.resolveLatest(ctx, channel, dateOnly(date), ConfidenceExact)
}

// ResolveBaseline picks the comparison batch for the window. Baseline and
// current resolution are independent: a fallback on one never forces a
// fallback on the other.
func (r *Resolver) ResolveBaseline(ctx context.Context, channel string, w Window) Resolved {
	date := dateOnly(w.EntityDate)

	switch w.Comparison {
	case ComparePriorHour:
		prior := w
		prior.Instant = w.Instant.Add(-time.Hour)
		prior.EntityDate = dateOnly(prior.Instant)
		if date.Before(dateOnly(w.Instant)) {
			// Historical windows have no meaningful prior hour; compare
			// against the previous day instead.
			return r.resolveLatest(ctx, channel, date.AddDate(0, 0, -1), ConfidenceExact)
		}
		return r.Resolve(ctx, channel, prior)
	case ComparePriorDay:
		return r.resolveLatest(ctx, channel, date.AddDate(0, 0, -1), ConfidenceExact)
	case ComparePriorWeek:
		return r.resolveLatest(ctx, channel, date.AddDate(0, 0, -7), ConfidenceExact)
	case CompareSameHourYesterday:
		yesterday := date.AddDate(0, 0, -1)
		hour := w.Instant.UTC().Hour()
		if batch, ok := r.searchHourWindows(ctx, channel, yesterday, hour); ok {
			return Resolved{BatchID: batch, EntityDate: yesterday, Confidence: ConfidenceExact, Found: true}
		}
		return Resolved{EntityDate: yesterday}
	default:
		return Resolved{EntityDate: date}
	}
}

// resolveHourly runs the tiered search for a current-day hourly window:
// the target hour's exact and delayed windows, then the previous hour's
// (rolling the entity date back across midnight), then the newest batch
// for the date regardless of hour.
func (r *Resolver) resolveHourly(ctx context.Context, channel string, date time.Time, hour int) Resolved {
	if batch, ok := r.searchHourWindows(ctx, channel, date, hour); ok {
		return Resolved{BatchID: batch, EntityDate: date, Confidence: ConfidenceExact, Found: true}
	}

	prevDate, prevHour := date, hour-1
	if prevHour < 0 {
		prevDate = date.AddDate(0, 0, -1)
		prevHour = 23
	}
	if batch, ok := r.searchHourWindows(ctx, channel, prevDate, prevHour); ok {
		return Resolved{BatchID: batch, EntityDate: prevDate, Confidence: ConfidenceExact, Found: true}
	}

	return r.resolveLatest(ctx, channel, date, ConfidenceFallback)
}

// searchHourWindows tries the exact window then the delayed window of one
// hour, in that order.
func (r *Resolver) searchHourWindows(ctx context.Context, channel string, date time.Time, hour int) (string, bool) {
	batches := r.catalog.ListBatches(ctx, channel, date)
	if len(batches) == 0 {
		return "", false
	}

	if batch, ok := maxInRange(batches,
		batchIDBound(date, hour, exactWindowStartMin),
		batchIDBound(date, hour, exactWindowEndMin)); ok {
		return batch, true
	}
	return maxInRange(batches,
		batchIDBound(date, hour, delayedWindowStartMin),
		batchIDBound(date, hour, delayedWindowEndMin))
}

func (r *Resolver) resolveLatest(ctx context.Context, channel string, date time.Time, conf Confidence) Resolved {
	batches := r.catalog.ListBatches(ctx, channel, date)
	if len(batches) == 0 {
		return Resolved{EntityDate: date}
	}
	// Catalog order is ascending by batch id.
	return Resolved{
		BatchID:    batches[len(batches)-1].ID,
		EntityDate: date,
		Confidence: conf,
		Found:      true,
	}
}

// maxInRange returns the greatest batch id in [lower, upper). Batches are
// ordered ascending, so the last match wins.
func maxInRange(batches []storage.Batch, lower, upper string) (string, bool) {
	best := ""
	for _, b := range batches {
		if b.ID >= lower && b.ID < upper {
			best = b.ID
		}
	}
	return best, best != ""
}

// batchIDBound renders a window bound in batch-id encoding, e.g.
// 20250101_090500 for 2025-01-01 hour 9 offset 5 minutes.
func batchIDBound(date time.Time, hour, minuteOffset int) string {
	return fmt.Sprintf("%s_%02d%02d00", date.Format("20060102"), hour, minuteOffset)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
