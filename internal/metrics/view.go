package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"campaign-signal-alerts/internal/storage"
)

var thousand = decimal.NewFromInt(1000)

// SummaryPoint is one day's rollup inside an export range.
type SummaryPoint struct {
	Date    time.Time
	Summary storage.SummaryRow
}

// View reads the aggregated metric rows of exactly one resolved batch and
// derives the ratio metrics. It never mixes rows from two batches: the
// underlying query pairs the batch id filter with the date filter.
type View struct {
	store  storage.MetricStore
	logger zerolog.Logger
}

// NewView constructs a metrics view over the storage query interface.
func NewView(store storage.MetricStore, logger zerolog.Logger) *View {
	return &View{
		store:  store,
		logger: logger.With().Str("component", "metrics_view").Logger(),
	}
}

// Fetch returns one derived row per active campaign in the batch. Batches
// are immutable, so repeated calls with the same arguments return identical
// rows.
func (v *View) Fetch(ctx context.Context, entityDate time.Time, batchID, channel string) ([]storage.MetricRow, error) {
	rows, err := v.store.CampaignRows(ctx, entityDate, batchID, channel)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		deriveRatios(&rows[i])
	}
	return rows, nil
}

// Summary returns one channel's batch rollup with its derived ROAS.
func (v *View) Summary(ctx context.Context, entityDate time.Time, batchID, channel string) (storage.SummaryRow, error) {
	summary, err := v.store.SummaryRow(ctx, entityDate, batchID, channel)
	if err != nil {
		return storage.SummaryRow{}, err
	}
	summary.ROAS = SafeDivide(summary.Revenue, summary.Spend)
	return summary, nil
}

// CampaignCTR returns one campaign's CTR in one batch, null when the batch
// has no impressions for it.
func (v *View) CampaignCTR(ctx context.Context, entityDate time.Time, batchID, campaignID string) (decimal.NullDecimal, error) {
	clicks, impressions, err := v.store.CampaignClicks(ctx, entityDate, batchID, campaignID)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return SafeDivide(decimal.NewFromInt(clicks), decimal.NewFromInt(impressions)), nil
}

// deriveRatios fills the ratio fields from the base sums. Every division
// goes through SafeDivide so a zero denominator yields null, never NaN or
// infinity.
func deriveRatios(row *storage.MetricRow) {
	newUsers := decimal.NewFromInt(row.NewUsers)
	impressions := decimal.NewFromInt(row.Impressions)
	clicks := decimal.NewFromInt(row.Clicks)

	row.ROAS = SafeDivide(row.Revenue, row.Spend)
	row.CPI = SafeDivide(row.Spend, newUsers)
	row.CTR = SafeDivide(clicks, impressions)
	row.CVR = SafeDivide(newUsers, clicks)
	if cpm := SafeDivide(row.Spend, impressions); cpm.Valid {
		row.CPM = decimal.NullDecimal{Decimal: cpm.Decimal.Mul(thousand), Valid: true}
	} else {
		row.CPM = decimal.NullDecimal{}
	}
}

// SafeDivide divides num by den, returning null when the denominator is
// zero. Null is distinguishable from zero downstream; collapsing the two
// corrupts percentage arrows and suppression keys.
func SafeDivide(num, den decimal.Decimal) decimal.NullDecimal {
	if den.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: num.Div(den), Valid: true}
}
