package metrics

import (
	"github.com/shopspring/decimal"

	"campaign-signal-alerts/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// KeyFunc derives the comparison key of a metric row.
type KeyFunc func(storage.MetricRow) string

// KeyByCampaign keys rows by campaign id.
func KeyByCampaign(row storage.MetricRow) string {
	return row.CampaignID
}

// KeyByCampaignCountry keys rows by campaign id and country.
func KeyByCampaignCountry(row storage.MetricRow) string {
	return row.CampaignID + "|" + row.Country
}

// Delta is one metric's movement between baseline and current. Pct is null
// when the baseline is zero or missing: "no prior data" must stay
// distinguishable from "no change".
type Delta struct {
	Abs decimal.Decimal
	Pct decimal.NullDecimal
}

// DeltaRow is the period-over-period comparison of one keyed row. Baseline
// is nil for rows that only exist in the current period.
type DeltaRow struct {
	Key      string
	Current  storage.MetricRow
	Baseline *storage.MetricRow

	Spend       Delta
	Revenue     Delta
	Impressions Delta
	Clicks      Delta
	// ROASPoints is the absolute ROAS movement in ratio points, null when
	// either side's ROAS is null.
	ROASPoints decimal.NullDecimal
}

// ComputeDeltas compares current rows against baseline rows. Rows present
// only in current are reported with a nil baseline; rows present only in
// baseline are not reported; a dropped campaign is absence, not a decline.
func ComputeDeltas(current, baseline []storage.MetricRow, key KeyFunc) []DeltaRow {
	baselineByKey := make(map[string]storage.MetricRow, len(baseline))
	for _, row := range baseline {
		baselineByKey[key(row)] = row
	}

	out := make([]DeltaRow, 0, len(current))
	for _, row := range current {
		k := key(row)
		dr := DeltaRow{Key: k, Current: row}

		if base, ok := baselineByKey[k]; ok {
			dr.Baseline = &base
			dr.Spend = deltaOf(row.Spend, base.Spend)
			dr.Revenue = deltaOf(row.Revenue, base.Revenue)
			dr.Impressions = deltaOf(decimal.NewFromInt(row.Impressions), decimal.NewFromInt(base.Impressions))
			dr.Clicks = deltaOf(decimal.NewFromInt(row.Clicks), decimal.NewFromInt(base.Clicks))
			if row.ROAS.Valid && base.ROAS.Valid {
				dr.ROASPoints = decimal.NullDecimal{Decimal: row.ROAS.Decimal.Sub(base.ROAS.Decimal), Valid: true}
			}
		} else {
			dr.Spend = deltaOf(row.Spend, decimal.Zero)
			dr.Revenue = deltaOf(row.Revenue, decimal.Zero)
			dr.Impressions = deltaOf(decimal.NewFromInt(row.Impressions), decimal.Zero)
			dr.Clicks = deltaOf(decimal.NewFromInt(row.Clicks), decimal.Zero)
		}

		out = append(out, dr)
	}
	return out
}

// SummaryDelta compares two batch rollups the same way.
type SummaryDelta struct {
	Current  storage.SummaryRow
	Baseline *storage.SummaryRow

	Spend      Delta
	Revenue    Delta
	ROASPoints decimal.NullDecimal
}

// ComputeSummaryDelta compares a current rollup against an optional
// baseline rollup.
func ComputeSummaryDelta(current storage.SummaryRow, baseline *storage.SummaryRow) SummaryDelta {
	sd := SummaryDelta{Current: current, Baseline: baseline}
	if baseline == nil {
		sd.Spend = deltaOf(current.Spend, decimal.Zero)
		sd.Revenue = deltaOf(current.Revenue, decimal.Zero)
		return sd
	}
	sd.Spend = deltaOf(current.Spend, baseline.Spend)
	sd.Revenue = deltaOf(current.Revenue, baseline.Revenue)
	if current.ROAS.Valid && baseline.ROAS.Valid {
		sd.ROASPoints = decimal.NullDecimal{Decimal: current.ROAS.Decimal.Sub(baseline.ROAS.Decimal), Valid: true}
	}
	return sd
}

// deltaOf computes absolute movement always, percentage movement only when
// the baseline is non-zero.
func deltaOf(current, baseline decimal.Decimal) Delta {
	d := Delta{Abs: current.Sub(baseline)}
	if pct := SafeDivide(d.Abs, baseline); pct.Valid {
		d.Pct = decimal.NullDecimal{Decimal: pct.Decimal.Mul(hundred), Valid: true}
	}
	return d
}
