package metrics

import (
	"testing"

	"github.com/shopspring/decimal"

	"campaign-signal-alerts/internal/storage"
)

func metricRow(id, country string, spend, revenue int64) storage.MetricRow {
	row := storage.MetricRow{
		CampaignID: id,
		Country:    country,
		Spend:      decimal.NewFromInt(spend),
		Revenue:    decimal.NewFromInt(revenue),
	}
	row.ROAS = SafeDivide(row.Revenue, row.Spend)
	return row
}

func TestComputeDeltasMatchedRows(t *testing.T) {
	current := []storage.MetricRow{metricRow("c1", "US", 150, 30)}
	baseline := []storage.MetricRow{metricRow("c1", "US", 100, 40)}

	got := ComputeDeltas(current, baseline, KeyByCampaign)
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	row := got[0]

	if !row.Spend.Abs.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("spend abs = %s", row.Spend.Abs)
	}
	if !row.Spend.Pct.Valid || !row.Spend.Pct.Decimal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("spend pct = %+v", row.Spend.Pct)
	}
	if !row.ROASPoints.Valid || !row.ROASPoints.Decimal.Equal(decimal.RequireFromString("-0.2")) {
		t.Fatalf("roas points = %+v", row.ROASPoints)
	}
}

func TestComputeDeltasNewCampaign(t *testing.T) {
	current := []storage.MetricRow{metricRow("c2", "US", 80, 8)}

	got := ComputeDeltas(current, nil, KeyByCampaign)
	row := got[0]

	if row.Baseline != nil {
		t.Fatal("new campaign has no baseline")
	}
	if !row.Spend.Abs.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("spend abs = %s", row.Spend.Abs)
	}
	if row.Spend.Pct.Valid {
		t.Fatalf("zero baseline must yield null pct, got %s", row.Spend.Pct.Decimal)
	}
}

func TestComputeDeltasDroppedCampaignAbsent(t *testing.T) {
	baseline := []storage.MetricRow{metricRow("gone", "US", 100, 10)}

	got := ComputeDeltas(nil, baseline, KeyByCampaign)
	if len(got) != 0 {
		t.Fatalf("dropped campaigns are not reported, got %d rows", len(got))
	}
}

func TestComputeDeltasCountryKey(t *testing.T) {
	current := []storage.MetricRow{
		metricRow("c1", "US", 60, 6),
		metricRow("c1", "JP", 40, 8),
	}
	baseline := []storage.MetricRow{metricRow("c1", "US", 30, 3)}

	got := ComputeDeltas(current, baseline, KeyByCampaignCountry)
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}

	byKey := map[string]DeltaRow{}
	for _, row := range got {
		byKey[row.Key] = row
	}
	if byKey["c1|US"].Baseline == nil {
		t.Fatal("US slice should match its baseline")
	}
	if byKey["c1|JP"].Baseline != nil {
		t.Fatal("JP slice has no baseline")
	}
}

func TestComputeSummaryDeltaNilBaseline(t *testing.T) {
	current := storage.SummaryRow{
		Spend:   decimal.NewFromInt(500),
		Revenue: decimal.NewFromInt(100),
		ROAS:    SafeDivide(decimal.NewFromInt(100), decimal.NewFromInt(500)),
	}

	got := ComputeSummaryDelta(current, nil)
	if got.Spend.Pct.Valid || got.ROASPoints.Valid {
		t.Fatalf("nil baseline must yield null percentages: %+v", got)
	}
	if !got.Spend.Abs.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("spend abs = %s", got.Spend.Abs)
	}
}
