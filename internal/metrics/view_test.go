package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"campaign-signal-alerts/internal/storage"
)

type fakeMetricStore struct {
	rows    []storage.MetricRow
	summary storage.SummaryRow
	clicks  int64
	impr    int64
}

func (f *fakeMetricStore) CampaignRows(ctx context.Context, entityDate time.Time, batchID, channel string) ([]storage.MetricRow, error) {
	out := make([]storage.MetricRow, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeMetricStore) SummaryRow(ctx context.Context, entityDate time.Time, batchID, channel string) (storage.SummaryRow, error) {
	return f.summary, nil
}

func (f *fakeMetricStore) CampaignClicks(ctx context.Context, entityDate time.Time, batchID, campaignID string) (int64, int64, error) {
	return f.clicks, f.impr, nil
}

func TestSafeDivideZeroDenominator(t *testing.T) {
	got := SafeDivide(decimal.NewFromInt(10), decimal.Zero)
	if got.Valid {
		t.Fatalf("zero denominator must yield null, got %s", got.Decimal)
	}
}

func TestSafeDivideZeroNumerator(t *testing.T) {
	got := SafeDivide(decimal.Zero, decimal.NewFromInt(4))
	if !got.Valid || !got.Decimal.IsZero() {
		t.Fatalf("0/4 is a valid zero, got %+v", got)
	}
}

func TestFetchDerivesRatios(t *testing.T) {
	store := &fakeMetricStore{rows: []storage.MetricRow{{
		CampaignID:  "c1",
		Spend:       decimal.NewFromInt(100),
		Revenue:     decimal.NewFromInt(25),
		NewUsers:    50,
		Impressions: 200000,
		Clicks:      4000,
	}}}
	view := NewView(store, zerolog.Nop())

	rows, err := view.Fetch(context.Background(), time.Now(), "b", "facebook")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	row := rows[0]

	checks := []struct {
		name string
		got  decimal.NullDecimal
		want string
	}{
		{"roas", row.ROAS, "0.25"},
		{"cpi", row.CPI, "2"},
		{"ctr", row.CTR, "0.02"},
		{"cvr", row.CVR, "0.0125"},
		{"cpm", row.CPM, "0.5"},
	}
	for _, c := range checks {
		if !c.got.Valid {
			t.Fatalf("%s should be valid", c.name)
		}
		if !c.got.Decimal.Equal(decimal.RequireFromString(c.want)) {
			t.Fatalf("%s = %s, want %s", c.name, c.got.Decimal, c.want)
		}
	}
}

func TestFetchZeroDenominatorsAreNull(t *testing.T) {
	store := &fakeMetricStore{rows: []storage.MetricRow{{
		CampaignID: "c1",
		Spend:      decimal.NewFromInt(100),
	}}}
	view := NewView(store, zerolog.Nop())

	rows, err := view.Fetch(context.Background(), time.Now(), "b", "facebook")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	row := rows[0]

	if row.CPI.Valid || row.CTR.Valid || row.CVR.Valid || row.CPM.Valid {
		t.Fatalf("zero denominators must stay null: %+v", row)
	}
	if !row.ROAS.Valid || !row.ROAS.Decimal.IsZero() {
		t.Fatalf("0/100 revenue is a valid zero ROAS: %+v", row.ROAS)
	}
}

func TestFetchIsIdempotent(t *testing.T) {
	store := &fakeMetricStore{rows: []storage.MetricRow{{
		CampaignID: "c1",
		Spend:      decimal.NewFromInt(10),
		Revenue:    decimal.NewFromInt(5),
	}}}
	view := NewView(store, zerolog.Nop())

	first, err := view.Fetch(context.Background(), time.Now(), "b", "facebook")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	second, err := view.Fetch(context.Background(), time.Now(), "b", "facebook")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if !first[0].ROAS.Decimal.Equal(second[0].ROAS.Decimal) {
		t.Fatalf("repeated fetches diverged: %s vs %s", first[0].ROAS.Decimal, second[0].ROAS.Decimal)
	}
}

func TestCampaignCTRNoImpressions(t *testing.T) {
	view := NewView(&fakeMetricStore{clicks: 10, impr: 0}, zerolog.Nop())

	got, err := view.CampaignCTR(context.Background(), time.Now(), "b", "c1")
	if err != nil {
		t.Fatalf("CampaignCTR: %v", err)
	}
	if got.Valid {
		t.Fatalf("no impressions must yield null CTR, got %s", got.Decimal)
	}
}
