package rules

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"campaign-signal-alerts/internal/storage"
)

func testConfig() Config {
	return Config{
		StopLossMinSpend: decimal.NewFromInt(30),
		StopLossMaxROAS:  decimal.NewFromFloat(0.10),
		ScaleUpMinROAS:   decimal.NewFromFloat(0.40),
		ScaleUpMinSpend:  decimal.NewFromInt(50),
		ScaleUpTargetCPI: decimal.NewFromInt(2),
		CreativeCTRDrop:  decimal.NewFromFloat(0.20),
		CreativeCTRFloor: decimal.NewFromFloat(0.01),
		LookbackDays:     1,
	}
}

type fakeHistory struct {
	ctr decimal.NullDecimal
	err error
}

func (f *fakeHistory) YesterdayCTR(ctx context.Context, channel, campaignID string, entityDate time.Time) (decimal.NullDecimal, error) {
	return f.ctr, f.err
}

func validCTR(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(v), Valid: true}
}

func derivedRow(id, name string, spend, revenue float64, newUsers, impressions, clicks int64) storage.MetricRow {
	row := storage.MetricRow{
		CampaignID:   id,
		CampaignName: name,
		Channel:      "facebook",
		Country:      "US",
		Spend:        decimal.NewFromFloat(spend),
		Revenue:      decimal.NewFromFloat(revenue),
		NewUsers:     newUsers,
		Impressions:  impressions,
		Clicks:       clicks,
	}
	if !row.Spend.IsZero() {
		row.ROAS = decimal.NullDecimal{Decimal: row.Revenue.Div(row.Spend), Valid: true}
	}
	if newUsers > 0 {
		row.CPI = decimal.NullDecimal{Decimal: row.Spend.Div(decimal.NewFromInt(newUsers)), Valid: true}
	}
	if impressions > 0 {
		row.CTR = decimal.NullDecimal{Decimal: decimal.NewFromInt(clicks).Div(decimal.NewFromInt(impressions)), Valid: true}
	}
	return row
}

func newTestEngine(t *testing.T, history HistoryLookup) *Engine {
	t.Helper()
	engine, err := NewEngine(testConfig(), history, NewOwnerParser([]string{"Alice", "bob"}), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func TestStopLossZeroRevenue(t *testing.T) {
	engine := newTestEngine(t, nil)
	row := derivedRow("c1", "alice_us_android", 500, 0, 0, 10000, 200)

	signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row})
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	sig := signals[0]
	if sig.Type != TypeStopLoss || sig.Priority != PriorityCritical {
		t.Fatalf("wrong signal: %+v", sig)
	}
	if sig.Owner != "alice" {
		t.Fatalf("owner = %q", sig.Owner)
	}
}

func TestStopLossLowROAS(t *testing.T) {
	engine := newTestEngine(t, nil)
	row := derivedRow("c1", "alice_us", 100, 5, 10, 10000, 200)

	signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row})
	if len(signals) != 1 || signals[0].Type != TypeStopLoss {
		t.Fatalf("ROAS 0.05 below 0.10 must stop-loss: %+v", signals)
	}
}

func TestStopLossBoundaryNotTriggered(t *testing.T) {
	engine := newTestEngine(t, nil)
	// Spend exactly at the floor and ROAS exactly at the ceiling: strict
	// comparisons on both, so neither side trips.
	row := derivedRow("c1", "alice_us", 30, 0, 0, 0, 0)

	if signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row}); len(signals) != 0 {
		t.Fatalf("spend == floor must not trigger: %+v", signals)
	}

	row = derivedRow("c2", "alice_us", 100, 10, 60, 0, 0)
	if signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row}); len(signals) != 0 {
		t.Fatalf("ROAS == ceiling must not trigger: %+v", signals)
	}
}

func TestScaleUp(t *testing.T) {
	engine := newTestEngine(t, nil)
	// spend 1000, revenue 550 (ROAS 0.55), 667 users (CPI ~1.50)
	row := derivedRow("c1", "bob_jp_ios", 1000, 550, 667, 90000, 2000)

	signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row})
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	sig := signals[0]
	if sig.Type != TypeScaleUp || sig.Priority != PriorityHigh {
		t.Fatalf("wrong signal: %+v", sig)
	}
	if sig.Owner != "bob" {
		t.Fatalf("owner = %q", sig.Owner)
	}
}

func TestScaleUpNullCPINotTriggered(t *testing.T) {
	engine := newTestEngine(t, nil)
	row := derivedRow("c1", "bob_jp", 1000, 550, 0, 90000, 2000)

	if signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row}); len(signals) != 0 {
		t.Fatalf("null CPI never triggers scale-up: %+v", signals)
	}
}

func TestZeroSpendNoSignals(t *testing.T) {
	engine := newTestEngine(t, nil)
	row := derivedRow("c1", "alice_us", 0, 0, 0, 0, 0)

	if signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row}); len(signals) != 0 {
		t.Fatalf("zero spend must stay silent: %+v", signals)
	}
}

func TestCreativeRefreshCTRDrop(t *testing.T) {
	engine := newTestEngine(t, &fakeHistory{ctr: validCTR("0.04")})
	// ROAS 0.50 healthy, CTR 0.02 = 50% drop vs yesterday's 0.04.
	row := derivedRow("c1", "alice_us", 100, 50, 10, 100000, 2000)

	signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row})
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if signals[0].Type != TypeCreativeRefresh || signals[0].Priority != PriorityMedium {
		t.Fatalf("wrong signal: %+v", signals[0])
	}
}

func TestCreativeRefreshFloorWithoutHistory(t *testing.T) {
	engine := newTestEngine(t, &fakeHistory{})
	// CTR 0.005 below the absolute floor; no history needed.
	row := derivedRow("c1", "alice_us", 100, 50, 10, 200000, 1000)

	signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row})
	if len(signals) != 1 || signals[0].Type != TypeCreativeRefresh {
		t.Fatalf("CTR below floor must trigger: %+v", signals)
	}
}

func TestCreativeRefreshUnhealthyROASIneligible(t *testing.T) {
	engine := newTestEngine(t, &fakeHistory{ctr: validCTR("0.04")})
	// ROAS 0.20 below the scale-up bar: not eligible no matter the CTR.
	row := derivedRow("c1", "alice_us", 20, 4, 10, 200000, 1000)

	if signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row}); len(signals) != 0 {
		t.Fatalf("unhealthy ROAS must not creative-refresh: %+v", signals)
	}
}

func TestCreativeRefreshHistoryErrorTolerated(t *testing.T) {
	engine := newTestEngine(t, &fakeHistory{err: context.DeadlineExceeded})
	row := derivedRow("c1", "alice_us", 100, 50, 10, 100000, 2000)

	if signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row}); len(signals) != 0 {
		t.Fatalf("history failure falls back to no-history, CTR 0.02 is healthy: %+v", signals)
	}
}

func TestShortCircuitOneSignalPerCampaign(t *testing.T) {
	engine := newTestEngine(t, &fakeHistory{ctr: validCTR("0.5")})
	// Qualifies for stop-loss and, numerically, for creative refresh; only
	// the first matching rule may emit.
	row := derivedRow("c1", "alice_us", 500, 0, 0, 100000, 2000)

	signals := engine.Evaluate(context.Background(), time.Now(), []storage.MetricRow{row})
	if len(signals) != 1 || signals[0].Type != TypeStopLoss {
		t.Fatalf("chain must short-circuit at stop-loss: %+v", signals)
	}
}

func TestEvaluateOrdersByPriority(t *testing.T) {
	engine := newTestEngine(t, nil)
	rows := []storage.MetricRow{
		derivedRow("winner", "bob_jp", 1000, 550, 667, 90000, 2000),
		derivedRow("loser", "alice_us", 500, 0, 0, 10000, 200),
	}

	signals := engine.Evaluate(context.Background(), time.Now(), rows)
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	if signals[0].Type != TypeStopLoss || signals[1].Type != TypeScaleUp {
		t.Fatalf("critical must sort first: %+v", signals)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := testConfig()
	bad.ScaleUpTargetCPI = decimal.Zero
	if err := bad.Validate(); err == nil {
		t.Fatal("zero target CPI must be rejected")
	}

	bad = testConfig()
	bad.StopLossMinSpend = decimal.NewFromInt(-1)
	if err := bad.Validate(); err == nil {
		t.Fatal("negative spend threshold must be rejected")
	}

	bad = testConfig()
	bad.LookbackDays = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("zero lookback must be rejected")
	}
}
