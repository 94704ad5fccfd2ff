package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"campaign-signal-alerts/internal/catalog"
	"campaign-signal-alerts/internal/metrics"
	"campaign-signal-alerts/internal/resolve"
	"campaign-signal-alerts/internal/rules"
	"campaign-signal-alerts/internal/service"
	"campaign-signal-alerts/internal/storage"
)

// SimulateAlert runs one synthetic evaluation cycle through the real rule,
// suppression, and notification path without touching the warehouse. The
// synthetic rows are built from the configured thresholds so a stop-loss
// and a scale-up signal always fire.
func (a *App) SimulateAlert(ctx context.Context) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no notification channel configured")
	}

	now := time.Now().UTC()
	owner := "simulation"
	if len(a.Config.Owners) > 0 {
		owner = a.Config.Owners[0]
	}

	channel := "facebook"
	if len(a.Config.Channels) > 0 {
		channel = a.Config.Channels[0]
	}

	store := newSyntheticStore(a.Config.Rules.StopLossMinSpend, a.Config.Rules.ScaleUpMinROAS, a.Config.Rules.ScaleUpMinSpend, a.Config.Rules.ScaleUpTargetCPI, owner, channel, now)

	cat := catalog.New(store, a.Config.Catalog.RowCountCeiling, a.Logger)
	resolver := resolve.New(cat, a.Logger)
	view := metrics.NewView(store, a.Logger)

	ruleCfg := rules.ConfigFromSettings(a.Config.Rules)
	engine, err := rules.NewEngine(ruleCfg, store, rules.NewOwnerParser([]string{owner}), a.Logger)
	if err != nil {
		return err
	}

	cfg := *a.Config
	cfg.Channels = []string{channel}
	svc := service.New(&cfg, nil, resolver, view, engine, nil, nil, notifier, a.Logger)

	return svc.EvaluateCycle(ctx, now)
}

// syntheticStore serves one in-memory batch shaped to trip the rules.
type syntheticStore struct {
	batch storage.Batch
	rows  []storage.MetricRow
}

func newSyntheticStore(stopLossMinSpend, scaleUpMinROAS, scaleUpMinSpend, scaleUpTargetCPI float64, owner, channel string, now time.Time) *syntheticStore {
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	batchID := now.Format("20060102_150405")

	losingSpend := decimal.NewFromFloat(stopLossMinSpend).Mul(decimal.NewFromInt(2))
	winningSpend := decimal.NewFromFloat(scaleUpMinSpend).Mul(decimal.NewFromInt(2))
	winningRevenue := winningSpend.Mul(decimal.NewFromFloat(scaleUpMinROAS)).Mul(decimal.NewFromInt(2))
	winningUsers := winningSpend.Div(decimal.NewFromFloat(scaleUpTargetCPI)).Mul(decimal.NewFromInt(2)).IntPart()
	if winningUsers < 1 {
		winningUsers = 1
	}

	rows := []storage.MetricRow{
		{
			CampaignID:   "sim-stop-loss",
			CampaignName: fmt.Sprintf("%s_simulated_losing", owner),
			Channel:      channel,
			Country:      "US",
			Spend:        losingSpend,
			Revenue:      decimal.Zero,
			Impressions:  40000,
			Clicks:       300,
		},
		{
			CampaignID:   "sim-scale-up",
			CampaignName: fmt.Sprintf("%s_simulated_winning", owner),
			Channel:      channel,
			Country:      "US",
			Spend:        winningSpend,
			Revenue:      winningRevenue,
			NewUsers:     winningUsers,
			Impressions:  90000,
			Clicks:       2100,
		},
	}

	return &syntheticStore{
		batch: storage.Batch{ID: batchID, Channel: channel, EntityDate: date, RowCount: int64(len(rows))},
		rows:  rows,
	}
}

func (s *syntheticStore) ListBatches(ctx context.Context, channel string, entityDate time.Time) ([]storage.Batch, error) {
	if !entityDate.Equal(s.batch.EntityDate) {
		return nil, nil
	}
	return []storage.Batch{s.batch}, nil
}

func (s *syntheticStore) CampaignRows(ctx context.Context, entityDate time.Time, batchID, channel string) ([]storage.MetricRow, error) {
	return s.rows, nil
}

func (s *syntheticStore) SummaryRow(ctx context.Context, entityDate time.Time, batchID, channel string) (storage.SummaryRow, error) {
	summary := storage.SummaryRow{EntityDate: entityDate, BatchID: batchID, Channel: channel}
	for _, row := range s.rows {
		summary.Spend = summary.Spend.Add(row.Spend)
		summary.Revenue = summary.Revenue.Add(row.Revenue)
		summary.NewUsers += row.NewUsers
	}
	summary.ROAS = metrics.SafeDivide(summary.Revenue, summary.Spend)
	return summary, nil
}

func (s *syntheticStore) CampaignClicks(ctx context.Context, entityDate time.Time, batchID, campaignID string) (int64, int64, error) {
	for _, row := range s.rows {
		if row.CampaignID == campaignID {
			return row.Clicks, row.Impressions, nil
		}
	}
	return 0, 0, nil
}

// YesterdayCTR keeps the creative-refresh rule quiet during simulation.
func (s *syntheticStore) YesterdayCTR(ctx context.Context, channel, campaignID string, entityDate time.Time) (decimal.NullDecimal, error) {
	return decimal.NullDecimal{}, nil
}

var _ storage.BatchStore = (*syntheticStore)(nil)
var _ storage.MetricStore = (*syntheticStore)(nil)
var _ rules.HistoryLookup = (*syntheticStore)(nil)
