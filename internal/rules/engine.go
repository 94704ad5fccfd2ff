package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"campaign-signal-alerts/internal/config"
	"campaign-signal-alerts/internal/storage"
)

// Config carries the injected rule thresholds. No process-wide state: one
// immutable value per engine.
type Config struct {
	StopLossMinSpend decimal.Decimal
	StopLossMaxROAS  decimal.Decimal
	ScaleUpMinROAS   decimal.Decimal
	ScaleUpMinSpend  decimal.Decimal
	ScaleUpTargetCPI decimal.Decimal
	CreativeCTRDrop  decimal.Decimal
	CreativeCTRFloor decimal.Decimal
	LookbackDays     int
}

// ConfigFromSettings converts the raw configuration section.
func ConfigFromSettings(cfg config.RulesConfig) Config {
	return Config{
		StopLossMinSpend: decimal.NewFromFloat(cfg.StopLossMinSpend),
		StopLossMaxROAS:  decimal.NewFromFloat(cfg.StopLossMaxROAS),
		ScaleUpMinROAS:   decimal.NewFromFloat(cfg.ScaleUpMinROAS),
		ScaleUpMinSpend:  decimal.NewFromFloat(cfg.ScaleUpMinSpend),
		ScaleUpTargetCPI: decimal.NewFromFloat(cfg.ScaleUpTargetCPI),
		CreativeCTRDrop:  decimal.NewFromFloat(cfg.CreativeCTRDrop),
		CreativeCTRFloor: decimal.NewFromFloat(cfg.CreativeCTRFloor),
		LookbackDays:     cfg.LookbackDays,
	}
}

// Validate rejects threshold values that would make evaluation nonsense.
// Invalid configuration fails at engine construction, never mid-cycle.
func (c Config) Validate() error {
	if c.StopLossMinSpend.IsNegative() || c.ScaleUpMinSpend.IsNegative() {
		return fmt.Errorf("rules: spend thresholds cannot be negative")
	}
	if c.StopLossMaxROAS.IsNegative() || c.ScaleUpMinROAS.IsNegative() {
		return fmt.Errorf("rules: roas thresholds cannot be negative")
	}
	if !c.ScaleUpTargetCPI.IsPositive() {
		return fmt.Errorf("rules: scale_up_target_cpi must be positive")
	}
	if c.CreativeCTRDrop.IsNegative() || c.CreativeCTRFloor.IsNegative() {
		return fmt.Errorf("rules: creative ctr thresholds cannot be negative")
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("rules: lookback_days must be positive")
	}
	return nil
}

// HistoryLookup resolves one campaign's prior-day CTR. Returning a null
// decimal means no usable history, which never triggers a rule.
type HistoryLookup interface {
	YesterdayCTR(ctx context.Context, channel, campaignID string, entityDate time.Time) (decimal.NullDecimal, error)
}

// Engine evaluates the ordered rule chain per campaign. Campaigns are
// independent; rules short-circuit, so each evaluation emits at most one
// signal.
type Engine struct {
	cfg     Config
	history HistoryLookup
	owners  *OwnerParser
	logger  zerolog.Logger
}

// NewEngine validates the thresholds and constructs an engine.
func NewEngine(cfg Config, history HistoryLookup, owners *OwnerParser, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if owners == nil {
		owners = NewOwnerParser(nil)
	}
	return &Engine{
		cfg:     cfg,
		history: history,
		owners:  owners,
		logger:  logger.With().Str("component", "rule_engine").Logger(),
	}, nil
}

// Evaluate runs the chain over every row and returns the emitted signals,
// most urgent first. A missing metric makes the affected rule evaluate to
// "not triggered"; absence of data is never a positive signal.
func (e *Engine) Evaluate(ctx context.Context, entityDate time.Time, rows []storage.MetricRow) []Signal {
	now := time.Now().UTC()
	signals := make([]Signal, 0)

	for _, row := range rows {
		owner := row.Owner
		if owner == "" {
			owner = e.owners.OwnerOrUnknown(row.CampaignName)
		}

		if sig, ok := e.checkStopLoss(row); ok {
			sig.Owner = owner
			sig.CreatedAt = now
			signals = append(signals, sig)
			continue
		}
		if sig, ok := e.checkScaleUp(row); ok {
			sig.Owner = owner
			sig.CreatedAt = now
			signals = append(signals, sig)
			continue
		}
		if sig, ok := e.checkCreativeRefresh(ctx, entityDate, row); ok {
			sig.Owner = owner
			sig.CreatedAt = now
			signals = append(signals, sig)
		}
	}

	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Priority < signals[j].Priority
	})

	e.logger.Info().
		Str("entity_date", entityDate.Format("2006-01-02")).
		Int("campaigns", len(rows)).
		Int("signals", len(signals)).
		Msg("rule evaluation finished")
	return signals
}

// checkStopLoss: spend above the floor with zero revenue or ROAS below the
// stop-loss ceiling.
func (e *Engine) checkStopLoss(row storage.MetricRow) (Signal, bool) {
	if !row.Spend.GreaterThan(e.cfg.StopLossMinSpend) {
		return Signal{}, false
	}
	roasBelow := row.ROAS.Valid && row.ROAS.Decimal.LessThan(e.cfg.StopLossMaxROAS)
	if !row.Revenue.IsZero() && !roasBelow {
		return Signal{}, false
	}

	return Signal{
		Type:        TypeStopLoss,
		Priority:    PriorityCritical,
		SubjectID:   row.CampaignID,
		SubjectName: row.CampaignName,
		Channel:     row.Channel,
		Country:     row.Country,
		Message: fmt.Sprintf("spend $%s, ROAS %s, revenue $%s",
			row.Spend.StringFixed(2), formatRatioPct(row.ROAS), row.Revenue.StringFixed(2)),
		Action: "pause the campaign immediately",
		Metrics: map[string]string{
			"spend":   row.Spend.StringFixed(2),
			"revenue": row.Revenue.StringFixed(2),
			"roas":    formatRatio(row.ROAS),
		},
	}, true
}

// checkScaleUp: healthy ROAS, meaningful spend, CPI under target. A null
// CPI (no attributed installs) means not triggered.
func (e *Engine) checkScaleUp(row storage.MetricRow) (Signal, bool) {
	if !row.ROAS.Valid || !row.ROAS.Decimal.GreaterThan(e.cfg.ScaleUpMinROAS) {
		return Signal{}, false
	}
	if !row.Spend.GreaterThan(e.cfg.ScaleUpMinSpend) {
		return Signal{}, false
	}
	if !row.CPI.Valid || !row.CPI.Decimal.LessThan(e.cfg.ScaleUpTargetCPI) {
		return Signal{}, false
	}

	return Signal{
		Type:        TypeScaleUp,
		Priority:    PriorityHigh,
		SubjectID:   row.CampaignID,
		SubjectName: row.CampaignName,
		Channel:     row.Channel,
		Country:     row.Country,
		Message: fmt.Sprintf("ROAS %s, CPI $%s, spend $%s",
			formatRatioPct(row.ROAS), row.CPI.Decimal.StringFixed(2), row.Spend.StringFixed(2)),
		Action: "raise budget ~20% or duplicate into additional placements",
		Metrics: map[string]string{
			"spend":     row.Spend.StringFixed(2),
			"roas":      formatRatio(row.ROAS),
			"cpi":       row.CPI.Decimal.StringFixed(4),
			"new_users": fmt.Sprintf("%d", row.NewUsers),
		},
	}, true
}

// checkCreativeRefresh: only campaigns whose ROAS already clears the
// scale-up bar are eligible: the rule flags creative fatigue on otherwise
// healthy campaigns, via CTR decay against yesterday or an absolute floor.
func (e *Engine) checkCreativeRefresh(ctx context.Context, entityDate time.Time, row storage.MetricRow) (Signal, bool) {
	if !row.ROAS.Valid || row.ROAS.Decimal.LessThan(e.cfg.ScaleUpMinROAS) {
		return Signal{}, false
	}

	var yesterdayCTR decimal.NullDecimal
	if e.history != nil {
		ctr, err := e.history.YesterdayCTR(ctx, row.Channel, row.CampaignID, entityDate)
		if err != nil {
			e.logger.Debug().Err(err).Str("campaign_id", row.CampaignID).Msg("ctr history lookup failed")
		} else {
			yesterdayCTR = ctr
		}
	}

	ctrDrop := decimal.NullDecimal{}
	if yesterdayCTR.Valid && yesterdayCTR.Decimal.IsPositive() && row.CTR.Valid {
		drop := yesterdayCTR.Decimal.Sub(row.CTR.Decimal).Div(yesterdayCTR.Decimal)
		ctrDrop = decimal.NullDecimal{Decimal: drop, Valid: true}
	}

	dropped := ctrDrop.Valid && ctrDrop.Decimal.GreaterThan(e.cfg.CreativeCTRDrop)
	belowFloor := row.CTR.Valid && row.CTR.Decimal.LessThan(e.cfg.CreativeCTRFloor)
	if !dropped && !belowFloor {
		return Signal{}, false
	}

	return Signal{
		Type:        TypeCreativeRefresh,
		Priority:    PriorityMedium,
		SubjectID:   row.CampaignID,
		SubjectName: row.CampaignName,
		Channel:     row.Channel,
		Country:     row.Country,
		Message: fmt.Sprintf("CTR %s (drop %s vs yesterday), creative fatigue",
			formatRatioPct(row.CTR), formatRatioPct(ctrDrop)),
		Action: "rotate in fresh creatives for this campaign",
		Metrics: map[string]string{
			"ctr":           formatRatio(row.CTR),
			"yesterday_ctr": formatRatio(yesterdayCTR),
			"ctr_drop":      formatRatio(ctrDrop),
			"roas":          formatRatio(row.ROAS),
		},
	}, true
}

func formatRatio(v decimal.NullDecimal) string {
	if !v.Valid {
		return "n/a"
	}
	return v.Decimal.StringFixed(4)
}

func formatRatioPct(v decimal.NullDecimal) string {
	if !v.Valid {
		return "n/a"
	}
	return v.Decimal.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}
