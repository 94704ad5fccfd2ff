package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"campaign-signal-alerts/internal/alerting"
	"campaign-signal-alerts/internal/config"
	"campaign-signal-alerts/internal/metrics"
	"campaign-signal-alerts/internal/resolve"
	"campaign-signal-alerts/internal/rules"
	"campaign-signal-alerts/internal/scheduler"
	"campaign-signal-alerts/internal/storage"
	"campaign-signal-alerts/internal/suppression"
)

// Service orchestrates batch resolution, rule evaluation, suppression, and
// alert delivery.
type Service struct {
	scheduler   *scheduler.Scheduler
	resolver    *resolve.Resolver
	view        *metrics.View
	engine      *rules.Engine
	suppressor  *suppression.Controller
	signalStore storage.SignalStore
	notifier    alerting.Notifier
	logger      zerolog.Logger

	channels  []string
	alertsOn  bool
	recordTTL time.Duration
}

// New constructs the evaluation service.
func New(cfg *config.Config, sched *scheduler.Scheduler, resolver *resolve.Resolver, view *metrics.View, engine *rules.Engine, suppressor *suppression.Controller, signalStore storage.SignalStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:   sched,
		resolver:    resolver,
		view:        view,
		engine:      engine,
		suppressor:  suppressor,
		signalStore: signalStore,
		notifier:    notifier,
		logger:      logger.With().Str("component", "service").Logger(),
		channels:    cfg.Channels,
		alertsOn:    cfg.Alerting.Enabled,
		recordTTL:   cfg.Database.SignalRetention,
	}
}

// Run begins the aligned evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.EvaluateCycle)
}

// channelResult is one channel's share of a cycle before merging.
type channelResult struct {
	channel  string
	resolved resolve.Resolved
	signals  []rules.Signal
}

// EvaluateCycle runs one full evaluation for the bucket instant: every
// channel is resolved and evaluated concurrently, results are merged, then
// suppression runs exactly once per owner across the merged set. Channels
// that fail or have no usable batch are skipped without failing the cycle.
func (s *Service) EvaluateCycle(ctx context.Context, bucket time.Time) error {
	cycleID := uuid.NewString()
	logger := s.logger.With().Str("cycle_id", cycleID).Time("bucket", bucket).Logger()

	window := resolve.Window{
		Instant:     bucket,
		EntityDate:  bucket,
		Granularity: resolve.Hourly,
	}

	var (
		mu      sync.Mutex
		results []channelResult
		wg      sync.WaitGroup
	)
	for _, channel := range s.channels {
		wg.Add(1)
		go func(channel string) {
			defer wg.Done()
			res, err := s.evaluateChannel(ctx, channel, window)
			if err != nil {
				logger.Error().Err(err).Str("channel", channel).Msg("channel evaluation failed")
				return
			}
			if !res.resolved.Found {
				logger.Info().Str("channel", channel).Msg("no usable batch, skipping channel")
				return
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(channel)
	}
	wg.Wait()

	batchByChannel := make(map[string]resolve.Resolved, len(results))
	byOwner := make(map[string][]rules.Signal)
	for _, res := range results {
		batchByChannel[res.channel] = res.resolved
		for _, sig := range res.signals {
			byOwner[sig.Owner] = append(byOwner[sig.Owner], sig)
		}
	}

	emitted := 0
	for owner, signals := range byOwner {
		kept := signals
		if s.suppressor != nil {
			kept = s.suppressor.Filter(ctx, owner, signals, bucket)
		}
		if len(kept) == 0 {
			continue
		}
		emitted += len(kept)

		s.persistSignals(ctx, logger, cycleID, kept, batchByChannel)

		if s.alertsOn && s.notifier != nil {
			note := alerting.Notification{
				Owner:      owner,
				CycleID:    cycleID,
				EntityDate: dateOnly(bucket),
				Signals:    kept,
			}
			if err := s.notifier.Notify(ctx, note); err != nil {
				logger.Error().Err(err).Str("owner", owner).Msg("failed to dispatch notification")
			}
		}
	}

	s.pruneRecords(ctx, logger, bucket)

	logger.Info().
		Int("channels", len(results)).
		Int("signals", emitted).
		Msg("cycle complete")
	return nil
}

// pruneRecords drops persisted signals older than the retention window.
// Failures are logged and never fail the cycle.
func (s *Service) pruneRecords(ctx context.Context, logger zerolog.Logger, bucket time.Time) {
	if s.signalStore == nil || s.recordTTL <= 0 {
		return
	}
	cutoff := bucket.Add(-s.recordTTL)
	if err := s.signalStore.DeleteSignalsBefore(ctx, cutoff); err != nil {
		logger.Warn().Err(err).Time("cutoff", cutoff).Msg("failed to prune signal records")
	}
}

func (s *Service) evaluateChannel(ctx context.Context, channel string, window resolve.Window) (channelResult, error) {
	resolved := s.resolver.Resolve(ctx, channel, window)
	res := channelResult{channel: channel, resolved: resolved}
	if !resolved.Found {
		return res, nil
	}

	rows, err := s.view.Fetch(ctx, resolved.EntityDate, resolved.BatchID, channel)
	if err != nil {
		return res, fmt.Errorf("fetch %s rows: %w", channel, err)
	}

	res.signals = s.engine.Evaluate(ctx, resolved.EntityDate, rows)
	return res, nil
}

func (s *Service) persistSignals(ctx context.Context, logger zerolog.Logger, cycleID string, signals []rules.Signal, batches map[string]resolve.Resolved) {
	if s.signalStore == nil {
		return
	}
	for _, sig := range signals {
		resolved := batches[sig.Channel]
		rec := storage.SignalRecord{
			CycleID:    cycleID,
			RuleType:   string(sig.Type),
			Priority:   sig.Priority.String(),
			SubjectID:  sig.SubjectID,
			Owner:      sig.Owner,
			Channel:    sig.Channel,
			Message:    sig.Message,
			Action:     sig.Action,
			EntityDate: resolved.EntityDate,
			BatchID:    resolved.BatchID,
			CreatedAt:  sig.CreatedAt,
		}
		if _, err := s.signalStore.InsertSignal(ctx, rec); err != nil {
			logger.Error().Err(err).Str("subject_id", sig.SubjectID).Msg("failed to persist signal")
		}
	}
}

// CTRHistory resolves a campaign's click-through rate from a prior day's
// batch. It backs the creative-refresh rule.
type CTRHistory struct {
	resolver *resolve.Resolver
	view     *metrics.View
	lookback int
}

// NewCTRHistory constructs the historical CTR lookup. lookbackDays below 1
// is clamped to 1.
func NewCTRHistory(resolver *resolve.Resolver, view *metrics.View, lookbackDays int) *CTRHistory {
	if lookbackDays < 1 {
		lookbackDays = 1
	}
	return &CTRHistory{resolver: resolver, view: view, lookback: lookbackDays}
}

// YesterdayCTR returns the campaign's CTR from the lookback date, or null
// when no batch or no clicks data exists for that day.
func (h *CTRHistory) YesterdayCTR(ctx context.Context, channel, campaignID string, entityDate time.Time) (decimal.NullDecimal, error) {
	prior := dateOnly(entityDate).AddDate(0, 0, -h.lookback)
	resolved := h.resolver.ResolveDate(ctx, channel, prior)
	if !resolved.Found {
		return decimal.NullDecimal{}, nil
	}
	return h.view.CampaignCTR(ctx, resolved.EntityDate, resolved.BatchID, campaignID)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
