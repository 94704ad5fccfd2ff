package service

import (
	"context"
	"fmt"
	"time"

	"campaign-signal-alerts/internal/metrics"
	"campaign-signal-alerts/internal/resolve"
)

// ChannelReport is one channel's delta report for a window.
type ChannelReport struct {
	Channel  string
	Current  resolve.Resolved
	Baseline resolve.Resolved
	Summary  metrics.SummaryDelta
	Rows     []metrics.DeltaRow
}

// BuildReport resolves the current and baseline batches for every channel
// and computes campaign-level deltas between them. The current and baseline
// resolutions are independent, so each period gets its own best batch. A
// channel with no current batch is reported with Found=false rather than
// dropped, so callers can show the gap.
func (s *Service) BuildReport(ctx context.Context, window resolve.Window, key metrics.KeyFunc) ([]ChannelReport, error) {
	if key == nil {
		key = metrics.KeyByCampaign
	}

	reports := make([]ChannelReport, 0, len(s.channels))
	for _, channel := range s.channels {
		report, err := s.buildChannelReport(ctx, channel, window, key)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", channel, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (s *Service) buildChannelReport(ctx context.Context, channel string, window resolve.Window, key metrics.KeyFunc) (ChannelReport, error) {
	current := s.resolver.Resolve(ctx, channel, window)
	report := ChannelReport{Channel: channel, Current: current}
	if !current.Found {
		return report, nil
	}

	currentRows, err := s.view.Fetch(ctx, current.EntityDate, current.BatchID, channel)
	if err != nil {
		return report, fmt.Errorf("fetch current rows: %w", err)
	}
	currentSummary, err := s.view.Summary(ctx, current.EntityDate, current.BatchID, channel)
	if err != nil {
		return report, fmt.Errorf("fetch current summary: %w", err)
	}

	if window.Comparison == resolve.CompareNone {
		report.Summary = metrics.ComputeSummaryDelta(currentSummary, nil)
		report.Rows = metrics.ComputeDeltas(currentRows, nil, key)
		return report, nil
	}

	baseline := s.resolver.ResolveBaseline(ctx, channel, window)
	report.Baseline = baseline
	if !baseline.Found {
		report.Summary = metrics.ComputeSummaryDelta(currentSummary, nil)
		report.Rows = metrics.ComputeDeltas(currentRows, nil, key)
		return report, nil
	}

	baselineRows, err := s.view.Fetch(ctx, baseline.EntityDate, baseline.BatchID, channel)
	if err != nil {
		return report, fmt.Errorf("fetch baseline rows: %w", err)
	}
	baselineSummary, err := s.view.Summary(ctx, baseline.EntityDate, baseline.BatchID, channel)
	if err != nil {
		return report, fmt.Errorf("fetch baseline summary: %w", err)
	}

	report.Summary = metrics.ComputeSummaryDelta(currentSummary, &baselineSummary)
	report.Rows = metrics.ComputeDeltas(currentRows, baselineRows, key)
	return report, nil
}

// DailySummaries collects one summary per day across an inclusive date
// range, skipping days with no batch. It powers the export command.
func (s *Service) DailySummaries(ctx context.Context, channel string, from, to time.Time) ([]metrics.SummaryPoint, error) {
	from = dateOnly(from)
	to = dateOnly(to)
	if to.Before(from) {
		return nil, fmt.Errorf("date range inverted: %s after %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	var points []metrics.SummaryPoint
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		resolved := s.resolver.ResolveDate(ctx, channel, day)
		if !resolved.Found {
			continue
		}
		summary, err := s.view.Summary(ctx, resolved.EntityDate, resolved.BatchID, channel)
		if err != nil {
			return nil, fmt.Errorf("summary %s %s: %w", channel, day.Format("2006-01-02"), err)
		}
		points = append(points, metrics.SummaryPoint{Date: day, Summary: summary})
	}
	return points, nil
}
