package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"campaign-signal-alerts/internal/app"
	"campaign-signal-alerts/internal/resolve"
)

var (
	reportDate        string
	reportGranularity string
	reportComparison  string
	reportByCountry   bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print per-channel campaign deltas for a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		date := time.Now().UTC()
		if reportDate != "" {
			parsed, err := time.Parse("2006-01-02", reportDate)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			date = parsed
		}

		granularity, err := parseGranularity(reportGranularity)
		if err != nil {
			return err
		}

		comparison, err := parseComparison(reportComparison)
		if err != nil {
			return err
		}

		opts := app.ReportOptions{
			Date:        date,
			Granularity: granularity,
			Comparison:  comparison,
			ByCountry:   reportByCountry,
		}
		return getApp().Report(cmd.Context(), opts)
	},
}

func parseGranularity(v string) (resolve.Granularity, error) {
	switch resolve.Granularity(v) {
	case resolve.Hourly, resolve.Daily, resolve.Weekly:
		return resolve.Granularity(v), nil
	default:
		return "", fmt.Errorf("invalid --granularity value %q (hourly, daily, weekly)", v)
	}
}

func parseComparison(v string) (resolve.Comparison, error) {
	switch resolve.Comparison(v) {
	case resolve.CompareNone, resolve.ComparePriorHour, resolve.ComparePriorDay, resolve.ComparePriorWeek, resolve.CompareSameHourYesterday:
		return resolve.Comparison(v), nil
	default:
		return "", fmt.Errorf("invalid --compare value %q", v)
	}
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Report date (YYYY-MM-DD, defaults to today)")
	reportCmd.Flags().StringVar(&reportGranularity, "granularity", string(resolve.Hourly), "Window granularity (hourly, daily, weekly)")
	reportCmd.Flags().StringVar(&reportComparison, "compare", string(resolve.ComparePriorHour), "Baseline period (none, prior-hour, prior-day, prior-week, same-hour-yesterday)")
	reportCmd.Flags().BoolVar(&reportByCountry, "by-country", false, "Break campaigns out by country")
}
