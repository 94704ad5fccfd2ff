package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"campaign-signal-alerts/internal/metrics"
	"campaign-signal-alerts/internal/resolve"
	"campaign-signal-alerts/internal/service"
)

// Report prints per-channel campaign deltas for a window.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store, nil, nil, nil)
	if err != nil {
		return err
	}

	window := resolve.Window{
		Instant:     opts.Date,
		EntityDate:  opts.Date,
		Granularity: opts.Granularity,
		Comparison:  opts.Comparison,
	}

	key := metrics.KeyByCampaign
	if opts.ByCountry {
		key = metrics.KeyByCampaignCountry
	}

	reports, err := svc.BuildReport(ctx, window, key)
	if err != nil {
		return err
	}

	for _, report := range reports {
		printChannelReport(report)
	}
	return nil
}

func printChannelReport(report service.ChannelReport) {
	fmt.Fprintf(os.Stdout, "== %s ==\n", report.Channel)
	if !report.Current.Found {
		fmt.Fprintln(os.Stdout, "no usable batch")
		fmt.Fprintln(os.Stdout)
		return
	}

	fmt.Fprintf(os.Stdout, "batch %s (%s, %s)", report.Current.BatchID, report.Current.EntityDate.Format("2006-01-02"), report.Current.Confidence)
	if report.Baseline.Found {
		fmt.Fprintf(os.Stdout, " vs %s (%s)", report.Baseline.BatchID, report.Baseline.EntityDate.Format("2006-01-02"))
	}
	fmt.Fprintln(os.Stdout)

	summary := report.Summary
	fmt.Fprintf(os.Stdout, "total spend %s (%s)  revenue %s (%s)  roas %s\n",
		summary.Current.Spend.StringFixed(2),
		formatDelta(summary.Spend),
		summary.Current.Revenue.StringFixed(2),
		formatDelta(summary.Revenue),
		formatNullable(summary.Current.ROAS, 4),
	)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Campaign\tCountry\tSpend\tΔSpend%\tRevenue\tΔRevenue%\tROAS\tΔROAS")
	for _, row := range report.Rows {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Current.CampaignName,
			row.Current.Country,
			row.Current.Spend.StringFixed(2),
			formatNullable(row.Spend.Pct, 1),
			row.Current.Revenue.StringFixed(2),
			formatNullable(row.Revenue.Pct, 1),
			formatNullable(row.Current.ROAS, 4),
			formatNullable(row.ROASPoints, 4),
		)
	}
	writer.Flush()
	fmt.Fprintln(os.Stdout)
}

func formatDelta(d metrics.Delta) string {
	if !d.Pct.Valid {
		return "n/a"
	}
	return d.Pct.Decimal.StringFixed(1) + "%"
}

func formatNullable(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return "n/a"
	}
	return v.Decimal.StringFixed(places)
}
