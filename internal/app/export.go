package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"campaign-signal-alerts/internal/metrics"
)

// Export renders a channel's daily rollups as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Channel == "" {
		return errors.New("--channel is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store, nil, nil, nil)
	if err != nil {
		return err
	}

	to := opts.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	from := opts.From
	if from.IsZero() {
		from = to.AddDate(0, 0, -opts.MaxPoints)
	}

	points, err := svc.DailySummaries(ctx, opts.Channel, from, to)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Str("channel", opts.Channel).Msg("no rollups found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting rollups")

	if opts.CSVPath != "" {
		if err := writeRollupsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRollupsPNG(opts.PNGPath, opts.Channel, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsamplePoints(points []metrics.SummaryPoint, max int) []metrics.SummaryPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]metrics.SummaryPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeRollupsCSV(path string, points []metrics.SummaryPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "batch_id", "spend", "revenue", "new_users", "roas"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, point := range points {
		roas := ""
		if point.Summary.ROAS.Valid {
			roas = point.Summary.ROAS.Decimal.String()
		}
		record := []string{
			point.Date.Format("2006-01-02"),
			point.Summary.BatchID,
			point.Summary.Spend.String(),
			point.Summary.Revenue.String(),
			fmt.Sprintf("%d", point.Summary.NewUsers),
			roas,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRollupsPNG(path, channel string, points []metrics.SummaryPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	spend := make([]float64, len(points))
	revenue := make([]float64, len(points))
	roas := make([]float64, len(points))

	for i, point := range points {
		x[i] = point.Date
		spend[i] = point.Summary.Spend.InexactFloat64()
		revenue[i] = point.Summary.Revenue.InexactFloat64()
		if point.Summary.ROAS.Valid {
			roas[i] = point.Summary.ROAS.Decimal.InexactFloat64()
		}
	}

	moneyFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  channel,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "USD",
			ValueFormatter: moneyFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "ROAS",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.3f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Spend",
				XValues: x,
				YValues: spend,
			},
			chart.TimeSeries{
				Name:    "Revenue",
				XValues: x,
				YValues: revenue,
			},
			chart.TimeSeries{
				Name:    "ROAS",
				XValues: x,
				YValues: roas,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
