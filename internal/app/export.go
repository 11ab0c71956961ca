package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"aitrader/internal/market"
	"aitrader/internal/storage"
)

// ExportOptions hold parameters for exporting analysis history.
type ExportOptions struct {
	Coin      market.Coin
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export renders stored analyses of one coin as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListAnalysesBetween(ctx, opts.Coin, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("coin", string(opts.Coin)).Msg("no analyses found for export window")
		return nil
	}

	downsampled := downsampleAnalyses(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting analyses")

	if opts.CSVPath != "" {
		if err := writeAnalysesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeAnalysesPNG(opts.PNGPath, opts.Coin, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleAnalyses(records []storage.AnalysisRecord, max int) []storage.AnalysisRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[len(records)-1:]
	}

	result := make([]storage.AnalysisRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeAnalysesCSV(path string, records []storage.AnalysisRecord) error {
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

	header := []string{"created_at", "analysis_id", "coin", "final_action", "final_confidence", "risk_level", "consensus_type", "whale_override", "model_tier", "whale_score", "volatility_ratio"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.AnalysisID,
			string(rec.Coin),
			string(rec.FinalAction),
			formatFloat(rec.FinalConfidence, 4),
			string(rec.RiskLevel),
			rec.ConsensusType,
			strconv.FormatBool(rec.WhaleOverride),
			rec.ModelTier,
			formatFloat(rec.WhaleScore, 2),
			formatFloat(rec.VolatilityRatio, 3),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeAnalysesPNG(path string, coin market.Coin, records []storage.AnalysisRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	confidence := make([]float64, len(records))
	whale := make([]float64, len(records))
	volatility := make([]float64, len(records))

	for i, rec := range records {
		x[i] = rec.CreatedAt
		confidence[i] = rec.FinalConfidence * 100
		whale[i] = rec.WhaleScore
		volatility[i] = rec.VolatilityRatio
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	ratioFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  string(coin) + " decisions",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Score (0-100)",
			ValueFormatter: pctFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Volatility ratio",
			ValueFormatter: ratioFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Confidence",
				XValues: x,
				YValues: confidence,
			},
			chart.TimeSeries{
				Name:    "Whale score",
				XValues: x,
				YValues: whale,
			},
			chart.TimeSeries{
				Name:    "Volatility ratio",
				XValues: x,
				YValues: volatility,
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

func formatFloat(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}
