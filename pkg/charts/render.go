package charts

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"csvanalyst/pkg/dataset"
	"csvanalyst/pkg/logx"
	"csvanalyst/pkg/stats"
	"csvanalyst/pkg/utils"
)

// maxTickLabel bounds category tick labels; longer values are shortened.
const maxTickLabel = 18

//nolint:gochecknoglobals // Package logger for chart rendering
var logger = logx.NewLogger("charts")

// Chart is a rendered image file.
type Chart struct {
	Spec
	Path string
}

// Render draws every spec into opts.Dir. Chart files left by earlier runs (names starting with
// a chart kind prefix and ending in the configured format) are removed first, so the
// directory holds exactly this run's charts. Other files are never touched.
func Render(ctx context.Context, ds *dataset.Dataset, p *stats.Profile, specs []Spec, opts Options) ([]Chart, error) {
	opts = opts.withDefaults()
	if opts.Dir == "" {
		return nil, fmt.Errorf("charts: output directory not set")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chart directory %s: %w", opts.Dir, err)
	}

	prefixes := make([]string, len(AllKinds))
	for i, k := range AllKinds {
		prefixes[i] = string(k) + "_"
	}
	removed, err := utils.RemoveMatching(opts.Dir, prefixes, "."+opts.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to remove stale charts: %w", err)
	}
	if len(removed) > 0 {
		logx.Debug(ctx, "charts", "removed %d stale chart files from %s", len(removed), opts.Dir)
	}

	width := vg.Length(opts.WidthInches) * vg.Inch
	height := vg.Length(opts.HeightInches) * vg.Inch

	charts := make([]Chart, 0, len(specs))
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return charts, fmt.Errorf("rendering interrupted: %w", err)
		}

		plt, err := build(ds, p, spec)
		if err != nil {
			return charts, fmt.Errorf("chart %s: %w", spec.Name, err)
		}

		path := filepath.Join(opts.Dir, spec.FileName(opts.Format))
		if err := plt.Save(width, height, path); err != nil {
			return charts, fmt.Errorf("failed to save chart %s: %w", path, err)
		}
		logger.Info("📊 Rendered %s", path)
		charts = append(charts, Chart{Spec: spec, Path: path})
	}
	return charts, nil
}

func build(ds *dataset.Dataset, p *stats.Profile, spec Spec) (*plot.Plot, error) {
	plt := plot.New()
	plt.Title.Text = spec.Title
	plt.X.Label.Text = spec.XLabel
	plt.Y.Label.Text = spec.YLabel

	var err error
	switch spec.Kind {
	case KindHistogram:
		err = addHistogram(plt, ds, spec)
	case KindBar:
		err = addBar(plt, p, spec)
	case KindHeatmap:
		err = addHeatmap(plt, p, spec)
	case KindScatter:
		err = addScatter(plt, ds, spec)
	case KindLine:
		err = addLine(plt, ds, spec)
	default:
		err = fmt.Errorf("unknown chart kind %q", spec.Kind)
	}
	if err != nil {
		return nil, err
	}
	return plt, nil
}

func column(ds *dataset.Dataset, name string) ([]string, error) {
	values, ok := ds.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not in dataset", name)
	}
	return values, nil
}

func addHistogram(plt *plot.Plot, ds *dataset.Dataset, spec Spec) error {
	raw, err := column(ds, spec.Columns[0])
	if err != nil {
		return err
	}
	values := stats.NumericValues(raw)
	if len(values) == 0 {
		return fmt.Errorf("column %q has no numeric values", spec.Columns[0])
	}

	h, err := plotter.NewHist(plotter.Values(values), max(spec.Bins, 1))
	if err != nil {
		return err
	}
	h.FillColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	plt.Add(h)
	return nil
}

func addBar(plt *plot.Plot, p *stats.Profile, spec Spec) error {
	col, ok := p.Column(spec.Columns[0])
	if !ok || len(col.Counts) == 0 {
		return fmt.Errorf("column %q has no values to count", spec.Columns[0])
	}

	counts := make(plotter.Values, len(col.Counts))
	labels := make([]string, len(col.Counts))
	for i, vc := range col.Counts {
		counts[i] = float64(vc.Count)
		labels[i] = shorten(vc.Value)
	}

	bars, err := plotter.NewBarChart(counts, vg.Points(18))
	if err != nil {
		return err
	}
	bars.Color = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	plt.Add(bars)
	plt.NominalX(labels...)
	if len(labels) > 5 {
		plt.X.Tick.Label.Rotation = math.Pi / 4
		plt.X.Tick.Label.XAlign = draw.XRight
		plt.X.Tick.Label.YAlign = draw.YCenter
	}
	return nil
}

// correlationGrid adapts a correlation matrix to plotter.GridXYZ. Row r is drawn from the
// bottom, so it maps to the matrix row counted from the end to keep the first column on top.
type correlationGrid struct {
	values [][]float64
}

func (g correlationGrid) Dims() (c, r int) { return len(g.values), len(g.values) }
func (g correlationGrid) Z(c, r int) float64 {
	return g.values[len(g.values)-1-r][c]
}
func (g correlationGrid) X(c int) float64 { return float64(c) }
func (g correlationGrid) Y(r int) float64 { return float64(r) }

func addHeatmap(plt *plot.Plot, p *stats.Profile, spec Spec) error {
	corr := p.Correlation
	n := len(corr.Columns)
	if n < 2 {
		return fmt.Errorf("heatmap needs at least two numeric columns, have %d", n)
	}

	grid := correlationGrid{values: corr.Values}
	heat := plotter.NewHeatMap(grid, palette.Heat(21, 1))
	heat.Min, heat.Max = -1, 1
	heat.NaN = color.Gray{Y: 200}
	plt.Add(heat)

	xys := make(plotter.XYs, 0, n*n)
	labels := make([]string, 0, n*n)
	for c := 0; c < n; c++ {
		for r := 0; r < n; r++ {
			v := grid.Z(c, r)
			label := "n/a"
			if !math.IsNaN(v) {
				label = fmt.Sprintf("%.2f", v)
			}
			xys = append(xys, plotter.XY{X: float64(c), Y: float64(r)})
			labels = append(labels, label)
		}
	}
	values, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return err
	}
	for i := range values.TextStyle {
		values.TextStyle[i].XAlign = draw.XCenter
		values.TextStyle[i].YAlign = draw.YCenter
	}
	plt.Add(values)

	xNames := make([]string, n)
	yNames := make([]string, n)
	for i, name := range corr.Columns {
		xNames[i] = shorten(name)
		yNames[n-1-i] = shorten(name)
	}
	plt.NominalX(xNames...)
	plt.NominalY(yNames...)
	plt.X.Tick.Label.Rotation = math.Pi / 4
	plt.X.Tick.Label.XAlign = draw.XRight
	plt.X.Tick.Label.YAlign = draw.YCenter
	return nil
}

// pairedValues returns the rows where both columns parse as numbers.
func pairedValues(ds *dataset.Dataset, xName, yName string) (plotter.XYs, error) {
	xs, err := column(ds, xName)
	if err != nil {
		return nil, err
	}
	ys, err := column(ds, yName)
	if err != nil {
		return nil, err
	}

	pts := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if stats.IsMissing(xs[i]) || stats.IsMissing(ys[i]) {
			continue
		}
		x, okX := stats.ParseNumber(xs[i])
		y, okY := stats.ParseNumber(ys[i])
		if okX && okY {
			pts = append(pts, plotter.XY{X: x, Y: y})
		}
	}
	return pts, nil
}

func addScatter(plt *plot.Plot, ds *dataset.Dataset, spec Spec) error {
	pts, err := pairedValues(ds, spec.Columns[0], spec.Columns[1])
	if err != nil {
		return err
	}
	if len(pts) == 0 {
		return fmt.Errorf("no complete rows for %s and %s", spec.Columns[0], spec.Columns[1])
	}

	s, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	s.GlyphStyle.Color = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	s.GlyphStyle.Radius = vg.Points(2.5)
	plt.Add(s)
	plt.Add(plotter.NewGrid())
	return nil
}

func addLine(plt *plot.Plot, ds *dataset.Dataset, spec Spec) error {
	times, err := column(ds, spec.Columns[0])
	if err != nil {
		return err
	}
	values, err := column(ds, spec.Columns[1])
	if err != nil {
		return err
	}

	type acc struct{ sum, n float64 }
	byTime := make(map[int64]*acc)
	for i := range times {
		t, okT := stats.ParseTime(times[i])
		v, okV := stats.ParseNumber(values[i])
		if !okT || !okV {
			continue
		}
		key := t.Unix()
		if byTime[key] == nil {
			byTime[key] = &acc{}
		}
		byTime[key].sum += v
		byTime[key].n++
	}
	if len(byTime) == 0 {
		return fmt.Errorf("no rows with both %s and %s", spec.Columns[0], spec.Columns[1])
	}

	keys := make([]int64, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	pts := make(plotter.XYs, len(keys))
	for i, k := range keys {
		pts[i] = plotter.XY{X: float64(k), Y: byTime[k].sum / byTime[k].n}
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	points.Shape = draw.CircleGlyph{}
	points.Radius = vg.Points(2)
	plt.Add(line, points, plotter.NewGrid())
	plt.Legend.Add(spec.YLabel, line)
	plt.Legend.Top = true

	plt.X.Tick.Marker = plot.TimeTicks{Format: timeFormat(keys)}
	plt.X.Tick.Label.Rotation = math.Pi / 6
	plt.X.Tick.Label.XAlign = draw.XRight
	return nil
}

// timeFormat shows clock time only when the data spans less than three days.
func timeFormat(unix []int64) string {
	if len(unix) > 1 && time.Duration(unix[len(unix)-1]-unix[0])*time.Second < 72*time.Hour {
		return "01-02 15:04"
	}
	return "2006-01-02"
}

func shorten(s string) string {
	r := []rune(s)
	if len(r) <= maxTickLabel {
		return s
	}
	return string(r[:maxTickLabel-1]) + "…"
}
