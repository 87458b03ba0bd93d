// Package charts chooses and renders the charts embedded in the report.
//
// Plan is a pure function of the profile: the same data always yields the same specs with
// the same file names. Render draws each spec with gonum.org/v1/plot.
package charts

import (
	"fmt"
	"math"

	"csvanalyst/pkg/stats"
	"csvanalyst/pkg/utils"
)

// Kind is a chart type. Its value is also the file name prefix.
type Kind string

// Chart kinds.
const (
	KindHistogram Kind = "hist"
	KindBar       Kind = "bar"
	KindHeatmap   Kind = "heatmap"
	KindScatter   Kind = "scatter"
	KindLine      Kind = "line"
)

// AllKinds lists every chart kind in rendering order.
//
//nolint:gochecknoglobals // Static list of chart kinds
var AllKinds = []Kind{KindHistogram, KindBar, KindHeatmap, KindScatter, KindLine}

// Defaults.
const (
	DefaultMaxCategories   = 15
	DefaultMaxScatterPairs = 3
	DefaultFormat          = "png"
	DefaultWidthInches     = 6.0
	DefaultHeightInches    = 4.0
)

// Options tunes chart selection and rendering.
type Options struct {
	// Dir is the output directory for image files.
	Dir string
	// Format is the image file extension without the dot (png, svg, pdf, jpg).
	Format string
	// MaxCategories is the largest distinct-value count that still gets a bar chart.
	MaxCategories int
	// MaxScatterPairs bounds the scatter plots drawn for the most correlated pairs.
	MaxScatterPairs int
	// HistogramBins overrides the Sturges bin count when positive.
	HistogramBins int
	WidthInches   float64
	HeightInches  float64
}

// DefaultOptions returns the default chart options writing into dir.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:             dir,
		Format:          DefaultFormat,
		MaxCategories:   DefaultMaxCategories,
		MaxScatterPairs: DefaultMaxScatterPairs,
		WidthInches:     DefaultWidthInches,
		HeightInches:    DefaultHeightInches,
	}
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	if o.MaxCategories <= 0 {
		o.MaxCategories = DefaultMaxCategories
	}
	if o.MaxScatterPairs < 0 {
		o.MaxScatterPairs = 0
	}
	if o.WidthInches <= 0 {
		o.WidthInches = DefaultWidthInches
	}
	if o.HeightInches <= 0 {
		o.HeightInches = DefaultHeightInches
	}
	return o
}

// Spec describes one chart to draw.
type Spec struct {
	Kind Kind
	// Columns are the data columns: one for histograms and bar charts, x then y for scatter
	// plots, time then value for line plots, every numeric column for the heatmap.
	Columns []string
	// Name is the file name without extension, unique within a plan.
	Name    string
	Title   string
	XLabel  string
	YLabel  string
	Caption string
	Bins    int
}

// FileName returns the spec's image file name for format.
func (s Spec) FileName(format string) string {
	return s.Name + "." + format
}

// Plan chooses the charts for a profile:
//   - numeric columns with at least two distinct values get a histogram;
//   - categorical and boolean columns with at most MaxCategories values get a bar chart;
//   - two or more numeric columns get a correlation heatmap and scatter plots of the
//     MaxScatterPairs most correlated pairs;
//   - a datetime column together with a numeric column gets a line plot.
func Plan(p *stats.Profile, opts Options) []Spec {
	opts = opts.withDefaults()

	var (
		specs []Spec
		namer utils.UniqueNamer
	)
	add := func(s Spec, slug string) {
		s.Name = namer.Next(string(s.Kind) + "_" + slug)
		specs = append(specs, s)
	}

	for i := range p.Columns {
		col := &p.Columns[i]
		switch {
		case col.Kind == stats.KindNumeric && col.Numeric != nil && col.Numeric.Min < col.Numeric.Max:
			bins := opts.HistogramBins
			if bins <= 0 {
				bins = sturges(col.Numeric.Count)
			}
			add(Spec{
				Kind:    KindHistogram,
				Columns: []string{col.Name},
				Title:   "Distribution of " + col.Name,
				XLabel:  col.Name,
				YLabel:  "Count",
				Caption: histogramCaption(col),
				Bins:    bins,
			}, utils.Slugify(col.Name))

		case (col.Kind == stats.KindCategorical || col.Kind == stats.KindBoolean) &&
			col.Unique > 0 && col.Unique <= opts.MaxCategories:
			add(Spec{
				Kind:    KindBar,
				Columns: []string{col.Name},
				Title:   "Frequency of " + col.Name,
				XLabel:  col.Name,
				YLabel:  "Count",
				Caption: barCaption(col),
			}, utils.Slugify(col.Name))
		}
	}

	numeric := p.Correlation.Columns
	if len(numeric) >= 2 {
		add(Spec{
			Kind:    KindHeatmap,
			Columns: append([]string(nil), numeric...),
			Title:   "Correlation between numeric columns",
			Caption: fmt.Sprintf("Pearson correlation across %d numeric columns; grey cells are undefined.", len(numeric)),
		}, "correlation")

		pairs := p.Correlation.Pairs()
		for _, pair := range pairs[:min(len(pairs), opts.MaxScatterPairs)] {
			add(Spec{
				Kind:    KindScatter,
				Columns: []string{pair.A, pair.B},
				Title:   fmt.Sprintf("%s vs %s", pair.B, pair.A),
				XLabel:  pair.A,
				YLabel:  pair.B,
				Caption: fmt.Sprintf("%s against %s (r = %.2f, %s).", pair.B, pair.A, pair.R, strength(pair.R)),
			}, utils.Slugify(pair.A)+"_vs_"+utils.Slugify(pair.B))
		}
	}

	if times := p.ColumnsOfKind(stats.KindDatetime); len(times) > 0 && len(numeric) > 0 {
		t, v := times[0], numeric[0]
		add(Spec{
			Kind:    KindLine,
			Columns: []string{t, v},
			Title:   fmt.Sprintf("%s over time", v),
			XLabel:  t,
			YLabel:  "Mean " + v,
			Caption: fmt.Sprintf("Mean %s per %s value, in time order.", v, t),
		}, utils.Slugify(v)+"_over_"+utils.Slugify(t))
	}

	return specs
}

// sturges returns ceil(log2(n)) + 1, the Sturges bin count.
func sturges(n int) int {
	if n < 2 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(n)))) + 1
}

func histogramCaption(col *stats.ColumnProfile) string {
	s := col.Numeric
	caption := fmt.Sprintf("Distribution of %s over %d values (mean %.2f, median %.2f)", col.Name, s.Count, s.Mean, s.Median)
	switch s.Outliers {
	case 0:
		return caption + "."
	case 1:
		return caption + "; 1 outlier by the IQR rule."
	default:
		return fmt.Sprintf("%s; %d outliers by the IQR rule.", caption, s.Outliers)
	}
}

func barCaption(col *stats.ColumnProfile) string {
	top := col.Counts[0]
	return fmt.Sprintf("Frequency of the %d values of %s; most common is %q (%d rows).",
		col.Unique, col.Name, top.Value, top.Count)
}

func strength(r float64) string {
	switch a := math.Abs(r); {
	case a >= 0.7:
		return "strong"
	case a >= 0.4:
		return "moderate"
	default:
		return "weak"
	}
}
