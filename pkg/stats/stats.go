// Package stats profiles a dataset: per-column kind inference, missing values, type
// mismatches, descriptive statistics and a Pearson correlation matrix.
//
// Every result is a pure function of the dataset and Options. Nothing iterates a map when
// building output, so two runs over the same file produce identical profiles.
package stats

import (
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"csvanalyst/pkg/dataset"
)

// Kind is the inferred semantic type of a column.
type Kind string

// Column kinds.
const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
	KindDatetime    Kind = "datetime"
	KindBoolean     Kind = "boolean"
	KindText        Kind = "text"
	KindEmpty       Kind = "empty"
)

// Default thresholds.
const (
	DefaultCategoricalMaxUnique = 20
	DefaultNumericThreshold     = 0.95
	DefaultOutlierIQRFactor     = 1.5
	categoricalUniqueRatio      = 0.5
)

// Options tunes kind inference and outlier detection.
type Options struct {
	// CategoricalMaxUnique is the largest distinct-value count always treated as categorical.
	CategoricalMaxUnique int
	// NumericThreshold is the share of parseable values needed for numeric or datetime.
	NumericThreshold float64
	// OutlierIQRFactor is k in [Q1 - k*IQR, Q3 + k*IQR].
	OutlierIQRFactor float64
}

// DefaultOptions returns the default thresholds.
func DefaultOptions() Options {
	return Options{
		CategoricalMaxUnique: DefaultCategoricalMaxUnique,
		NumericThreshold:     DefaultNumericThreshold,
		OutlierIQRFactor:     DefaultOutlierIQRFactor,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CategoricalMaxUnique <= 0 {
		o.CategoricalMaxUnique = d.CategoricalMaxUnique
	}
	if o.NumericThreshold <= 0 || o.NumericThreshold > 1 {
		o.NumericThreshold = d.NumericThreshold
	}
	if o.OutlierIQRFactor <= 0 {
		o.OutlierIQRFactor = d.OutlierIQRFactor
	}
	return o
}

// NumericSummary holds descriptive statistics of a numeric column.
// Std is the sample standard deviation and is NaN for fewer than two values.
type NumericSummary struct {
	Count    int
	Mean     float64
	Median   float64
	Std      float64
	Min      float64
	Q1       float64
	Q3       float64
	Max      float64
	Outliers int
}

// DatetimeSummary holds the range of a datetime column.
type DatetimeSummary struct {
	Min time.Time
	Max time.Time
}

// ValueCount is a distinct value and its frequency.
type ValueCount struct {
	Value string
	Count int
}

// ColumnProfile describes one column.
type ColumnProfile struct {
	Name       string
	Kind       Kind
	Rows       int
	NonNull    int
	Missing    int
	Unique     int
	Mismatches int // non-missing values that do not parse as the inferred kind
	Numeric    *NumericSummary
	Datetime   *DatetimeSummary
	// Counts lists distinct non-missing values by descending frequency, ties by value.
	Counts []ValueCount
}

// MissingPercent returns Missing as a percentage of Rows.
func (c *ColumnProfile) MissingPercent() float64 {
	if c.Rows == 0 {
		return 0
	}
	return 100 * float64(c.Missing) / float64(c.Rows)
}

// Correlation is a symmetric Pearson correlation matrix over the numeric columns.
// Entries are NaN where fewer than two complete pairs exist or a column has no variance.
type Correlation struct {
	Columns []string
	Values  [][]float64
}

// At returns r for the named columns, or NaN when either is not in the matrix.
func (c Correlation) At(a, b string) float64 {
	i, j := indexOf(c.Columns, a), indexOf(c.Columns, b)
	if i < 0 || j < 0 {
		return math.NaN()
	}
	return c.Values[i][j]
}

// Pair is one off-diagonal entry of a correlation matrix.
type Pair struct {
	A, B string
	R    float64
}

// Pairs returns the defined off-diagonal pairs ordered by descending |r|. Ties keep column
// order (A's index, then B's).
func (c Correlation) Pairs() []Pair {
	var pairs []Pair
	for i := range c.Columns {
		for j := i + 1; j < len(c.Columns); j++ {
			r := c.Values[i][j]
			if math.IsNaN(r) {
				continue
			}
			pairs = append(pairs, Pair{A: c.Columns[i], B: c.Columns[j], R: r})
		}
	}
	sort.SliceStable(pairs, func(x, y int) bool {
		return math.Abs(pairs[x].R) > math.Abs(pairs[y].R)
	})
	return pairs
}

// Profile is the complete statistical profile of a dataset.
type Profile struct {
	Dataset     string
	Rows        int
	TotalRows   int
	Columns     []ColumnProfile
	Correlation Correlation
}

// Column returns the profile of the named column.
func (p *Profile) Column(name string) (*ColumnProfile, bool) {
	for i := range p.Columns {
		if p.Columns[i].Name == name {
			return &p.Columns[i], true
		}
	}
	return nil, false
}

// ColumnsOfKind returns the names of the columns of kind k in dataset order.
func (p *Profile) ColumnsOfKind(k Kind) []string {
	var names []string
	for i := range p.Columns {
		if p.Columns[i].Kind == k {
			names = append(names, p.Columns[i].Name)
		}
	}
	return names
}

// Compute profiles every column of ds.
func Compute(ds *dataset.Dataset, opts Options) *Profile {
	opts = opts.withDefaults()

	p := &Profile{
		Dataset:   ds.Name(),
		Rows:      ds.NumRows(),
		TotalRows: ds.TotalRows(),
	}

	numeric := make(map[string][]float64) // row-aligned, NaN where missing or mismatched
	for i, name := range ds.Columns() {
		values := ds.ColumnAt(i)
		col := profileColumn(name, values, opts)
		if col.Kind == KindNumeric {
			numeric[name] = alignedNumbers(values)
		}
		p.Columns = append(p.Columns, col)
	}

	p.Correlation = correlate(p.ColumnsOfKind(KindNumeric), numeric)
	return p
}

func profileColumn(name string, values []string, opts Options) ColumnProfile {
	col := ColumnProfile{Name: name, Rows: len(values)}

	present := make([]string, 0, len(values))
	for _, v := range values {
		if IsMissing(v) {
			col.Missing++
			continue
		}
		present = append(present, strings.TrimSpace(v))
	}
	col.NonNull = len(present)
	col.Counts = countValues(present)
	col.Unique = len(col.Counts)

	if col.NonNull == 0 {
		col.Kind = KindEmpty
		return col
	}

	var (
		nums      []float64
		times     []time.Time
		boolCount int
	)
	for _, v := range present {
		if f, ok := ParseNumber(v); ok {
			nums = append(nums, f)
		} else if t, ok := ParseTime(v); ok {
			times = append(times, t)
		}
		if _, ok := ParseBool(v); ok {
			boolCount++
		}
	}

	threshold := int(math.Ceil(opts.NumericThreshold * float64(col.NonNull)))
	switch {
	case boolCount == col.NonNull:
		col.Kind = KindBoolean
	case len(nums) >= threshold:
		col.Kind = KindNumeric
		col.Mismatches = col.NonNull - len(nums)
		col.Numeric = summarize(nums, opts.OutlierIQRFactor)
	case len(times) >= threshold:
		col.Kind = KindDatetime
		col.Mismatches = col.NonNull - len(times)
		col.Datetime = timeRange(times)
	case col.Unique <= opts.CategoricalMaxUnique ||
		float64(col.Unique) <= categoricalUniqueRatio*float64(col.NonNull):
		col.Kind = KindCategorical
	default:
		col.Kind = KindText
	}
	return col
}

func countValues(values []string) []ValueCount {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v]++
	}
	out := make([]ValueCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

func summarize(values []float64, iqrFactor float64) *NumericSummary {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	s := &NumericSummary{
		Count:  n,
		Mean:   stat.Mean(sorted, nil),
		Median: Median(sorted),
		Std:    math.NaN(),
		Min:    sorted[0],
		Max:    sorted[n-1],
		Q1:     stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Q3:     stat.Quantile(0.75, stat.Empirical, sorted, nil),
	}
	if n > 1 {
		s.Std = stat.StdDev(sorted, nil)
	}

	iqr := s.Q3 - s.Q1
	lo, hi := s.Q1-iqrFactor*iqr, s.Q3+iqrFactor*iqr
	for _, v := range sorted {
		if v < lo || v > hi {
			s.Outliers++
		}
	}
	return s
}

// Median returns the middle value of sorted, or the midpoint of the two central values for
// an even count. NaN for an empty slice.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func timeRange(times []time.Time) *DatetimeSummary {
	r := &DatetimeSummary{Min: times[0], Max: times[0]}
	for _, t := range times[1:] {
		if t.Before(r.Min) {
			r.Min = t
		}
		if t.After(r.Max) {
			r.Max = t
		}
	}
	return r
}

func alignedNumbers(values []string) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.NaN()
		if IsMissing(v) {
			continue
		}
		if f, ok := ParseNumber(v); ok {
			out[i] = f
		}
	}
	return out
}

func correlate(columns []string, aligned map[string][]float64) Correlation {
	c := Correlation{
		Columns: columns,
		Values:  make([][]float64, len(columns)),
	}
	for i := range columns {
		c.Values[i] = make([]float64, len(columns))
	}
	for i := range columns {
		for j := i; j < len(columns); j++ {
			r := pearson(aligned[columns[i]], aligned[columns[j]])
			if i == j && !math.IsNaN(r) {
				r = 1
			}
			c.Values[i][j], c.Values[j][i] = r, r
		}
	}
	return c
}

// pearson correlates x and y over the rows where both are defined.
func pearson(x, y []float64) float64 {
	var xs, ys []float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
