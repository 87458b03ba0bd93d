package stats

import (
	"math"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"csvanalyst/pkg/dataset"
)

// genCell generates a CSV cell: mostly small integers, sometimes a missing token or a word.
func genCell() gopter.Gen {
	number := gen.IntRange(-50, 50).Map(func(v int) string { return strconv.Itoa(v) })
	return gen.OneGenOf(
		number, number, number, number, number, number, number, number,
		gen.OneConstOf("", "NA", "null"),
		gen.OneConstOf("alpha", "beta"),
	)
}

func genColumn() gopter.Gen {
	return gen.SliceOfN(25, genCell())
}

func buildDataset(a, b []string) (*dataset.Dataset, error) {
	rows := make([][]string, min(len(a), len(b)))
	for i := range rows {
		rows[i] = []string{a[i], b[i]}
	}
	return dataset.FromRecords("prop.csv", []string{"a", "b"}, rows)
}

func TestProperty_ProfileIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("profiling the same data twice gives the same markdown", prop.ForAll(
		func(a, b []string) bool {
			ds, err := buildDataset(a, b)
			if err != nil {
				return false
			}
			return FormatMarkdown(Compute(ds, DefaultOptions())) == FormatMarkdown(Compute(ds, DefaultOptions()))
		},
		genColumn(), genColumn(),
	))

	properties.TestingRun(t)
}

func TestProperty_ProfileInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("counts add up and numeric summaries are ordered", prop.ForAll(
		func(a, b []string) bool {
			ds, err := buildDataset(a, b)
			if err != nil {
				return false
			}
			p := Compute(ds, DefaultOptions())
			for i := range p.Columns {
				c := &p.Columns[i]
				if c.NonNull+c.Missing != c.Rows {
					return false
				}
				total := 0
				for _, vc := range c.Counts {
					total += vc.Count
				}
				if total != c.NonNull {
					return false
				}
				if s := c.Numeric; s != nil {
					if s.Min > s.Q1 || s.Q1 > s.Median || s.Median > s.Q3 || s.Q3 > s.Max {
						return false
					}
					if s.Count+c.Mismatches != c.NonNull {
						return false
					}
				}
			}
			for i := range p.Correlation.Columns {
				for j := range p.Correlation.Columns {
					r, rt := p.Correlation.Values[i][j], p.Correlation.Values[j][i]
					if math.IsNaN(r) != math.IsNaN(rt) || (!math.IsNaN(r) && r != rt) {
						return false
					}
					if !math.IsNaN(r) && (r < -1-1e-9 || r > 1+1e-9) {
						return false
					}
				}
			}
			return true
		},
		genColumn(), genColumn(),
	))

	properties.TestingRun(t)
}
