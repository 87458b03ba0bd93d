package stats

import (
	"fmt"
	"math"
	"strings"
)

// topValuesShown bounds the value list printed for categorical columns.
const topValuesShown = 5

// FormatMarkdown renders the profile as markdown tables: column types and missing values,
// numeric summary, categorical top values and the correlation matrix. Tables that would be
// empty are replaced by a one-line note.
func FormatMarkdown(p *Profile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Dataset `%s`: %d rows, %d columns", p.Dataset, p.Rows, len(p.Columns))
	if p.TotalRows > p.Rows {
		fmt.Fprintf(&b, " (first %d of %d rows profiled)", p.Rows, p.TotalRows)
	}
	b.WriteString(".\n\n")

	b.WriteString(FormatMissingTable(p))
	b.WriteString("\n")
	b.WriteString(FormatNumericTable(p))
	b.WriteString("\n")
	b.WriteString(FormatCategoricalTable(p))
	b.WriteString("\n")
	b.WriteString(FormatCorrelationTable(p))
	return b.String()
}

// FormatMissingTable renders kind, completeness and type mismatches per column.
func FormatMissingTable(p *Profile) string {
	var b strings.Builder
	b.WriteString("| Column | Type | Non-null | Missing | Missing % | Unique | Type mismatches |\n")
	b.WriteString("|---|---|---:|---:|---:|---:|---:|\n")
	for i := range p.Columns {
		c := &p.Columns[i]
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %.1f%% | %d | %d |\n",
			cell(c.Name), c.Kind, c.NonNull, c.Missing, c.MissingPercent(), c.Unique, c.Mismatches)
	}
	return b.String()
}

// FormatNumericTable renders descriptive statistics of the numeric columns.
func FormatNumericTable(p *Profile) string {
	var b strings.Builder
	rows := 0
	for i := range p.Columns {
		c := &p.Columns[i]
		if c.Numeric == nil {
			continue
		}
		if rows == 0 {
			b.WriteString("| Column | Count | Mean | Median | Std | Min | Q1 | Q3 | Max | Outliers (IQR) |\n")
			b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|---:|---:|\n")
		}
		rows++
		s := c.Numeric
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s | %s | %s | %s | %d |\n",
			cell(c.Name), s.Count, num(s.Mean), num(s.Median), num(s.Std),
			num(s.Min), num(s.Q1), num(s.Q3), num(s.Max), s.Outliers)
	}
	if rows == 0 {
		return "_No numeric columns._\n"
	}
	return b.String()
}

// FormatCategoricalTable renders the most frequent values of categorical and boolean columns.
func FormatCategoricalTable(p *Profile) string {
	var b strings.Builder
	rows := 0
	for i := range p.Columns {
		c := &p.Columns[i]
		if c.Kind != KindCategorical && c.Kind != KindBoolean {
			continue
		}
		if rows == 0 {
			b.WriteString("| Column | Distinct | Most frequent values |\n")
			b.WriteString("|---|---:|---|\n")
		}
		rows++
		top := make([]string, 0, topValuesShown)
		for _, vc := range c.Counts[:min(len(c.Counts), topValuesShown)] {
			top = append(top, fmt.Sprintf("%s (%d)", vc.Value, vc.Count))
		}
		fmt.Fprintf(&b, "| %s | %d | %s |\n", cell(c.Name), c.Unique, cell(strings.Join(top, ", ")))
	}
	if rows == 0 {
		return "_No categorical columns._\n"
	}
	return b.String()
}

// FormatCorrelationTable renders the Pearson correlation matrix.
func FormatCorrelationTable(p *Profile) string {
	corr := p.Correlation
	if len(corr.Columns) < 2 {
		return "_Correlation matrix needs at least two numeric columns._\n"
	}

	var b strings.Builder
	b.WriteString("| |")
	for _, name := range corr.Columns {
		fmt.Fprintf(&b, " %s |", cell(name))
	}
	b.WriteString("\n|---|")
	b.WriteString(strings.Repeat("---:|", len(corr.Columns)))
	b.WriteString("\n")
	for i, name := range corr.Columns {
		fmt.Fprintf(&b, "| %s |", cell(name))
		for j := range corr.Columns {
			fmt.Fprintf(&b, " %s |", num(corr.Values[i][j]))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

// cell escapes text for a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
