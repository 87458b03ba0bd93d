package charts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvanalyst/pkg/dataset"
	"csvanalyst/pkg/stats"
)

func ticketsDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	header := []string{"Ticket ID", "priority", "hours", "score", "created", "escalated", "notes"}
	rows := [][]string{
		{"1", "high", "1", "2", "2024-01-01", "yes", "printer jammed"},
		{"2", "low", "2", "4", "2024-01-02", "no", "password reset"},
		{"3", "medium", "3", "6", "2024-01-02", "yes", "vpn drops"},
		{"4", "high", "4", "7", "2024-01-04", "no", "email bounce"},
		{"5", "low", "5", "10", "2024-01-05", "no", "laptop slow"},
		{"6", "high", "6", "12", "2024-01-06", "no", "monitor flicker"},
		{"7", "medium", "7", "15", "2024-01-07", "yes", "license expired"},
		{"8", "high", "100", "NA", "2024-01-08", "no", "disk full"},
	}
	ds, err := dataset.FromRecords("tickets.csv", header, rows)
	require.NoError(t, err)
	return ds
}

func names(specs []Spec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}

func TestPlanSelectsChartsByKind(t *testing.T) {
	ds := ticketsDataset(t)
	p := stats.Compute(ds, stats.Options{CategoricalMaxUnique: 3})

	specs := Plan(p, DefaultOptions(t.TempDir()))

	assert.Equal(t, []string{
		"hist_ticket_id",
		"bar_priority",
		"hist_hours",
		"hist_score",
		"bar_escalated",
		"heatmap_correlation",
		"scatter_ticket_id_vs_score",
		"scatter_hours_vs_score",
		"scatter_ticket_id_vs_hours",
		"line_ticket_id_over_created",
	}, names(specs))

	byName := make(map[string]Spec)
	for _, s := range specs {
		byName[s.Name] = s
	}
	assert.Equal(t, 4, byName["hist_hours"].Bins, "Sturges bins for 8 values")
	assert.Equal(t, []string{"Ticket ID", "hours", "score"}, byName["heatmap_correlation"].Columns)
	assert.Equal(t, []string{"created", "Ticket ID"}, byName["line_ticket_id_over_created"].Columns)
	assert.Contains(t, byName["hist_hours"].Caption, "1 outlier")
	assert.Contains(t, byName["bar_priority"].Caption, `most common is "high" (4 rows)`)
}

func TestPlanRespectsLimits(t *testing.T) {
	ds := ticketsDataset(t)
	p := stats.Compute(ds, stats.Options{CategoricalMaxUnique: 3})

	opts := DefaultOptions(t.TempDir())
	opts.MaxCategories = 2
	opts.MaxScatterPairs = 1
	opts.HistogramBins = 10

	specs := Plan(p, opts)
	var bars, scatters int
	for _, s := range specs {
		switch s.Kind {
		case KindBar:
			bars++
			assert.Equal(t, "bar_escalated", s.Name)
		case KindScatter:
			scatters++
		case KindHistogram:
			assert.Equal(t, 10, s.Bins)
		}
	}
	assert.Equal(t, 1, bars)
	assert.Equal(t, 1, scatters)
}

func TestPlanSkipsConstantAndSingleNumeric(t *testing.T) {
	ds, err := dataset.FromRecords("c.csv", []string{"flat", "label"}, [][]string{
		{"5", "a"}, {"5", "b"}, {"5", "a"},
	})
	require.NoError(t, err)

	specs := Plan(stats.Compute(ds, stats.DefaultOptions()), DefaultOptions(t.TempDir()))
	assert.Equal(t, []string{"bar_label"}, names(specs))
}

func TestPlanCollidingSlugs(t *testing.T) {
	ds, err := dataset.FromRecords("c.csv", []string{"Wait Time", "wait-time", "wait_time"}, [][]string{
		{"1", "2", "3"}, {"2", "1", "5"}, {"3", "3", "4"},
	})
	require.NoError(t, err)

	opts := DefaultOptions(t.TempDir())
	opts.MaxScatterPairs = 0
	specs := Plan(stats.Compute(ds, stats.DefaultOptions()), opts)
	assert.Equal(t, []string{"hist_wait_time", "hist_wait_time_2", "hist_wait_time_3", "heatmap_correlation"}, names(specs))
}

func TestSturges(t *testing.T) {
	assert.Equal(t, 1, sturges(1))
	assert.Equal(t, 2, sturges(2))
	assert.Equal(t, 4, sturges(8))
	assert.Equal(t, 11, sturges(1000))
}

func TestRenderWritesEveryChart(t *testing.T) {
	ds := ticketsDataset(t)
	p := stats.Compute(ds, stats.Options{CategoricalMaxUnique: 3})
	dir := filepath.Join(t.TempDir(), "graphs")
	opts := DefaultOptions(dir)

	specs := Plan(p, opts)
	charts, err := Render(context.Background(), ds, p, specs, opts)
	require.NoError(t, err)
	require.Len(t, charts, len(specs))

	for i, c := range charts {
		assert.Equal(t, specs[i].Name, c.Name)
		assert.Equal(t, filepath.Join(dir, specs[i].Name+".png"), c.Path)
		info, err := os.Stat(c.Path)
		require.NoError(t, err, c.Path)
		assert.Positive(t, info.Size())
	}
}

func TestRenderReplacesStaleCharts(t *testing.T) {
	ds := ticketsDataset(t)
	p := stats.Compute(ds, stats.Options{CategoricalMaxUnique: 3})
	dir := t.TempDir()
	opts := DefaultOptions(dir)
	opts.Format = "svg"

	stale := filepath.Join(dir, "hist_old_column.svg")
	unrelated := filepath.Join(dir, "logo.svg")
	require.NoError(t, os.WriteFile(stale, []byte("<svg/>"), 0644))
	require.NoError(t, os.WriteFile(unrelated, []byte("<svg/>"), 0644))

	specs := Plan(p, opts)
	_, err := Render(context.Background(), ds, p, specs, opts)
	require.NoError(t, err)

	// second run over the same data overwrites the same files
	charts, err := Render(context.Background(), ds, p, specs, opts)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale chart should be removed")
	_, err = os.Stat(unrelated)
	assert.NoError(t, err, "unrelated file should be kept")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, len(charts)+1)
}

func TestRenderHonoursCancellation(t *testing.T) {
	ds := ticketsDataset(t)
	p := stats.Compute(ds, stats.DefaultOptions())
	opts := DefaultOptions(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	charts, err := Render(ctx, ds, p, Plan(p, opts), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, charts)
}

func TestRenderRequiresDirectory(t *testing.T) {
	ds := ticketsDataset(t)
	p := stats.Compute(ds, stats.DefaultOptions())

	_, err := Render(context.Background(), ds, p, nil, Options{})
	assert.Error(t, err)
}
