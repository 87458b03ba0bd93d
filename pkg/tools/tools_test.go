package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvanalyst/pkg/dataset"
)

type readCSVResult struct {
	Success   bool       `json:"success"`
	Delimiter string     `json:"delimiter"`
	Header    []string   `json:"header"`
	Rows      [][]string `json:"rows"`
	TotalRows int        `json:"total_rows"`
	Truncated bool       `json:"truncated"`
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execReadCSV(t *testing.T, tool *ReadCSVTool, args map[string]any) readCSVResult {
	t.Helper()
	res, err := tool.Exec(context.Background(), args)
	require.NoError(t, err)
	var out readCSVResult
	require.NoError(t, json.Unmarshal([]byte(res.Content), &out))
	return out
}

func TestReadCSVTool(t *testing.T) {
	path := writeCSV(t, "id;name\n1;a\n2;b\n3;c\n")

	tool := NewReadCSVTool(path, 0, 2)
	assert.Equal(t, ToolReadCSV, tool.Name())
	assert.Contains(t, tool.PromptDocumentation(), "up to 2")

	out := execReadCSV(t, tool, nil)
	require.True(t, out.Success)
	assert.Equal(t, ";", out.Delimiter)
	assert.Equal(t, []string{"id", "name"}, out.Header)
	assert.Equal(t, [][]string{{"1", "a"}, {"2", "b"}}, out.Rows)
	assert.Equal(t, 3, out.TotalRows)
	assert.True(t, out.Truncated)
}

func TestReadCSVToolLimitArgument(t *testing.T) {
	path := writeCSV(t, "id\n1\n2\n3\n")
	tool := NewReadCSVTool(path, ',', 1)

	tests := []struct {
		name string
		args map[string]any
		rows int
	}{
		{"json number", map[string]any{"limit": float64(3)}, 3},
		{"int", map[string]any{"limit": 2}, 2},
		{"invalid falls back", map[string]any{"limit": "many"}, 1},
		{"zero falls back", map[string]any{"limit": 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := execReadCSV(t, tool, tt.args)
			require.True(t, out.Success)
			assert.Len(t, out.Rows, tt.rows)
			assert.Equal(t, tt.rows < 3, out.Truncated)
		})
	}
}

func TestReadCSVToolLoadFailures(t *testing.T) {
	tool := NewReadCSVTool(filepath.Join(t.TempDir(), "nope.csv"), 0, 0)
	res, err := tool.Exec(context.Background(), nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, dataset.ErrNotFound)

	tool = NewReadCSVTool(writeCSV(t, " \n"), 0, 0)
	res, err = tool.Exec(context.Background(), nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, dataset.ErrEmpty)
}

func TestReadCSVToolCancelled(t *testing.T) {
	tool := NewReadCSVTool(writeCSV(t, "a\n1\n"), 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tool.Exec(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry(t *testing.T) {
	tool := NewReadCSVTool("x.csv", 0, 0)
	reg, err := NewRegistry(tool)
	require.NoError(t, err)

	got, err := reg.Get(ToolReadCSV)
	require.NoError(t, err)
	assert.Same(t, tool, got)
	assert.Equal(t, []string{ToolReadCSV}, reg.Names())

	assert.Error(t, reg.Register(tool), "duplicate name")
	assert.Error(t, reg.Register(nil))
	_, err = reg.Get("shell")
	assert.Error(t, err)

	var zero Registry
	require.NoError(t, zero.Register(tool))
}
