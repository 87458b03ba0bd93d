package tools

import (
	"context"
	"fmt"

	"csvanalyst/pkg/dataset"
)

const defaultSampleRows = 20

// ReadCSVTool reads the header, a sample of rows and the row count of the pipeline's CSV file.
type ReadCSVTool struct {
	path       string
	delimiter  rune
	sampleRows int
}

// NewReadCSVTool creates a read_csv tool bound to one file. A zero delimiter is sniffed.
func NewReadCSVTool(path string, delimiter rune, sampleRows int) *ReadCSVTool {
	if sampleRows <= 0 {
		sampleRows = defaultSampleRows
	}
	return &ReadCSVTool{
		path:       path,
		delimiter:  delimiter,
		sampleRows: sampleRows,
	}
}

// Name returns the tool name.
func (t *ReadCSVTool) Name() string {
	return ToolReadCSV
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *ReadCSVTool) PromptDocumentation() string {
	return fmt.Sprintf(`- **read_csv** - Contents of the dataset file
  - Output is JSON with the header, the first rows (up to %d) and the total row count
  - "truncated" is true when the file has more rows than shown`, t.sampleRows)
}

// Exec reads the file. The optional "limit" argument overrides the number of sample rows.
// A file that cannot be loaded is an error wrapping the dataset error.
func (t *ReadCSVTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := intArgOrDefault(args, "limit", t.sampleRows)

	ds, err := dataset.Load(t.path, dataset.LoadOptions{Delimiter: t.delimiter})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", t.path, err)
	}

	rows := ds.Head(limit)
	return jsonResult(map[string]any{
		"success":    true,
		"path":       t.path,
		"delimiter":  string(ds.Delimiter()),
		"header":     ds.Columns(),
		"rows":       rows,
		"total_rows": ds.TotalRows(),
		"truncated":  ds.TotalRows() > len(rows),
	})
}
