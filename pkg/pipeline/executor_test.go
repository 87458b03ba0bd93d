package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvanalyst/pkg/agent"
	"csvanalyst/pkg/dataset"
	"csvanalyst/pkg/tools"
)

func temperature(v float32) *float32 { return &v }

func wideCSV(t *testing.T, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,description\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d,customer reported that the invoice total does not match the order number %d\n", i, i*7)
	}
	path := filepath.Join(t.TempDir(), "wide.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func TestBuildRequestTruncatesToolOutput(t *testing.T) {
	path := wideCSV(t, 200)
	registry, err := tools.NewRegistry(tools.NewReadCSVTool(path, 0, 200))
	require.NoError(t, err)

	exec, err := NewExecutor(agent.NewMockLLMClient(nil, nil), ExecutorOptions{MaxToolTokens: 300, MaxTokens: 512, Temperature: temperature(0.1)})
	require.NoError(t, err)

	stage := DatasetContextStage()
	req, err := exec.BuildRequest(context.Background(), &stage, Input{DatasetName: "wide.csv", Tools: registry})
	require.NoError(t, err)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, agent.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, agent.RoleUser, req.Messages[1].Role)
	assert.Equal(t, 512, req.MaxTokens)
	assert.InDelta(t, 0.1, req.Temperature, 1e-6)

	user := req.Messages[1].Content
	assert.Contains(t, user, "# Tool output: read_csv (truncated to fit the prompt)")
	assert.Contains(t, user, "- **read_csv** - Contents of the dataset file")
	assert.Contains(t, user, "... (truncated)")
	assert.NotContains(t, user, "order number 1393", "last row is cut")
	assert.Less(t, exec.counter.CountTokens(user), 1200)
}

func TestBuildRequestMissingTool(t *testing.T) {
	exec, err := NewExecutor(agent.NewMockLLMClient(nil, nil), ExecutorOptions{})
	require.NoError(t, err)

	stage := Stage{ID: "s", Tools: []string{"web_search"}}
	_, err = exec.BuildRequest(context.Background(), &stage, Input{})
	assert.ErrorContains(t, err, "none are registered")

	_, err = exec.BuildRequest(context.Background(), &stage, Input{Tools: &tools.Registry{}})
	assert.Error(t, err)
}

func TestExecuteSingleCall(t *testing.T) {
	mock := agent.NewMockLLMClient([]agent.CompletionResponse{{Content: "  answer  ", Usage: agent.Usage{InputTokens: 10, OutputTokens: 2}}}, nil)
	exec, err := NewExecutor(mock, ExecutorOptions{})
	require.NoError(t, err)

	stage := Stage{ID: "s", Role: "Analyst", Instructions: "Say something."}
	out, err := exec.Execute(context.Background(), &stage, Input{
		Prepared:     Prepared{Facts: "fact one"},
		Predecessors: []Result{{StageID: "prev", Content: "earlier"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", out.Content)
	assert.Equal(t, 2, out.Usage.OutputTokens)
	assert.Equal(t, "mock-model", exec.Model())

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Messages[1].Content, "fact one")
	assert.Contains(t, reqs[0].Messages[1].Content, "# Result of earlier stage: prev\n\nearlier")
}

func TestNewExecutorRequiresClient(t *testing.T) {
	_, err := NewExecutor(nil, ExecutorOptions{})
	assert.Error(t, err)
}

func TestBuildRequestTemperature(t *testing.T) {
	stage := Stage{ID: "s", Instructions: "Say something."}

	exec, err := NewExecutor(agent.NewMockLLMClient(nil, nil), ExecutorOptions{})
	require.NoError(t, err)
	req, err := exec.BuildRequest(context.Background(), &stage, Input{})
	require.NoError(t, err)
	assert.InDelta(t, agent.TemperatureDefault, req.Temperature, 1e-6)

	exec, err = NewExecutor(agent.NewMockLLMClient(nil, nil), ExecutorOptions{Temperature: temperature(0)})
	require.NoError(t, err)
	req, err = exec.BuildRequest(context.Background(), &stage, Input{})
	require.NoError(t, err)
	assert.Zero(t, req.Temperature)
}

func TestExecuteEchoStreamsAnswer(t *testing.T) {
	mock := agent.NewMockLLMClient([]agent.CompletionResponse{{Content: "Three columns, no gaps."}}, nil)
	var echo bytes.Buffer
	exec, err := NewExecutor(mock, ExecutorOptions{Echo: &echo})
	require.NoError(t, err)

	stage := Stage{ID: "dataset_context", Title: "Dataset Context", Instructions: "Describe."}
	out, err := exec.Execute(context.Background(), &stage, Input{})
	require.NoError(t, err)
	assert.Equal(t, "Three columns, no gaps.", out.Content)
	assert.Equal(t, 1, mock.CallCount())
	assert.Contains(t, echo.String(), "=== Dataset Context ===")
	assert.Contains(t, echo.String(), "Three columns, no gaps.")
}

func TestExecuteEchoFailures(t *testing.T) {
	backendDown := errors.New("connection refused")
	mock := agent.NewMockLLMClient([]agent.CompletionResponse{{Content: " \n"}}, []error{backendDown})
	exec, err := NewExecutor(mock, ExecutorOptions{Echo: &bytes.Buffer{}})
	require.NoError(t, err)

	stage := Stage{ID: "s", Instructions: "Describe."}
	_, err = exec.Execute(context.Background(), &stage, Input{})
	assert.ErrorIs(t, err, backendDown)
	assert.ErrorContains(t, err, "LLM call failed")

	_, err = exec.Execute(context.Background(), &stage, Input{})
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestBuildRequestToolLoadFailure(t *testing.T) {
	registry, err := tools.NewRegistry(tools.NewReadCSVTool(filepath.Join(t.TempDir(), "gone.csv"), 0, 5))
	require.NoError(t, err)
	mock := agent.NewMockLLMClient(nil, nil)
	exec, err := NewExecutor(mock, ExecutorOptions{})
	require.NoError(t, err)

	stage := DatasetContextStage()
	_, err = exec.Execute(context.Background(), &stage, Input{Tools: registry})
	require.ErrorIs(t, err, dataset.ErrNotFound)
	assert.ErrorContains(t, err, "tool read_csv failed")
	assert.Zero(t, mock.CallCount())
}
