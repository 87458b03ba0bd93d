package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"csvanalyst/pkg/agent"
	"csvanalyst/pkg/logx"
	"csvanalyst/pkg/templates"
	"csvanalyst/pkg/tools"
	"csvanalyst/pkg/utils"
)

// Executor defaults.
const (
	DefaultMaxToolTokens = 6000
	DefaultMaxTokens     = agent.DefaultMaxTokens
)

// Input is what a stage's LLM call is built from besides the stage itself.
type Input struct {
	DatasetName  string
	Tools        *tools.Registry
	Prepared     Prepared
	Predecessors []Result
}

// Output is the model's answer for one stage.
type Output struct {
	Content string
	Usage   agent.Usage
}

// StageRunner performs a stage's LLM call.
type StageRunner interface {
	Execute(ctx context.Context, stage *Stage, in Input) (Output, error)
	Model() string
}

// ExecutorOptions tunes prompt budgets and sampling.
type ExecutorOptions struct {
	// MaxToolTokens bounds each tool's output in the prompt; longer output is cut at a line.
	MaxToolTokens int
	MaxTokens     int
	// Temperature is sent as given, including 0. Nil selects agent.TemperatureDefault.
	Temperature *float32
	// Echo receives each stage's answer as it streams in. Nil uses a blocking Complete call.
	Echo io.Writer
}

// Executor turns a stage into exactly one model call. It never retries.
type Executor struct {
	client      agent.LLMClient
	renderer    *templates.Renderer
	counter     *utils.TokenCounter
	opts        ExecutorOptions
	temperature float32
}

// NewExecutor creates an executor calling client.
func NewExecutor(client agent.LLMClient, opts ExecutorOptions) (*Executor, error) {
	if client == nil {
		return nil, fmt.Errorf("executor requires an LLM client")
	}
	if opts.MaxToolTokens <= 0 {
		opts.MaxToolTokens = DefaultMaxToolTokens
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	temperature := float32(agent.TemperatureDefault)
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}
	counter, err := utils.NewTokenCounter(client.GetModelName())
	if err != nil {
		return nil, err
	}

	return &Executor{
		client:      client,
		renderer:    renderer,
		counter:     counter,
		opts:        opts,
		temperature: temperature,
	}, nil
}

// Model returns the model name of the underlying client.
func (e *Executor) Model() string {
	return e.client.GetModelName()
}

// BuildRequest runs the stage's tools and renders its prompt.
func (e *Executor) BuildRequest(ctx context.Context, stage *Stage, in Input) (agent.CompletionRequest, error) {
	toolOutputs, err := e.runTools(ctx, stage, in.Tools)
	if err != nil {
		return agent.CompletionRequest{}, err
	}

	predecessors := make([]templates.PredecessorOutput, len(in.Predecessors))
	for i, p := range in.Predecessors {
		title := p.Title
		if title == "" {
			title = p.StageID
		}
		predecessors[i] = templates.PredecessorOutput{StageID: p.StageID, Title: title, Content: strings.TrimSpace(p.Content)}
	}

	data := &templates.TemplateData{
		Role:           stage.Role,
		Goal:           stage.Goal,
		Backstory:      stage.Backstory,
		Instructions:   strings.TrimSpace(stage.Instructions),
		ExpectedOutput: strings.TrimSpace(stage.ExpectedOutput),
		DatasetName:    in.DatasetName,
		ToolOutputs:    toolOutputs,
		Facts:          strings.TrimSpace(in.Prepared.Facts),
		Predecessors:   predecessors,
	}

	system, err := e.renderer.Render(templates.StageSystemTemplate, data)
	if err != nil {
		return agent.CompletionRequest{}, err
	}
	user, err := e.renderer.Render(templates.StageUserTemplate, data)
	if err != nil {
		return agent.CompletionRequest{}, err
	}

	return agent.CompletionRequest{
		Messages: []agent.CompletionMessage{
			agent.NewSystemMessage(system),
			agent.NewUserMessage(user),
		},
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.temperature,
	}, nil
}

// Execute builds the stage's request and performs one Complete call, or one Stream call
// when Echo is set. Blank content is ErrEmptyResult.
func (e *Executor) Execute(ctx context.Context, stage *Stage, in Input) (Output, error) {
	req, err := e.BuildRequest(ctx, stage, in)
	if err != nil {
		return Output{}, err
	}

	logx.Debug(ctx, "pipeline", "stage %s prompt: %d tokens", stage.ID, e.counter.CountTokens(req.Messages[0].Content+req.Messages[1].Content))

	var resp agent.CompletionResponse
	if e.opts.Echo != nil {
		resp, err = e.stream(ctx, stage, req)
	} else {
		resp, err = e.client.Complete(ctx, req)
	}
	if err != nil {
		return Output{}, fmt.Errorf("LLM call failed: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return Output{}, ErrEmptyResult
	}
	return Output{Content: strings.TrimSpace(resp.Content), Usage: resp.Usage}, nil
}

// stream copies each chunk to Echo as it arrives and returns the joined content.
func (e *Executor) stream(ctx context.Context, stage *Stage, req agent.CompletionRequest) (agent.CompletionResponse, error) {
	chunks, err := e.client.Stream(ctx, req)
	if err != nil {
		return agent.CompletionResponse{}, err
	}

	title := stage.Title
	if title == "" {
		title = stage.ID
	}
	fmt.Fprintf(e.opts.Echo, "\n=== %s ===\n\n", title)

	var (
		content   strings.Builder
		streamErr error
	)
	for chunk := range chunks {
		if chunk.Error != nil {
			if streamErr == nil {
				streamErr = chunk.Error
			}
			continue
		}
		content.WriteString(chunk.Content)
		_, _ = io.WriteString(e.opts.Echo, chunk.Content)
	}
	fmt.Fprintln(e.opts.Echo)

	if streamErr != nil {
		return agent.CompletionResponse{}, streamErr
	}
	if err := ctx.Err(); err != nil {
		return agent.CompletionResponse{}, err
	}
	return agent.CompletionResponse{Content: content.String()}, nil
}

func (e *Executor) runTools(ctx context.Context, stage *Stage, registry *tools.Registry) ([]templates.ToolOutput, error) {
	if len(stage.Tools) == 0 {
		return nil, nil
	}
	if registry == nil {
		return nil, fmt.Errorf("stage %s needs tools %v but none are registered", stage.ID, stage.Tools)
	}

	outputs := make([]templates.ToolOutput, 0, len(stage.Tools))
	for _, name := range stage.Tools {
		tool, err := registry.Get(name)
		if err != nil {
			return nil, err
		}
		res, err := tool.Exec(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("tool %s failed: %w", name, err)
		}
		content, truncated := e.counter.TruncateLines(res.Content, e.opts.MaxToolTokens)
		if truncated {
			logx.Debug(ctx, "pipeline", "tool %s output truncated to %d tokens", name, e.opts.MaxToolTokens)
		}
		outputs = append(outputs, templates.ToolOutput{
			Name:        name,
			Description: tool.PromptDocumentation(),
			Content:     content,
			Truncated:   truncated,
		})
	}
	return outputs, nil
}
