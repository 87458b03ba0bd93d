package metrics

import (
	"context"
	"strings"
	"time"

	"csvanalyst/pkg/agent/llm"
	"csvanalyst/pkg/agent/llmerrors"
	"csvanalyst/pkg/logx"
	"csvanalyst/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
	noStage       = "none"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor prefers the usage the provider reported and falls back to TikToken counts.
//
//nolint:gocritic // CompletionRequest passed by value to match UsageExtractor
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		return resp.Usage.InputTokens, resp.Usage.OutputTokens
	}

	var promptText strings.Builder
	for i := range req.Messages {
		promptText.WriteString(req.Messages[i].Content)
		promptText.WriteString("\n")
	}
	return utils.CountTokensSimple(promptText.String()), utils.CountTokensSimple(resp.Content)
}

// stageLabel returns the pipeline stage carried by ctx.
func stageLabel(ctx context.Context) string {
	if stage := logx.StageFromContext(ctx); stage != "" {
		return stage
	}
	return noStage
}

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks request latency, token usage, success/failure rates, and error types.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()
				stage := stageLabel(ctx)

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				errorType := ""
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				} else {
					errorType = llmerrors.TypeOf(err).String()
				}

				recorder.ObserveRequest(model, stage, promptTokens, completionTokens, err == nil, errorType, duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Info("🎯 LLM Request: model=%s stage=%s tokens=%d+%d=%d status=%s duration=%dms",
						model, stage, promptTokens, completionTokens, promptTokens+completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				model := next.GetModelName()
				stage := stageLabel(ctx)

				in, err := next.Stream(ctx, req)
				if err != nil {
					recorder.ObserveRequest(model, stage, 0, 0, false, llmerrors.TypeOf(err).String(), time.Since(start))
					return nil, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}

				// Chunks are forwarded as they arrive; the request is observed once the stream ends.
				out := make(chan llm.StreamChunk)
				go func() {
					defer close(out)
					var (
						content   strings.Builder
						streamErr error
					)
				forward:
					for chunk := range in {
						content.WriteString(chunk.Content)
						if chunk.Error != nil && streamErr == nil {
							streamErr = chunk.Error
						}
						select {
						case out <- chunk:
						case <-ctx.Done():
							streamErr = ctx.Err()
							break forward
						}
					}

					var promptTokens, completionTokens int
					errorType := ""
					if streamErr == nil {
						promptTokens, completionTokens = usageExtractor(req, llm.CompletionResponse{Content: content.String()})
					} else {
						errorType = llmerrors.TypeOf(streamErr).String()
					}
					recorder.ObserveRequest(model, stage, promptTokens, completionTokens, streamErr == nil, errorType, time.Since(start))
				}()
				return out, nil
			},
			next.GetModelName,
		)
	}
}
