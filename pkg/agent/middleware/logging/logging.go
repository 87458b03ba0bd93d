// Package logging provides logging middleware for LLM clients.
package logging

import (
	"context"

	"csvanalyst/pkg/agent/llm"
	"csvanalyst/pkg/agent/llmerrors"
	"csvanalyst/pkg/logx"
)

// maxLoggedMessage bounds each message logged after a failure.
const maxLoggedMessage = 2000

// Middleware returns a middleware function that logs each call under the "llm" debug domain
// and, when a call fails, the classified error together with a sanitized copy of the prompt.
// Errors pass through unchanged.
func Middleware(logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("llm-middleware")
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				logx.Debug(ctx, "llm", "request: model=%s stage=%s messages=%d max_tokens=%d temperature=%.2f",
					next.GetModelName(), logx.StageFromContext(ctx), len(req.Messages), req.MaxTokens, req.Temperature)

				resp, err := next.Complete(ctx, req)
				if err != nil {
					logFailure(ctx, logger, next.GetModelName(), req, err)
					//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
					return resp, err
				}

				logx.Debug(ctx, "llm", "response: stop=%s chars=%d", resp.StopReason, len(resp.Content))
				return resp, nil
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				logx.Debug(ctx, "llm", "stream request: model=%s stage=%s messages=%d max_tokens=%d temperature=%.2f",
					next.GetModelName(), logx.StageFromContext(ctx), len(req.Messages), req.MaxTokens, req.Temperature)

				in, err := next.Stream(ctx, req)
				if err != nil {
					logFailure(ctx, logger, next.GetModelName(), req, err)
					//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
					return nil, err
				}

				out := make(chan llm.StreamChunk)
				go func() {
					defer close(out)
					chars := 0
					for chunk := range in {
						chars += len(chunk.Content)
						if chunk.Error != nil {
							logFailure(ctx, logger, next.GetModelName(), req, chunk.Error)
						}
						select {
						case out <- chunk:
						case <-ctx.Done():
							return
						}
					}
					logx.Debug(ctx, "llm", "stream done: chars=%d", chars)
				}()
				return out, nil
			},
			next.GetModelName,
		)
	}
}

// logFailure logs a failed call. The prompt is only dumped for errors a prompt can cause.
//
//nolint:gocritic // 80 bytes is reasonable for logging function
func logFailure(ctx context.Context, logger *logx.Logger, model string, req llm.CompletionRequest, err error) {
	errType := llmerrors.TypeOf(err)
	logger.Error("❌ LLM call failed: model=%s stage=%s type=%s: %v", model, logx.StageFromContext(ctx), errType, err)

	if errType != llmerrors.ErrorTypeEmptyResponse && errType != llmerrors.ErrorTypeBadPrompt {
		return
	}
	for i := range req.Messages {
		msg := &req.Messages[i]
		logger.Error("Message [%d] Role: %s, Content: %s", i, msg.Role, llmerrors.SanitizePrompt(msg.Content, maxLoggedMessage))
	}
}
