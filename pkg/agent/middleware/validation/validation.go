// Package validation provides response validation middleware for LLM clients.
package validation

import (
	"context"
	"strings"

	"csvanalyst/pkg/agent/llm"
	"csvanalyst/pkg/agent/llmerrors"
)

// EmptyResponseMiddleware turns a response with no text into an ErrorTypeEmptyResponse error.
// The call is not repeated.
func EmptyResponseMiddleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
					return resp, err
				}
				if strings.TrimSpace(resp.Content) == "" {
					return llm.CompletionResponse{}, llmerrors.NewError(
						llmerrors.ErrorTypeEmptyResponse,
						"model "+next.GetModelName()+" returned no content (stop reason: "+stopReason(resp)+")",
					)
				}
				return resp, nil
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				in, err := next.Stream(ctx, req)
				if err != nil {
					//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
					return nil, err
				}

				out := make(chan llm.StreamChunk)
				go func() {
					defer close(out)
					var hasContent, failed bool
					for chunk := range in {
						failed = failed || chunk.Error != nil
						hasContent = hasContent || strings.TrimSpace(chunk.Content) != ""
						select {
						case out <- chunk:
						case <-ctx.Done():
							return
						}
					}
					if hasContent || failed {
						return
					}
					empty := llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "model "+next.GetModelName()+" streamed no content")
					select {
					case out <- llm.StreamChunk{Error: empty, Done: true}:
					case <-ctx.Done():
					}
				}()
				return out, nil
			},
			next.GetModelName,
		)
	}
}

func stopReason(resp llm.CompletionResponse) string {
	if resp.StopReason == "" {
		return "none"
	}
	return resp.StopReason
}
