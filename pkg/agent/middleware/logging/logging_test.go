package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvanalyst/pkg/agent/llm"
	"csvanalyst/pkg/agent/llmerrors"
	"csvanalyst/pkg/logx"
)

type stubClient struct {
	resp llm.CompletionResponse
	err  error
}

func (s *stubClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	return s.resp, s.err
}

func (s *stubClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.SingleChunkStream(ctx, s, in)
}

func (s *stubClient) GetModelName() string { return "stub" }

func TestMiddlewarePassesThrough(t *testing.T) {
	client := Middleware(nil)(&stubClient{resp: llm.CompletionResponse{Content: "ok"}})
	resp, err := client.Complete(logx.ContextWithStage(context.Background(), "visualization"), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "stub", client.GetModelName())
}

func TestMiddlewareKeepsErrors(t *testing.T) {
	for _, cause := range []error{
		errors.New("plain"),
		llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "too long"),
	} {
		client := Middleware(logx.NewLogger("test"))(&stubClient{err: cause})
		_, err := client.Complete(context.Background(), llm.CompletionRequest{
			Messages: []llm.CompletionMessage{llm.NewUserMessage("prompt")},
		})
		assert.Same(t, cause, err)
	}
}

func TestMiddlewareStreamForwardsChunks(t *testing.T) {
	client := Middleware(nil)(&stubClient{resp: llm.CompletionResponse{Content: "streamed"}})
	ch, err := client.Stream(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)

	var chunks []llm.StreamChunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 1)
	assert.Equal(t, "streamed", chunks[0].Content)
	assert.True(t, chunks[0].Done)

	cause := errors.New("down")
	_, err = Middleware(nil)(&stubClient{err: cause}).Stream(context.Background(), llm.CompletionRequest{})
	assert.Same(t, cause, err)
}
