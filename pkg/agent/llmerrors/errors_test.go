package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   ErrorType
		status int
	}{
		{"status 401", errors.New("POST /v1/messages: status code: 401 Unauthorized"), ErrorTypeAuth, 401},
		{"status 429", errors.New("HTTP 429 Too Many Requests"), ErrorTypeRateLimit, 429},
		{"status 503", errors.New("status: 503 service unavailable"), ErrorTypeTransient, 503},
		{"model missing", errors.New(`model "llama9" not found, try pulling it first`), ErrorTypeBadPrompt, 0},
		{"connection refused", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), ErrorTypeTransient, 0},
		{"quota", errors.New("quota exhausted for project"), ErrorTypeRateLimit, 0},
		{"canceled", fmt.Errorf("post: %w", context.Canceled), ErrorTypeCanceled, 0},
		{"deadline", context.DeadlineExceeded, ErrorTypeTransient, 0},
		{"other", errors.New("something odd"), ErrorTypeUnknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("ollama", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.want, TypeOf(err), err.Error())
			assert.True(t, errors.Is(err, tt.err), "cause is kept")

			var llmErr *Error
			require.True(t, errors.As(err, &llmErr))
			assert.Equal(t, tt.status, llmErr.StatusCode)
		})
	}
}

func TestClassifyKeepsClassifiedErrors(t *testing.T) {
	original := NewError(ErrorTypeEmptyResponse, "empty")
	assert.Same(t, original, Classify("openai", original))
	assert.NoError(t, Classify("openai", nil))
}

func TestErrorTypeStrings(t *testing.T) {
	assert.Equal(t, "rate_limit", ErrorTypeRateLimit.String())
	assert.Equal(t, "empty_response", ErrorTypeEmptyResponse.String())
	assert.Equal(t, "canceled", ErrorTypeCanceled.String())
	assert.Equal(t, "invalid", ErrorType(99).String())
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.True(t, Is(NewError(ErrorTypeAuth, "x"), ErrorTypeAuth))
}

func TestSanitizePrompt(t *testing.T) {
	assert.Equal(t, "short", SanitizePrompt("short", 50))

	long := strings.Repeat("a", 150) + strings.Repeat("b", 150)
	got := SanitizePrompt(long, 50)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", 100)))
	assert.True(t, strings.HasSuffix(got, strings.Repeat("b", 100)))
	assert.Contains(t, got, "[300 chars, hash:")
}
