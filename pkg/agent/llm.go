package agent

import (
	"csvanalyst/pkg/agent/llm"
)

// Aliases keep callers on a single import for the common LLM types.
type (
	// LLMClient defines the interface for language model interactions.
	LLMClient = llm.LLMClient
	// CompletionRequest represents a request to generate a completion.
	CompletionRequest = llm.CompletionRequest
	// CompletionResponse represents a response from a completion request.
	CompletionResponse = llm.CompletionResponse
	// CompletionMessage represents a message in a completion request.
	CompletionMessage = llm.CompletionMessage
	// StreamChunk represents a chunk of streamed completion response.
	StreamChunk = llm.StreamChunk
	// Usage reports token counts for one call.
	Usage = llm.Usage
)

// Message roles.
const (
	RoleSystem    = llm.RoleSystem
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant
)

// Request defaults.
const (
	DefaultMaxTokens   = llm.DefaultMaxTokens
	TemperatureDefault = llm.TemperatureDefault
)

// Message constructors.
//
//nolint:gochecknoglobals // Re-exported constructors
var (
	NewSystemMessage = llm.NewSystemMessage
	NewUserMessage   = llm.NewUserMessage
)
