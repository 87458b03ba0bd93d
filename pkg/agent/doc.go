// Package agent provides the LLM client abstractions used by the pipeline stages.
//
// This package serves as the public API for LLM access with the following structure:
//   - Type aliases for the llm package's request, response and client types
//   - A factory that builds a provider client wrapped in the middleware chain
//   - A scripted mock client for tests
//
// Provider implementations are kept private under internal/llmimpl.
package agent
