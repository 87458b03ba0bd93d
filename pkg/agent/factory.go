// Package agent provides LLM client factory with middleware chain construction.
package agent

import (
	"fmt"

	"csvanalyst/pkg/agent/internal/llmimpl/anthropic"
	"csvanalyst/pkg/agent/internal/llmimpl/google"
	"csvanalyst/pkg/agent/internal/llmimpl/ollama"
	"csvanalyst/pkg/agent/internal/llmimpl/openaiofficial"
	"csvanalyst/pkg/agent/llm"
	"csvanalyst/pkg/agent/middleware/logging"
	"csvanalyst/pkg/agent/middleware/metrics"
	"csvanalyst/pkg/agent/middleware/validation"
	"csvanalyst/pkg/config"
	"csvanalyst/pkg/logx"
)

// LLMClientFactory creates LLM clients with properly configured middleware chains.
type LLMClientFactory struct {
	config          config.LLMConfig
	metricsRecorder metrics.Recorder
	logger          *logx.Logger
}

// NewLLMClientFactory creates a new LLM client factory. A nil recorder disables metrics.
func NewLLMClientFactory(cfg config.LLMConfig, recorder metrics.Recorder) *LLMClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &LLMClientFactory{
		config:          cfg,
		metricsRecorder: recorder,
		logger:          logx.NewLogger("llm"),
	}
}

// CreateClient creates the configured provider's client with the full middleware chain.
// The API key is retrieved from the secrets file or the environment based on the provider.
func (f *LLMClientFactory) CreateClient() (LLMClient, error) {
	provider := f.config.Provider
	if provider == "" {
		p, err := config.GetModelProvider(f.config.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to determine provider for model %s: %w", f.config.Model, err)
		}
		provider = p
	}

	credential, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	raw, err := newRawClient(provider, f.config.Model, credential, f.config.BaseURL)
	if err != nil {
		return nil, err
	}
	return f.Wrap(raw), nil
}

// Wrap applies the middleware chain to a client:
// Metrics -> Logging -> EmptyResponseValidation -> client.
// Nothing in the chain retries, so each stage makes exactly one provider call.
func (f *LLMClientFactory) Wrap(client LLMClient) LLMClient {
	return llm.Chain(client,
		metrics.Middleware(f.metricsRecorder, nil, f.logger),
		logging.Middleware(f.logger),
		validation.EmptyResponseMiddleware(),
	)
}

// newRawClient builds the provider client. For Ollama, credential is the host URL and
// baseURL, when set, overrides it.
func newRawClient(provider, model, credential, baseURL string) (LLMClient, error) {
	switch provider {
	case config.ProviderOllama:
		host := credential
		if baseURL != "" {
			host = baseURL
		}
		return ollama.NewOllamaClientWithModel(host, model), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(credential, model, baseURL), nil
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClientWithModel(credential, model, baseURL), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(credential, model, baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
