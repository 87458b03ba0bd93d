package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "csvanalyst.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvModel, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultCSVPath, cfg.Input.CSVPath)
	assert.Equal(t, DefaultReportPath, cfg.Output.ReportPath)
	assert.Equal(t, DefaultGraphsDir, cfg.Output.GraphsDir)
	assert.Equal(t, "png", cfg.Output.ImageFormat)
	assert.Equal(t, DefaultModel, cfg.LLM.Model)
	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, DefaultMaxCategories, cfg.Charts.MaxCategories)
	assert.Equal(t, DefaultCategoricalMaxUnique, cfg.Stats.CategoricalMaxUnique)
	assert.InDelta(t, DefaultOutlierIQRFactor, cfg.Stats.OutlierIQRFactor, 1e-9)
	assert.True(t, cfg.History.Enabled)
	assert.True(t, cfg.Logs.EventLog)
	assert.InDelta(t, DefaultTemperature, cfg.LLM.SamplingTemperature(), 1e-6)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	t.Setenv(EnvModel, "")

	path := writeConfig(t, `
input:
  csv_path: data/tickets.csv
  delimiter: ";"
output:
  report_path: out/report.md
  graphs_dir: out/graphs
  image_format: .SVG
llm:
  model: gpt-4o
charts:
  max_categories: 8
history:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data/tickets.csv", cfg.Input.CSVPath)
	assert.Equal(t, ';', cfg.Delimiter())
	assert.Equal(t, "out/report.md", cfg.Output.ReportPath)
	assert.Equal(t, "svg", cfg.Output.ImageFormat)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider, "provider should follow the file's model")
	assert.Equal(t, 8, cfg.Charts.MaxCategories)
	assert.False(t, cfg.History.Enabled)
}

func TestLoadModelFromEnvironment(t *testing.T) {
	t.Setenv(EnvModel, "claude-sonnet-4-5")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
}

func TestLoadStripsOllamaPrefix(t *testing.T) {
	t.Setenv(EnvModel, "")

	cfg, err := Load(writeConfig(t, "llm:\n  model: ollama/llama3.2:3b\n"))
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:3b", cfg.LLM.Model)
	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv(EnvModel, "")

	tests := []struct {
		name string
		body string
	}{
		{"unknown model", "llm:\n  model: totally-unknown\n"},
		{"unknown provider", "llm:\n  provider: bedrock\n"},
		{"bad format", "output:\n  image_format: gif\n"},
		{"long delimiter", "input:\n  delimiter: ';;'\n"},
		{"negative rows", "input:\n  max_rows: -1\n"},
		{"bad temperature", "llm:\n  temperature: 3.5\n"},
		{"negative temperature", "llm:\n  temperature: -0.1\n"},
		{"max tokens above model output", "llm:\n  model: gpt-4o\n  max_tokens: 16000\n"},
		{"budget above model context", "llm:\n  model: qwen2.5:7b\ncontext:\n  max_dataset_tokens: 30000\n"},
		{"bad yaml", "llm: [unterminated\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDelimiter(t *testing.T) {
	cfg := Default()
	assert.Equal(t, rune(0), cfg.Delimiter())

	cfg.Input.Delimiter = "\t"
	assert.Equal(t, '\t', cfg.Delimiter())

	cfg.Input.Delimiter = "|"
	assert.Equal(t, '|', cfg.Delimiter())
}

func TestSaveAndReload(t *testing.T) {
	t.Setenv(EnvModel, "")

	cfg := Default()
	cfg.Input.CSVPath = "saved.csv"
	cfg.Charts.MaxScatterPairs = 1

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, Save(&cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestGetModelProvider(t *testing.T) {
	tests := map[string]string{
		"llama3.2:3b":      ProviderOllama,
		"mistral:7b":       ProviderOllama,
		"gpt-4.1-mini":     ProviderOpenAI,
		"claude-opus-4":    ProviderAnthropic,
		"gemini-2.0-flash": ProviderGoogle,
	}
	for model, want := range tests {
		got, err := GetModelProvider(model)
		require.NoError(t, err, model)
		assert.Equal(t, want, got, model)
	}

	_, err := GetModelProvider("nonsense")
	assert.Error(t, err)
}

func TestGetAPIKeyOllamaHost(t *testing.T) {
	t.Setenv(EnvOllamaHost, "")
	host, err := GetAPIKey(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaHost, host)

	t.Setenv(EnvOllamaHost, "gpu-box:11434")
	host, err = GetAPIKey(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", host)
}

func TestGetAPIKeyFromEnvironment(t *testing.T) {
	defer SetDecryptedSecrets(nil)
	SetDecryptedSecrets(nil)

	t.Setenv(EnvOpenAIAPIKey, "sk-env")
	key, err := GetAPIKey(ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", key)

	t.Setenv(EnvAnthropicAPIKey, "")
	_, err = GetAPIKey(ProviderAnthropic)
	assert.Error(t, err)
}

func TestSetModel(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.SetModel("gemini-2.0-flash"))
	assert.Equal(t, ProviderGoogle, cfg.LLM.Provider)

	require.NoError(t, cfg.SetModel("ollama/mistral:7b"))
	assert.Equal(t, "mistral:7b", cfg.LLM.Model)
	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)

	assert.Error(t, cfg.SetModel("totally-unknown"))
}

func TestLoadTabDelimiter(t *testing.T) {
	t.Setenv(EnvModel, "")

	for _, body := range []string{
		"input:\n  delimiter: \\t\n",
		"input:\n  delimiter: '\\t'\n",
		"input:\n  delimiter: tab\n",
		"input:\n  delimiter: \"\\t\"\n",
	} {
		cfg, err := Load(writeConfig(t, body))
		require.NoError(t, err, body)
		assert.Equal(t, "\t", cfg.Input.Delimiter, body)
		assert.Equal(t, '\t', cfg.Delimiter(), body)
	}
}

func TestLoadZeroTemperatureIsKept(t *testing.T) {
	t.Setenv(EnvModel, "")

	cfg, err := Load(writeConfig(t, "llm:\n  temperature: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.Zero(t, cfg.LLM.SamplingTemperature())

	cfg, err = Load(writeConfig(t, "llm:\n  temperature: 0.7\n"))
	require.NoError(t, err)
	assert.InDelta(t, 0.7, cfg.LLM.SamplingTemperature(), 1e-6)

	// Loading must not write through to the defaults of later configs.
	def := Default()
	assert.InDelta(t, DefaultTemperature, def.LLM.SamplingTemperature(), 1e-6)
}

func TestValidateModelLimits(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.SetModel("gpt-5"))
	cfg.LLM.MaxTokens = 16000
	assert.NoError(t, Validate(&cfg), "gpt-5 allows 16384 output tokens")

	cfg = Default()
	require.NoError(t, cfg.SetModel("claude-sonnet-4-5"))
	cfg.LLM.MaxTokens = 16000
	assert.ErrorContains(t, Validate(&cfg), "llm.max_tokens")

	cfg = Default()
	require.NoError(t, cfg.SetModel("mistral:7b"))
	cfg.LLM.MaxTokens = 8000
	assert.NoError(t, Validate(&cfg), "output limits are only enforced for known models")

	cfg.Context.MaxDatasetTokens = 30000
	assert.ErrorContains(t, Validate(&cfg), "context")
}
