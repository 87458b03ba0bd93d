// Package config provides configuration loading, validation, and provider resolution for csvanalyst.
//
// KEY PRINCIPLES:
//
//  1. A single YAML file (default csvanalyst.yaml) describes a run. A missing file is not an
//     error: the defaults give a working local setup (llama3.2:3b on a local Ollama,
//     support_tickets_data.csv in, graphs/ and report.md out).
//
//  2. VALUE-BASED ACCESS: Load returns a Config value after defaults and validation have been
//     applied. Command line flags are merged by the caller before the run starts.
//
//  3. Algorithm thresholds that users may tune (chart cardinality, outlier factor) live in the
//     file; everything else is a constant in this package.
//
//  4. Secrets never live in the YAML file. API keys come from the encrypted secrets file or
//     from environment variables (see secrets.go).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"csvanalyst/pkg/logx"
)

//nolint:gochecknoglobals // Package logger for config operations
var logger = logx.NewLogger("config")

// LogInfo logs an info message using the config logger.
// This is exposed for other packages (like main) to use consistent logging.
func LogInfo(format string, args ...any) {
	logger.Info(format, args...)
}

// All constants bundled together for easy maintenance.
const (
	// DefaultConfigFile is looked up in the working directory when -config is not given.
	DefaultConfigFile = "csvanalyst.yaml"

	// ProjectConfigDir holds run history, logs and the secrets file.
	ProjectConfigDir = ".csvanalyst"

	DefaultCSVPath     = "support_tickets_data.csv"
	DefaultReportPath  = "report.md"
	DefaultGraphsDir   = "graphs"
	DefaultImageFormat = "png"

	DefaultModel       = "llama3.2:3b"
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.3

	DefaultMaxCategories        = 15
	DefaultMaxScatterPairs      = 3
	DefaultChartWidthInches     = 6.0
	DefaultChartHeightInches    = 4.0
	DefaultCategoricalMaxUnique = 20
	DefaultOutlierIQRFactor     = 1.5
	DefaultSampleRows           = 20
	DefaultMaxDatasetTokens     = 3000

	// Provider constants.
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"

	// Environment variables.
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
	EnvModel           = "CSVANALYST_MODEL"
	EnvPassword        = "CSVANALYST_PASSWORD"
)

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string // API provider
	MaxContextTokens int    // Maximum context window size in tokens
	MaxOutputTokens  int    // Maximum output tokens per request
}

// KnownModels registry contains context limits for common models.
// Unknown models are resolved via ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	"llama3.2:3b":       {Provider: ProviderOllama, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	"llama3.1:8b":       {Provider: ProviderOllama, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	"qwen2.5:7b":        {Provider: ProviderOllama, MaxContextTokens: 32000, MaxOutputTokens: 4096},
	"claude-sonnet-4-5": {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	"gpt-4o":            {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	"gpt-5":             {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	"gemini-2.5-flash":  {Provider: ProviderGoogle, MaxContextTokens: 1000000, MaxOutputTokens: 8192},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"gemma", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama/", ProviderOllama}, // litellm-style "ollama/llama3.2:3b"
}

// GetModelProvider returns the API provider for a given model.
// First checks KnownModels, then tries pattern matching.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match - set llm.provider explicitly", modelName)
}

// GetModelInfo returns the ModelInfo for a given model name, falling back to conservative
// defaults for unknown models.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}
	provider, _ := GetModelProvider(modelName)
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// InputConfig describes the CSV to analyse.
type InputConfig struct {
	CSVPath   string `yaml:"csv_path"`
	Delimiter string `yaml:"delimiter"` // empty = sniff
	MaxRows   int    `yaml:"max_rows"`  // 0 = unlimited
}

// OutputConfig describes where artifacts are written.
type OutputConfig struct {
	ReportPath  string `yaml:"report_path"`
	GraphsDir   string `yaml:"graphs_dir"`
	ImageFormat string `yaml:"image_format"` // png, svg, pdf
}

// LLMConfig selects the inference backend.
type LLMConfig struct {
	Model       string   `yaml:"model"`
	Provider    string   `yaml:"provider"` // empty = infer from model
	BaseURL     string   `yaml:"base_url"` // Ollama host or OpenAI-compatible endpoint
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float32 `yaml:"temperature"` // nil = DefaultTemperature; 0 is greedy decoding
}

// SamplingTemperature returns the configured temperature or DefaultTemperature.
func (c *LLMConfig) SamplingTemperature() float32 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// ChartsConfig tunes chart selection and rendering.
type ChartsConfig struct {
	MaxCategories   int     `yaml:"max_categories"`
	MaxScatterPairs int     `yaml:"max_scatter_pairs"`
	HistogramBins   int     `yaml:"histogram_bins"` // 0 = Sturges
	WidthInches     float64 `yaml:"width_inches"`
	HeightInches    float64 `yaml:"height_inches"`
}

// StatsConfig tunes column kind inference and outlier detection.
type StatsConfig struct {
	CategoricalMaxUnique int     `yaml:"categorical_max_unique"`
	OutlierIQRFactor     float64 `yaml:"outlier_iqr_factor"`
}

// ContextConfig bounds how much of the dataset is handed to the model.
type ContextConfig struct {
	SampleRows       int `yaml:"sample_rows"`
	MaxDatasetTokens int `yaml:"max_dataset_tokens"`
}

// HistoryConfig controls the SQLite run history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LogsConfig controls log and event files.
type LogsConfig struct {
	Dir      string `yaml:"dir"`
	EventLog bool   `yaml:"event_log"`
	File     bool   `yaml:"file"`
}

// MetricsConfig defines configuration for metrics collection.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"` // Prometheus textfile written at the end of a run
}

// Config is the complete run configuration.
type Config struct {
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	LLM     LLMConfig     `yaml:"llm"`
	Charts  ChartsConfig  `yaml:"charts"`
	Stats   StatsConfig   `yaml:"stats"`
	Context ContextConfig `yaml:"context"`
	History HistoryConfig `yaml:"history"`
	Logs    LogsConfig    `yaml:"logs"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns a config with every field set to its default.
func Default() Config {
	cfg := Config{
		History: HistoryConfig{Enabled: true},
		Logs:    LogsConfig{EventLog: true},
	}
	applyDefaults(&cfg)
	resolveProvider(&cfg)
	return cfg
}

// Load reads the YAML file at path. A missing file yields Default(); an unparseable file is
// an error. Environment overrides (CSVANALYST_MODEL) are applied after the file.
func Load(path string) (Config, error) {
	cfg := Default()
	cfg.LLM.Provider = "" // re-inferred once the file's model is known

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("📝 Config file %s not found, using defaults", path)
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config YAML %s: %w", path, err)
		}
		logger.Info("📝 Loaded config from %s", path)
	}

	if model := os.Getenv(EnvModel); model != "" {
		cfg.LLM.Model = model
	}

	applyDefaults(&cfg)
	resolveProvider(&cfg)
	if err := Validate(&cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating or overwriting path.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	// `\t` and "tab" both name the tab character.
	switch strings.ToLower(cfg.Input.Delimiter) {
	case `\t`, "tab":
		cfg.Input.Delimiter = "\t"
	}
	if cfg.Input.CSVPath == "" {
		cfg.Input.CSVPath = DefaultCSVPath
	}
	if cfg.Output.ReportPath == "" {
		cfg.Output.ReportPath = DefaultReportPath
	}
	if cfg.Output.GraphsDir == "" {
		cfg.Output.GraphsDir = DefaultGraphsDir
	}
	if cfg.Output.ImageFormat == "" {
		cfg.Output.ImageFormat = DefaultImageFormat
	}
	cfg.Output.ImageFormat = strings.ToLower(strings.TrimPrefix(cfg.Output.ImageFormat, "."))

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	// litellm-style "ollama/<model>" names select the provider and are stripped.
	if strings.HasPrefix(cfg.LLM.Model, "ollama/") {
		cfg.LLM.Model = strings.TrimPrefix(cfg.LLM.Model, "ollama/")
		if cfg.LLM.Provider == "" {
			cfg.LLM.Provider = ProviderOllama
		}
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = DefaultMaxTokens
	}
	if cfg.LLM.Temperature == nil {
		temperature := float32(DefaultTemperature)
		cfg.LLM.Temperature = &temperature
	}

	if cfg.Charts.MaxCategories <= 0 {
		cfg.Charts.MaxCategories = DefaultMaxCategories
	}
	if cfg.Charts.MaxScatterPairs < 0 {
		cfg.Charts.MaxScatterPairs = 0
	} else if cfg.Charts.MaxScatterPairs == 0 {
		cfg.Charts.MaxScatterPairs = DefaultMaxScatterPairs
	}
	if cfg.Charts.WidthInches <= 0 {
		cfg.Charts.WidthInches = DefaultChartWidthInches
	}
	if cfg.Charts.HeightInches <= 0 {
		cfg.Charts.HeightInches = DefaultChartHeightInches
	}

	if cfg.Stats.CategoricalMaxUnique <= 0 {
		cfg.Stats.CategoricalMaxUnique = DefaultCategoricalMaxUnique
	}
	if cfg.Stats.OutlierIQRFactor <= 0 {
		cfg.Stats.OutlierIQRFactor = DefaultOutlierIQRFactor
	}

	if cfg.Context.SampleRows <= 0 {
		cfg.Context.SampleRows = DefaultSampleRows
	}
	if cfg.Context.MaxDatasetTokens <= 0 {
		cfg.Context.MaxDatasetTokens = DefaultMaxDatasetTokens
	}

	if cfg.History.DBPath == "" {
		cfg.History.DBPath = ProjectConfigDir + "/history.db"
	}
	if cfg.Logs.Dir == "" {
		cfg.Logs.Dir = ProjectConfigDir + "/logs"
	}
}

// resolveProvider infers llm.provider from the model name when it is not set.
func resolveProvider(cfg *Config) {
	if cfg.LLM.Provider != "" {
		return
	}
	if provider, err := GetModelProvider(cfg.LLM.Model); err == nil {
		cfg.LLM.Provider = provider
	}
}

// Validate checks a config after defaults have been applied.
func Validate(cfg *Config) error {
	switch cfg.LLM.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
	case "":
		return fmt.Errorf("cannot determine provider for model %q: set llm.provider", cfg.LLM.Model)
	default:
		return fmt.Errorf("unknown llm.provider %q", cfg.LLM.Provider)
	}
	if t := cfg.LLM.SamplingTemperature(); t < 0 || t > 2 {
		return fmt.Errorf("llm.temperature must be between 0.0 and 2.0")
	}
	info, known := GetModelInfo(cfg.LLM.Model)
	if known && cfg.LLM.MaxTokens > info.MaxOutputTokens {
		return fmt.Errorf("llm.max_tokens %d exceeds the %d output tokens %s supports", cfg.LLM.MaxTokens, info.MaxOutputTokens, cfg.LLM.Model)
	}
	if budget := cfg.Context.MaxDatasetTokens + cfg.LLM.MaxTokens; budget > info.MaxContextTokens {
		return fmt.Errorf("context.max_dataset_tokens plus llm.max_tokens (%d) exceeds the %d token context of %s",
			budget, info.MaxContextTokens, cfg.LLM.Model)
	}
	switch cfg.Output.ImageFormat {
	case "png", "svg", "pdf", "jpg", "jpeg":
	default:
		return fmt.Errorf("unsupported output.image_format %q", cfg.Output.ImageFormat)
	}
	if len([]rune(cfg.Input.Delimiter)) > 1 {
		return fmt.Errorf("input.delimiter must be a single character, got %q", cfg.Input.Delimiter)
	}
	if cfg.Input.MaxRows < 0 {
		return fmt.Errorf("input.max_rows must not be negative")
	}
	return nil
}

// SetModel overrides llm.model, re-infers the provider and re-validates.
func (c *Config) SetModel(model string) error {
	c.LLM.Model = model
	c.LLM.Provider = ""
	applyDefaults(c)
	resolveProvider(c)
	return Validate(c)
}

// Delimiter returns the configured delimiter rune, or 0 for auto-detection.
func (c *Config) Delimiter() rune {
	if c.Input.Delimiter == "" {
		return 0
	}
	return []rune(c.Input.Delimiter)[0]
}

// GetAPIKey returns the API key for a given provider.
// Checks secrets file first, then falls back to environment variables.
// For Ollama, returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = DefaultOllamaHost
		}
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", envVar)
}
