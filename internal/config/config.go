package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"fireside/chat"
	"fireside/engine"
)

// Config captures engine, session, sampler, history and logging settings for
// fireside.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Session SessionConfig `yaml:"session"`
	Sampler SamplerConfig `yaml:"sampler"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig selects the inference backend and its model load options.
type EngineConfig struct {
	Backend     string `yaml:"backend"`
	ModelPath   string `yaml:"model_path"`
	ContextSize int    `yaml:"context_size"`
	GPULayers   int    `yaml:"gpu_layers"`
	Threads     int    `yaml:"threads"`
	UseMmap     *bool  `yaml:"use_mmap"`
}

// SessionConfig governs how chat sessions are assembled.
type SessionConfig struct {
	SystemPrompt    string   `yaml:"system_prompt"`
	AllowThinking   *bool    `yaml:"allow_thinking"`
	StopWords       []string `yaml:"stop_words"`
	ToolFormat      string   `yaml:"tool_format"`
	KeepRecentTurns int      `yaml:"keep_recent_turns"`
}

// SamplerConfig overrides decoding parameters. Zero-valued fields keep the
// engine defaults. Seed below zero lets the backend pick.
type SamplerConfig struct {
	Temperature   float64 `yaml:"temperature"`
	TopK          int     `yaml:"top_k"`
	TopP          float64 `yaml:"top_p"`
	MinP          float64 `yaml:"min_p"`
	RepeatPenalty float64 `yaml:"repeat_penalty"`
	RepeatLastN   int     `yaml:"repeat_last_n"`
	Seed          int64   `yaml:"seed"`
}

// HistoryConfig configures persistent transcript storage.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls where log output goes.
type LoggingConfig struct {
	ToFile bool `yaml:"to_file"`
	Quiet  bool `yaml:"quiet"`
}

const defaultConfigFile = "fireside.yaml"

// Default returns a Config pre-populated with defaults for local models.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Backend:     "scripted",
			ContextSize: 4096,
			GPULayers:   -1,
		},
		Session: SessionConfig{
			ToolFormat:      "qwen3",
			KeepRecentTurns: 2,
		},
		Sampler: SamplerConfig{
			Temperature:   0.7,
			TopK:          40,
			TopP:          0.95,
			MinP:          0.05,
			RepeatPenalty: 1.1,
			RepeatLastN:   64,
			Seed:          -1,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "fireside_history.db",
		},
	}
}

// Resolve loads configuration from file and environment variables.
func Resolve() (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(os.Getenv("FIRESIDE_CONFIG"))
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	} else if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("provided FIRESIDE_CONFIG file %q not found", path)
	}

	if path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = merge(cfg, loaded)
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	return cfg, nil
}

func merge(base, override Config) Config {
	result := base

	if override.Engine.Backend != "" {
		result.Engine.Backend = override.Engine.Backend
	}
	if override.Engine.ModelPath != "" {
		result.Engine.ModelPath = override.Engine.ModelPath
	}
	if override.Engine.ContextSize != 0 {
		result.Engine.ContextSize = override.Engine.ContextSize
	}
	if override.Engine.GPULayers != 0 {
		result.Engine.GPULayers = override.Engine.GPULayers
	}
	if override.Engine.Threads != 0 {
		result.Engine.Threads = override.Engine.Threads
	}
	if override.Engine.UseMmap != nil {
		result.Engine.UseMmap = override.Engine.UseMmap
	}

	if override.Session.SystemPrompt != "" {
		result.Session.SystemPrompt = override.Session.SystemPrompt
	}
	if override.Session.AllowThinking != nil {
		result.Session.AllowThinking = override.Session.AllowThinking
	}
	if len(override.Session.StopWords) != 0 {
		result.Session.StopWords = append([]string(nil), override.Session.StopWords...)
	}
	if override.Session.ToolFormat != "" {
		result.Session.ToolFormat = override.Session.ToolFormat
	}
	if override.Session.KeepRecentTurns != 0 {
		result.Session.KeepRecentTurns = override.Session.KeepRecentTurns
	}

	s := override.Sampler
	if s.Temperature != 0 {
		result.Sampler.Temperature = s.Temperature
	}
	if s.TopK != 0 {
		result.Sampler.TopK = s.TopK
	}
	if s.TopP != 0 {
		result.Sampler.TopP = s.TopP
	}
	if s.MinP != 0 {
		result.Sampler.MinP = s.MinP
	}
	if s.RepeatPenalty != 0 {
		result.Sampler.RepeatPenalty = s.RepeatPenalty
	}
	if s.RepeatLastN != 0 {
		result.Sampler.RepeatLastN = s.RepeatLastN
	}
	if s.Seed != 0 {
		result.Sampler.Seed = s.Seed
	}

	if override.History.Enabled {
		result.History.Enabled = true
	}
	if override.History.Path != "" {
		result.History.Path = override.History.Path
	}

	if override.Logging.ToFile {
		result.Logging.ToFile = true
	}
	if override.Logging.Quiet {
		result.Logging.Quiet = true
	}

	return result
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_BACKEND")); v != "" {
		cfg.Engine.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_MODEL")); v != "" {
		cfg.Engine.ModelPath = v
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_CONTEXT_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.ContextSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_GPU_LAYERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.GPULayers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_THREADS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.Threads = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_SYSTEM_PROMPT")); v != "" {
		cfg.Session.SystemPrompt = v
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_THINKING")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Session.AllowThinking = &enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_TOOL_FORMAT")); v != "" {
		cfg.Session.ToolFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_STOP_WORDS")); v != "" {
		parts := strings.Split(v, ",")
		cfg.Session.StopWords = cfg.Session.StopWords[:0]
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				cfg.Session.StopWords = append(cfg.Session.StopWords, trimmed)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_HISTORY_ENABLED")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.History.Enabled = enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_HISTORY_PATH")); v != "" {
		cfg.History.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_LOG_TO_FILE")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.ToFile = enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv("FIRESIDE_QUIET")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.Quiet = enabled
		}
	}
}

// EngineOptions translates the engine section into backend load options.
func (c Config) EngineOptions() engine.Options {
	opts := engine.Options{
		ModelPath: c.Engine.ModelPath,
		GPULayers: c.Engine.GPULayers,
		Threads:   c.Engine.Threads,
		UseMmap:   true,
	}
	if c.Engine.UseMmap != nil {
		opts.UseMmap = *c.Engine.UseMmap
	}
	return opts
}

// SamplerSettings translates the sampler section into engine parameters.
func (c Config) SamplerSettings() engine.SamplerConfig {
	sc := engine.SamplerConfig{
		Temperature:   c.Sampler.Temperature,
		TopK:          c.Sampler.TopK,
		TopP:          c.Sampler.TopP,
		MinP:          c.Sampler.MinP,
		RepeatPenalty: c.Sampler.RepeatPenalty,
		RepeatLastN:   c.Sampler.RepeatLastN,
		Seed:          engine.SeedDefault,
	}
	if c.Sampler.Seed >= 0 {
		sc.Seed = uint32(c.Sampler.Seed)
	}
	return sc
}

// ChatConfig assembles the session configuration for the chat package.
// Tools are attached by the caller; they are not expressible in YAML.
func (c Config) ChatConfig() (chat.Config, error) {
	format, ok := chat.ToolFormatByName(c.Session.ToolFormat)
	if !ok {
		return chat.Config{}, fmt.Errorf("unknown tool format %q", c.Session.ToolFormat)
	}
	cfg := chat.DefaultConfig()
	cfg.SystemPrompt = c.Session.SystemPrompt
	cfg.ContextSize = c.Engine.ContextSize
	cfg.Sampler = c.SamplerSettings()
	cfg.StopWords = append([]string(nil), c.Session.StopWords...)
	cfg.Format = format
	if c.Session.AllowThinking != nil {
		cfg.AllowThinking = *c.Session.AllowThinking
	}
	if c.Session.KeepRecentTurns != 0 {
		cfg.KeepRecentTurns = c.Session.KeepRecentTurns
	}
	return cfg, nil
}
