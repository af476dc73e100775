package config

import (
	"os"
	"path/filepath"
	"testing"

	"fireside/engine"
)

func TestMergeEngineFields(t *testing.T) {
	base := Default()

	t.Run("backend override", func(t *testing.T) {
		override := Config{}
		override.Engine.Backend = "llamacpp"
		result := merge(base, override)
		if result.Engine.Backend != "llamacpp" {
			t.Errorf("Backend = %q, want llamacpp", result.Engine.Backend)
		}
		// Base fields preserved.
		if result.Engine.ContextSize != 4096 {
			t.Errorf("ContextSize lost: got %d", result.Engine.ContextSize)
		}
	})

	t.Run("model path not overridden when empty", func(t *testing.T) {
		baseCfg := Config{}
		baseCfg.Engine.ModelPath = "weights.gguf"
		result := merge(baseCfg, Config{})
		if result.Engine.ModelPath != "weights.gguf" {
			t.Errorf("ModelPath = %q, want weights.gguf", result.Engine.ModelPath)
		}
	})

	t.Run("use_mmap override to false", func(t *testing.T) {
		f := false
		override := Config{}
		override.Engine.UseMmap = &f
		result := merge(base, override)
		if result.Engine.UseMmap == nil || *result.Engine.UseMmap {
			t.Error("UseMmap not overridden to false")
		}
	})

	t.Run("use_mmap not overridden when nil", func(t *testing.T) {
		tr := true
		baseCfg := Config{}
		baseCfg.Engine.UseMmap = &tr
		result := merge(baseCfg, Config{})
		if result.Engine.UseMmap == nil || !*result.Engine.UseMmap {
			t.Error("UseMmap lost on merge")
		}
	})
}

func TestMergeSessionFields(t *testing.T) {
	base := Default()

	t.Run("thinking override to false", func(t *testing.T) {
		f := false
		override := Config{}
		override.Session.AllowThinking = &f
		result := merge(base, override)
		if result.Session.AllowThinking == nil || *result.Session.AllowThinking {
			t.Error("AllowThinking not overridden to false")
		}
	})

	t.Run("stop words replace rather than append", func(t *testing.T) {
		baseCfg := Config{}
		baseCfg.Session.StopWords = []string{"<|old|>"}
		override := Config{}
		override.Session.StopWords = []string{"<|a|>", "<|b|>"}
		result := merge(baseCfg, override)
		if len(result.Session.StopWords) != 2 || result.Session.StopWords[0] != "<|a|>" {
			t.Errorf("StopWords = %v", result.Session.StopWords)
		}
	})

	t.Run("tool format preserved when empty", func(t *testing.T) {
		result := merge(base, Config{})
		if result.Session.ToolFormat != "qwen3" {
			t.Errorf("ToolFormat = %q, want qwen3", result.Session.ToolFormat)
		}
	})
}

func TestMergeSamplerFields(t *testing.T) {
	base := Default()

	override := Config{}
	override.Sampler.Temperature = 0.2
	override.Sampler.Seed = 42

	result := merge(base, override)
	if result.Sampler.Temperature != 0.2 {
		t.Errorf("Temperature = %f, want 0.2", result.Sampler.Temperature)
	}
	if result.Sampler.Seed != 42 {
		t.Errorf("Seed = %d, want 42", result.Sampler.Seed)
	}
	// Untouched fields keep base values.
	if result.Sampler.TopK != 40 {
		t.Errorf("TopK = %d, want 40", result.Sampler.TopK)
	}
	if result.Sampler.RepeatPenalty != 1.1 {
		t.Errorf("RepeatPenalty = %f, want 1.1", result.Sampler.RepeatPenalty)
	}
}

func TestSamplerSettings(t *testing.T) {
	cfg := Default()
	sc := cfg.SamplerSettings()
	if sc.Seed != engine.SeedDefault {
		t.Errorf("negative seed should map to backend default, got %d", sc.Seed)
	}

	cfg.Sampler.Seed = 7
	if got := cfg.SamplerSettings().Seed; got != 7 {
		t.Errorf("Seed = %d, want 7", got)
	}
}

func TestChatConfig(t *testing.T) {
	cfg := Default()
	cfg.Session.SystemPrompt = "be nice"
	cfg.Engine.ContextSize = 2048
	f := false
	cfg.Session.AllowThinking = &f

	cc, err := cfg.ChatConfig()
	if err != nil {
		t.Fatalf("ChatConfig: %v", err)
	}
	if cc.SystemPrompt != "be nice" || cc.ContextSize != 2048 {
		t.Errorf("ChatConfig = %+v", cc)
	}
	if cc.AllowThinking {
		t.Error("AllowThinking not carried over")
	}
	if cc.Format == nil || cc.Format.Name() != "qwen3" {
		t.Errorf("Format = %v", cc.Format)
	}

	cfg.Session.ToolFormat = "no-such-format"
	if _, err := cfg.ChatConfig(); err == nil {
		t.Error("expected error for unknown tool format")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fireside.yaml")
	body := `
engine:
  backend: llamacpp
  model_path: /models/qwen3-0.6b.gguf
  context_size: 8192
session:
  system_prompt: you are terse
  stop_words: ["<|im_end|>"]
sampler:
  temperature: 0.4
history:
  path: /tmp/fireside.db
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := loadFile(path)
	if err != nil {
		t.Fatalf("loadFile: %v", err)
	}
	merged := merge(Default(), loaded)

	if merged.Engine.Backend != "llamacpp" {
		t.Errorf("Backend = %q", merged.Engine.Backend)
	}
	if merged.Engine.ModelPath != "/models/qwen3-0.6b.gguf" {
		t.Errorf("ModelPath = %q", merged.Engine.ModelPath)
	}
	if merged.Engine.ContextSize != 8192 {
		t.Errorf("ContextSize = %d", merged.Engine.ContextSize)
	}
	if merged.Session.SystemPrompt != "you are terse" {
		t.Errorf("SystemPrompt = %q", merged.Session.SystemPrompt)
	}
	if merged.Sampler.Temperature != 0.4 {
		t.Errorf("Temperature = %f", merged.Sampler.Temperature)
	}
	// Defaults survive for sections the file does not mention.
	if merged.Sampler.TopK != 40 {
		t.Errorf("TopK = %d", merged.Sampler.TopK)
	}
	if merged.History.Path != "/tmp/fireside.db" {
		t.Errorf("History.Path = %q", merged.History.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FIRESIDE_BACKEND", "scripted")
	t.Setenv("FIRESIDE_CONTEXT_SIZE", "1024")
	t.Setenv("FIRESIDE_THINKING", "false")
	t.Setenv("FIRESIDE_STOP_WORDS", " <|a|>, <|b|> ,")

	cfg := Default()
	applyEnvOverrides(&cfg)

	if cfg.Engine.Backend != "scripted" {
		t.Errorf("Backend = %q", cfg.Engine.Backend)
	}
	if cfg.Engine.ContextSize != 1024 {
		t.Errorf("ContextSize = %d", cfg.Engine.ContextSize)
	}
	if cfg.Session.AllowThinking == nil || *cfg.Session.AllowThinking {
		t.Error("AllowThinking not overridden")
	}
	want := []string{"<|a|>", "<|b|>"}
	if len(cfg.Session.StopWords) != 2 || cfg.Session.StopWords[0] != want[0] || cfg.Session.StopWords[1] != want[1] {
		t.Errorf("StopWords = %v, want %v", cfg.Session.StopWords, want)
	}
}
