// Package config loads pipeline-wide settings from an optional .drift.yaml
// file, env vars, and CLI flag overrides, in that increasing priority order.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the drift pipeline's stages need, gathered
// once at startup and threaded through explicitly rather than read from
// globals.
type Config struct {
	OutputDir string  `yaml:"outputDir"`
	Threshold float64 `yaml:"threshold"`

	Ollama OllamaConfig `yaml:"ollama"`

	Guardrails GuardrailConfig `yaml:"guardrails"`

	ManifestPath string `yaml:"manifestPath"`

	WeightOverrides map[string]float64 `yaml:"weightOverrides"`
}

// OllamaConfig points the embed stage at a local Ollama server.
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// GuardrailConfig bounds the scoring stage's O(n^2) pairwise comparison.
type GuardrailConfig struct {
	MaxUnits      int `yaml:"maxUnits"`
	MaxPairs      int `yaml:"maxPairs"`
	MaxRuntimeMs  int `yaml:"maxRuntimeMs"`
}

// Default returns a Config with the pipeline's baseline settings, matching
// DefaultOptions in domain/score.
func Default() Config {
	return Config{
		OutputDir:    ".drift-audit/semantic",
		Threshold:    0.35,
		Ollama:       OllamaConfig{URL: "http://localhost:11434", Model: "nomic-embed-text"},
		ManifestPath: "drift-manifest.json",
		Guardrails: GuardrailConfig{
			MaxUnits:     5000,
			MaxPairs:     5_000_000,
			MaxRuntimeMs: 10 * 60 * 1000,
		},
	}
}

// Load reads configPath (if it exists) over the defaults, then applies any
// recognized environment variable overrides. A missing configPath is not an
// error; a malformed one is.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", configPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return cfg, fmt.Errorf("threshold must be between 0 and 1, got %f", cfg.Threshold)
	}
	if cfg.OutputDir == "" {
		return cfg, fmt.Errorf("outputDir must not be empty")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DRIFT_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("DRIFT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Threshold = f
		}
	}
	if v := os.Getenv("DRIFT_OLLAMA_URL"); v != "" {
		cfg.Ollama.URL = v
	}
	if v := os.Getenv("DRIFT_OLLAMA_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}
	if v := os.Getenv("DRIFT_MANIFEST_PATH"); v != "" {
		cfg.ManifestPath = v
	}
}
