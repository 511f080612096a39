package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration with precedence ENV > file > defaults.
// An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := strictUnmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// strictUnmarshal decodes YAML rejecting unknown keys so typos fail fast.
func strictUnmarshal(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Log.Level = ParseString("PLAYRES_LOG_LEVEL", cfg.Log.Level)
	cfg.Provider.BaseURL = ParseString("PLAYRES_PROVIDER_URL", cfg.Provider.BaseURL)
	cfg.Provider.RequestTimeout = ParseDuration("PLAYRES_PROVIDER_TIMEOUT", cfg.Provider.RequestTimeout)
	cfg.Selection.PreferredCodec = ParseString("PLAYRES_PREFERRED_CODEC", cfg.Selection.PreferredCodec)
	cfg.Overlay.PrefetchCount = ParseInt("PLAYRES_OVERLAY_PREFETCH", cfg.Overlay.PrefetchCount)
	cfg.Overlay.CacheCapSegments = ParseInt("PLAYRES_OVERLAY_CACHE_CAP", cfg.Overlay.CacheCapSegments)
	cfg.Overlay.ThrottleInterval = ParseDuration("PLAYRES_OVERLAY_THROTTLE", cfg.Overlay.ThrottleInterval)
	cfg.Overlay.Shield.MinAIConfidence = ParseFloat("PLAYRES_SHIELD_MIN_AI_CONFIDENCE", cfg.Overlay.Shield.MinAIConfidence)
	cfg.Prompt.CommitDelay = ParseDuration("PLAYRES_PROMPT_COMMIT_DELAY", cfg.Prompt.CommitDelay)
}
