// Package config holds the typed configuration for the resolution engine.
// Precedence: ENV > file > defaults.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration consumed by the engine.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Provider  ProviderConfig  `yaml:"provider"`
	Selection SelectionConfig `yaml:"selection"`
	Transport TransportConfig `yaml:"transport"`
	Overlay   OverlayConfig   `yaml:"overlay"`
	Prompt    PromptConfig    `yaml:"prompt"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// ProviderConfig describes the manifest provider endpoint and its
// provider-specific error-code conventions.
type ProviderConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// BlockedCodes is the set of provider error codes treated as an
	// anti-automation block (triggers the bypass request variant).
	BlockedCodes []int `yaml:"blockedCodes"`
}

// SelectionConfig carries the injectable pieces of track selection.
type SelectionConfig struct {
	// QualityRank maps a provider quality id to its perceptual rank.
	// Higher rank wins. The mapping must be injective; ids absent from
	// the table rank below every listed id, ordered by raw id.
	QualityRank map[int]int `yaml:"qualityRank"`
	// PreferredCodec breaks bandwidth ties between tracks of one quality.
	PreferredCodec string `yaml:"preferredCodec"`
}

// TransportConfig tunes the CDN failover transport.
type TransportConfig struct {
	// RetryableStatuses are HTTP statuses that advance the candidate
	// cursor instead of failing the request.
	RetryableStatuses []int `yaml:"retryableStatuses"`
}

// OverlayConfig tunes the overlay segment cache.
type OverlayConfig struct {
	PrefetchCount    int           `yaml:"prefetchCount"`
	CacheCapSegments int           `yaml:"cacheCapSegments"`
	ThrottleInterval time.Duration `yaml:"throttleInterval"`
	Shield           ShieldConfig  `yaml:"shield"`
}

// ShieldConfig is the default overlay item filter. Per-content defaults
// from overlay metadata may override it at load time.
type ShieldConfig struct {
	BlockedCategories []string `yaml:"blockedCategories"`
	MinAIConfidence   float64  `yaml:"minAIConfidence"`
}

// PromptConfig tunes the auto-resume and auto-skip coordinators.
type PromptConfig struct {
	CommitDelay time.Duration `yaml:"commitDelay"`
	// MinResumeMs suppresses resume prompts for positions within the
	// first seconds of the content.
	MinResumeMs int64 `yaml:"minResumeMs"`
	// SkipLookaheadMs arms a skip prompt slightly before its range.
	SkipLookaheadMs int64 `yaml:"skipLookaheadMs"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Provider: ProviderConfig{
			RequestTimeout: 30 * time.Second,
			BlockedCodes:   []int{-352, -412},
		},
		Selection: SelectionConfig{
			QualityRank: map[int]int{
				127: 100, // 8K
				126: 95,  // Dolby Vision
				125: 90,  // HDR
				120: 85,  // 4K
				116: 80,
				112: 75,
				80:  70,
				64:  60,
				32:  50,
				16:  40,
			},
			PreferredCodec: "hevc",
		},
		Transport: TransportConfig{
			RetryableStatuses: []int{403, 404, 500, 502, 503, 504},
		},
		Overlay: OverlayConfig{
			PrefetchCount:    2,
			CacheCapSegments: 12,
			ThrottleInterval: time.Second,
			Shield: ShieldConfig{
				MinAIConfidence: 0.0,
			},
		},
		Prompt: PromptConfig{
			CommitDelay:     5 * time.Second,
			MinResumeMs:     10_000,
			SkipLookaheadMs: 1_000,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("provider.baseURL is required"))
	}
	if c.Provider.RequestTimeout <= 0 {
		errs = append(errs, errors.New("provider.requestTimeout must be positive"))
	}
	if len(c.Selection.QualityRank) == 0 {
		errs = append(errs, errors.New("selection.qualityRank must not be empty"))
	}
	seen := make(map[int]int, len(c.Selection.QualityRank))
	for id, rank := range c.Selection.QualityRank {
		if prev, dup := seen[rank]; dup {
			errs = append(errs, fmt.Errorf("selection.qualityRank: ids %d and %d share rank %d", prev, id, rank))
		}
		seen[rank] = id
	}
	if c.Overlay.PrefetchCount < 0 {
		errs = append(errs, errors.New("overlay.prefetchCount must not be negative"))
	}
	if c.Overlay.CacheCapSegments < 1 {
		errs = append(errs, errors.New("overlay.cacheCapSegments must be at least 1"))
	}
	if c.Overlay.Shield.MinAIConfidence < 0 || c.Overlay.Shield.MinAIConfidence > 1 {
		errs = append(errs, errors.New("overlay.shield.minAIConfidence must be within [0,1]"))
	}
	if c.Prompt.CommitDelay <= 0 {
		errs = append(errs, errors.New("prompt.commitDelay must be positive"))
	}

	return errors.Join(errs...)
}
