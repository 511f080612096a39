package overlay

import (
	"strings"

	"playres/internal/config"
	"playres/internal/manifest"
)

// Shield is the filter predicate applied to overlay items before they
// reach the render buffer: category deny-list plus an AI-confidence
// threshold (AI-generated items below the threshold are suppressed).
type Shield struct {
	blocked map[string]struct{}
	minAI   float64
}

// NewShield merges the configured defaults with the per-content shield
// defaults delivered in the overlay metadata. Metadata categories extend
// the configured deny-list; a stricter metadata threshold wins.
func NewShield(cfg config.ShieldConfig, defaults manifest.ShieldDefaults) Shield {
	s := Shield{
		blocked: make(map[string]struct{}, len(cfg.BlockedCategories)+len(defaults.BlockedCategories)),
		minAI:   cfg.MinAIConfidence,
	}
	for _, c := range cfg.BlockedCategories {
		s.block(c)
	}
	for _, c := range defaults.BlockedCategories {
		s.block(c)
	}
	if defaults.MinAIConfidence > s.minAI {
		s.minAI = defaults.MinAIConfidence
	}
	return s
}

func (s *Shield) block(category string) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category != "" {
		s.blocked[category] = struct{}{}
	}
}

// Allow reports whether the item may be rendered.
func (s Shield) Allow(item manifest.OverlayItem) bool {
	if _, denied := s.blocked[strings.ToLower(item.Category)]; denied {
		return false
	}
	if item.AIScore > 0 && item.AIScore < s.minAI {
		return false
	}
	return true
}
