package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidatesWithBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Provider.BaseURL = "https://api.example.com"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Provider.BaseURL = "" },
			wantErr: "provider.baseURL",
		},
		{
			name:    "empty rank table",
			mutate:  func(c *Config) { c.Selection.QualityRank = nil },
			wantErr: "qualityRank",
		},
		{
			name: "duplicate ranks",
			mutate: func(c *Config) {
				c.Selection.QualityRank = map[int]int{80: 10, 64: 10}
			},
			wantErr: "share rank",
		},
		{
			name:    "zero cache cap",
			mutate:  func(c *Config) { c.Overlay.CacheCapSegments = 0 },
			wantErr: "cacheCapSegments",
		},
		{
			name:    "confidence out of range",
			mutate:  func(c *Config) { c.Overlay.Shield.MinAIConfidence = 1.5 },
			wantErr: "minAIConfidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Provider.BaseURL = "https://api.example.com"
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playres.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  baseURL: https://api.example.com
overlay:
  prefetchCount: 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Overlay.PrefetchCount)
	// Untouched keys keep defaults.
	assert.Equal(t, 12, cfg.Overlay.CacheCapSegments)
	assert.Equal(t, 30*time.Second, cfg.Provider.RequestTimeout)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playres.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  baseURL: https://file.example.com
`), 0o644))

	t.Setenv("PLAYRES_PROVIDER_URL", "https://env.example.com")
	t.Setenv("PLAYRES_OVERLAY_CACHE_CAP", "24")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Provider.BaseURL)
	assert.Equal(t, 24, cfg.Overlay.CacheCapSegments)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "playres.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  baseURL: https://api.example.com
  totallyUnknown: true
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
