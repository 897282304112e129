package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/config"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
	"github.com/jonesrussell/north-cloud/scene-extractor/internal/scoring"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "none.env"))

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "scene-extractor", cfg.Service.Name)
	assert.Equal(t, 30*time.Second, cfg.Extraction.Deadline)
	assert.Equal(t, []string{"en", "ru"}, cfg.Extraction.Languages)
	assert.InDelta(t, 0.6, cfg.Merge.OverlapThreshold, 1e-9)
	assert.Equal(t, []string{"sidecar", "lexicon", "pattern"}, cfg.Merge.ProcessorPriority)
	assert.Equal(t, 10, cfg.Scoring.MinLength)
	assert.Equal(t, 2, cfg.Scoring.CategoryMinLength[domain.CategoryCharacter])
	assert.Equal(t, 512, cfg.Cache.Size)
	assert.False(t, cfg.Engines.Enabled("sidecar"), "sidecar needs a url")
	assert.True(t, cfg.Engines.Enabled("lexicon"))
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "none.env"))
	t.Setenv("EXTRACTOR_PORT", "9001")
	t.Setenv("EXTRACTOR_ENGINES_LAZY", "true")
	t.Setenv("EXTRACTOR_LANGUAGES", "en")

	path := writeConfig(t, `
service:
  port: 8000
engines:
  call_timeout: 5s
  restart_on_stall: true
  model_dir: /srv/models
  sidecar:
    url: http://ner:8080
merge:
  overlap_threshold: 0.7
  processor_priority: [lexicon, pattern, sidecar]
scoring:
  category_weights:
    location: 0.9
extraction:
  deadline: 10s
  batch_rate: 2
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Service.Port, "env wins over yaml")
	assert.True(t, cfg.Engines.Lazy)
	assert.True(t, cfg.Engines.RestartOnStall)
	assert.Equal(t, 5*time.Second, cfg.Engines.CallTimeout)
	assert.Equal(t, "/srv/models", cfg.Engines.ModelDir)
	assert.True(t, cfg.Engines.Enabled("sidecar"))
	assert.InDelta(t, 0.7, cfg.Merge.OverlapThreshold, 1e-9)
	assert.Equal(t, []string{"lexicon", "pattern", "sidecar"}, cfg.Merge.ProcessorPriority)
	assert.InDelta(t, 0.9, cfg.Scoring.CategoryWeights[domain.CategoryLocation], 1e-9)
	assert.Equal(t, []string{"en"}, cfg.Extraction.Languages)
	assert.Equal(t, 10*time.Second, cfg.Extraction.Deadline)
	assert.InDelta(t, 2.0, cfg.Extraction.BatchRate, 1e-9)
}

func TestLoad_PartialScoringMapsKeepDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "none.env"))

	path := writeConfig(t, `
scoring:
  category_weights:
    location: 0.9
  category_min_length:
    location: 12
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	defaults := scoring.DefaultCategoryWeights()
	assert.InDelta(t, 0.9, cfg.Scoring.CategoryWeights[domain.CategoryLocation], 1e-9)
	for _, cat := range []domain.Category{
		domain.CategoryCharacter, domain.CategoryAtmosphere, domain.CategoryObject, domain.CategoryAction,
	} {
		assert.InDelta(t, defaults[cat], cfg.Scoring.CategoryWeights[cat], 1e-9, "weight for %s", cat)
	}
	assert.Equal(t, 12, cfg.Scoring.CategoryMinLength[domain.CategoryLocation])
	assert.Equal(t, 2, cfg.Scoring.CategoryMinLength[domain.CategoryCharacter])
}

func TestLoad_ExplicitZeroKnobs(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "none.env"))

	cfg, err := config.Load(writeConfig(t, `
scoring:
  agreement_boost: 0
extraction:
  min_confidence: 0
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.Extraction.DefaultMinConfidence())
	assert.Zero(t, cfg.Scoring.Boost())

	defaulted := config.Default()
	assert.InDelta(t, 0.3, defaulted.Extraction.DefaultMinConfidence(), 1e-9)
	assert.InDelta(t, 0.15, defaulted.Scoring.Boost(), 1e-9)
}

func TestLoad_EnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("EXTRACTOR_MODEL_DIR=/from/env-file\n"), 0o600))
	t.Setenv("ENV_FILE", envPath)
	t.Cleanup(func() { _ = os.Unsetenv("EXTRACTOR_MODEL_DIR") })

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, "/from/env-file", cfg.Engines.ModelDir)
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "none.env"))
	_, err := config.Load(writeConfig(t, "service: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "port", mutate: func(c *config.Config) { c.Service.Port = 70000 }},
		{name: "log level", mutate: func(c *config.Config) { c.Logging.Level = "loud" }},
		{name: "language", mutate: func(c *config.Config) { c.Extraction.Languages = []string{"!!"} }},
		{name: "min confidence", mutate: func(c *config.Config) {
			tooHigh := 1.5
			c.Extraction.MinConfidence = &tooHigh
		}},
		{name: "agreement boost", mutate: func(c *config.Config) {
			negative := -0.1
			c.Scoring.AgreementBoost = &negative
		}},
		{name: "overlap", mutate: func(c *config.Config) { c.Merge.OverlapThreshold = 2 }},
		{name: "category weight", mutate: func(c *config.Config) {
			c.Scoring.CategoryWeights = map[domain.Category]float64{"weather": 0.5}
		}},
		{name: "unknown disabled engine", mutate: func(c *config.Config) { c.Engines.Disabled = []string{"gpt"} }},
		{name: "no engines", mutate: func(c *config.Config) { c.Engines.Disabled = []string{"lexicon", "pattern"} }},
		{name: "selector thresholds", mutate: func(c *config.Config) { c.Selector.ModerateLoad = 0.95 }},
		{name: "single processor", mutate: func(c *config.Config) { c.Selector.SingleProcessor = "gpt" }},
	}

	require.NoError(t, config.Default().Validate())

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var ve *config.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	assert.Equal(t, config.DefaultPath, config.ResolvePath(config.DefaultPath))

	t.Setenv(config.EnvConfigPath, "/etc/extractor.yml")
	assert.Equal(t, "/etc/extractor.yml", config.ResolvePath(config.DefaultPath))
}
