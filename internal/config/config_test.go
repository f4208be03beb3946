package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "HOST", "LOG_LEVEL", "LOG_FORMAT", "LLAMA_API_URL", "ASK_API_URL",
	"AI_PROVIDER", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
	"GEMINI_API_KEY", "GEMINI_MODEL", "OLLAMA_BASE_URL", "OCR_LANGUAGE",
	"TESSERACT_PATH", "PDFTOPPM_PATH", "OCR_PRIMARY_ENGINE", "JWT_SECRET", "FALLBACK_DIR",
	"PLAUSIBLE_MIN_TOTAL", "PLAUSIBLE_MAX_TOTAL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "fra+eng", cfg.OCR.Language)
	assert.Equal(t, 30*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, 85.0, cfg.OCR.FixedConfidence)
	assert.Equal(t, "ask", cfg.AI.DefaultProvider)
	assert.Equal(t, 120*time.Second, cfg.AI.ParseTimeout)
	assert.Equal(t, 60*time.Second, cfg.Classify.LookupTimeout)
	assert.Equal(t, 50.0, cfg.Reconcile.PlausibleMin)
	assert.Equal(t, 1000000.0, cfg.Reconcile.PlausibleMax)
	assert.Equal(t, "MAD", cfg.Reconcile.DefaultCurrency)
	assert.Equal(t, "I25", cfg.Classify.DossierPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
port: 9000
log:
  level: debug
  format: json
ocr:
  language: fra
  dpi: 200
  max_pages: 5
ai:
  default_provider: openai
  openai:
    model: gpt-4o
  parse_timeout: 45s
reconcile:
  plausible_min: 10
classify:
  dossier_prefix: I24
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "fra", cfg.OCR.Language)
	assert.Equal(t, 200, cfg.OCR.DPI)
	assert.Equal(t, 5, cfg.OCR.MaxPages)
	assert.Equal(t, "openai", cfg.AI.DefaultProvider)
	assert.Equal(t, "gpt-4o", cfg.AI.OpenAI.Model)
	assert.Equal(t, 45*time.Second, cfg.AI.ParseTimeout)
	assert.Equal(t, 10.0, cfg.Reconcile.PlausibleMin)
	assert.Equal(t, 1000000.0, cfg.Reconcile.PlausibleMax)
	assert.Equal(t, "I24", cfg.Classify.DossierPrefix)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "port: 9000\nai:\n  ask:\n    url: http://file/ask\n")
	t.Setenv("PORT", "7000")
	t.Setenv("LLAMA_API_URL", "http://llama/ask")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("TESSERACT_PATH", "/usr/local/bin/tesseract")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PLAUSIBLE_MAX_TOTAL", "5000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "http://llama/ask", cfg.AI.Ask.URL)
	assert.Equal(t, "g-key", cfg.AI.Gemini.APIKey)
	assert.Equal(t, "/usr/local/bin/tesseract", cfg.OCR.Tesseract)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, 5000.0, cfg.Reconcile.PlausibleMax)

	// ASK_API_URL wins over the legacy name
	t.Setenv("ASK_API_URL", "http://ask/ask")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://ask/ask", cfg.AI.Ask.URL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{"bad yaml", "port: [", nil},
		{"bad port", "", map[string]string{"PORT": "eighty"}},
		{"bad bound", "", map[string]string{"PLAUSIBLE_MIN_TOTAL": "abc"}},
		{"empty range", "reconcile:\n  plausible_min: 500\n  plausible_max: 100\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
