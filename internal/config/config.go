// Package config loads the service configuration from a YAML file, a .env
// file and the process environment, in that order of precedence (lowest
// first).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

// Load reads path (a missing file is not an error), applies defaults and
// then environment overrides. A .env file in the working directory is
// loaded first; variables already set in the environment win over it.
func Load(path string) (*models.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var config models.Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(&config)
	if err := applyEnv(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyDefaults(c *models.Config) {
	setString(&c.Host, "0.0.0.0")
	setInt(&c.Port, 8080)
	setString(&c.Log.Level, "info")
	setString(&c.Log.Format, "text")

	setString(&c.OCR.Language, "fra+eng")
	setString(&c.OCR.Tesseract, "tesseract")
	setString(&c.OCR.Pdftoppm, "pdftoppm")
	setInt(&c.OCR.DPI, 300)
	setInt(&c.OCR.PSM, 6)
	setInt(&c.OCR.OEM, 3)
	setDuration(&c.OCR.Timeout, 30*time.Second)
	if c.OCR.FixedConfidence == 0 {
		c.OCR.FixedConfidence = 85
	}
	setString(&c.OCR.PrimaryModel, "gemini-1.5-flash")

	setString(&c.AI.DefaultProvider, "ask")
	setString(&c.AI.Ask.URL, "http://localhost:5000/api/ask")
	setDuration(&c.AI.ParseTimeout, 120*time.Second)
	setDuration(&c.AI.ClassifyTimeout, 60*time.Second)

	if c.Reconcile.PlausibleMin == 0 {
		c.Reconcile.PlausibleMin = 50
	}
	if c.Reconcile.PlausibleMax == 0 {
		c.Reconcile.PlausibleMax = 1000000
	}
	setString(&c.Reconcile.DefaultCurrency, "MAD")
	setString(&c.Reconcile.DefaultOrigin, "MAROC")
	setString(&c.Reconcile.DefaultUnit, "PCS")

	setString(&c.Classify.DefaultCode, "94039000")
	setInt(&c.Classify.ReferenceLimit, 100)
	setDuration(&c.Classify.LookupTimeout, c.AI.ClassifyTimeout)
	setString(&c.Classify.DossierPrefix, "I25")

	setString(&c.Storage.FallbackDir, ".")

	setString(&c.Auth.Issuer, "invoice-extraction-service")
	setDuration(&c.Auth.TokenTTL, 24*time.Hour)
}

func applyEnv(c *models.Config) error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		c.Port = p
	}
	envString(&c.Host, "HOST")
	envString(&c.Log.Level, "LOG_LEVEL")
	envString(&c.Log.Format, "LOG_FORMAT")

	envString(&c.AI.Ask.URL, "LLAMA_API_URL")
	envString(&c.AI.Ask.URL, "ASK_API_URL")
	envString(&c.AI.DefaultProvider, "AI_PROVIDER")
	envString(&c.AI.OpenAI.APIKey, "OPENAI_API_KEY")
	envString(&c.AI.OpenAI.BaseURL, "OPENAI_BASE_URL")
	envString(&c.AI.OpenAI.Model, "OPENAI_MODEL")
	envString(&c.AI.Gemini.APIKey, "GEMINI_API_KEY")
	envString(&c.AI.Gemini.Model, "GEMINI_MODEL")
	envString(&c.AI.Ollama.BaseURL, "OLLAMA_BASE_URL")

	envString(&c.OCR.Language, "OCR_LANGUAGE")
	envString(&c.OCR.Tesseract, "TESSERACT_PATH")
	envString(&c.OCR.Pdftoppm, "PDFTOPPM_PATH")
	envString(&c.OCR.PrimaryEngine, "OCR_PRIMARY_ENGINE")

	envString(&c.Auth.Secret, "JWT_SECRET")
	envString(&c.Storage.FallbackDir, "FALLBACK_DIR")

	if err := envFloat(&c.Reconcile.PlausibleMin, "PLAUSIBLE_MIN_TOTAL"); err != nil {
		return err
	}
	if err := envFloat(&c.Reconcile.PlausibleMax, "PLAUSIBLE_MAX_TOTAL"); err != nil {
		return err
	}
	if c.Reconcile.PlausibleMin > c.Reconcile.PlausibleMax {
		return fmt.Errorf("plausible total range is empty: min %v > max %v",
			c.Reconcile.PlausibleMin, c.Reconcile.PlausibleMax)
	}
	return nil
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = f
	return nil
}
