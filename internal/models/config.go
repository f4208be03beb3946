package models

import "time"

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	Log LogConfig `yaml:"log"`

	// OCR config
	OCR OCRConfig `yaml:"ocr"`

	// AI config
	AI AIConfig `yaml:"ai"`

	Reconcile ReconcileConfig `yaml:"reconcile"`

	Classify ClassifyConfig `yaml:"classify"`

	Storage StorageConfig `yaml:"storage"`

	Auth AuthConfig `yaml:"auth"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // "text" or "json"
}

// OCRConfig represents OCR-specific configuration
type OCRConfig struct {
	Language        string        `yaml:"language"`         // tesseract language hint, default "fra+eng"
	Tesseract       string        `yaml:"tesseract"`        // binary name or path
	Pdftoppm        string        `yaml:"pdftoppm"`         // binary name or path
	DPI             int           `yaml:"dpi"`              // PDF rasterisation, default 300
	PSM             int           `yaml:"psm"`              // default 6
	OEM             int           `yaml:"oem"`              // default 3
	Timeout         time.Duration `yaml:"timeout"`          // secondary tier, default 30s
	FixedConfidence float64       `yaml:"fixed_confidence"` // secondary tier estimate, default 85
	PrimaryEngine   string        `yaml:"primary_engine"`   // "gemini" or "" to disable
	PrimaryModel    string        `yaml:"primary_model"`    // vision model for the primary tier
	MaxPages        int           `yaml:"max_pages"`        // 0 = no limit
}

// AIConfig represents reasoning service configuration
type AIConfig struct {
	// Generic question/answer endpoint
	Ask AskConfig `yaml:"ask"`

	// OpenAI
	OpenAI OpenAIConfig `yaml:"openai"`

	// Gemini
	Gemini GeminiConfig `yaml:"gemini"`

	// Ollama (local)
	Ollama OllamaConfig `yaml:"ollama"`

	// Default provider
	DefaultProvider string `yaml:"default_provider"` // "ask", "openai", "gemini", "ollama"

	ParseTimeout    time.Duration `yaml:"parse_timeout"`    // default 120s
	ClassifyTimeout time.Duration `yaml:"classify_timeout"` // default 60s
}

// AskConfig for the plain question/answer HTTP service
type AskConfig struct {
	URL string `yaml:"url"`
}

// OpenAIConfig for OpenAI/Azure OpenAI
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"` // For custom endpoints
	Model   string `yaml:"model"`
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OllamaConfig for local Ollama
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"` // Default: "http://localhost:11434/v1"
	Model   string `yaml:"model"`
}

// ReconcileConfig holds the heuristic bounds used when picking a total.
type ReconcileConfig struct {
	PlausibleMin    float64 `yaml:"plausible_min"`
	PlausibleMax    float64 `yaml:"plausible_max"`
	DefaultCurrency string  `yaml:"default_currency"`
	DefaultOrigin   string  `yaml:"default_origin"`
	DefaultUnit     string  `yaml:"default_unit"`
}

// ClassifyConfig configures code resolution.
type ClassifyConfig struct {
	DefaultCode    string        `yaml:"default_code"`
	ReferenceLimit int           `yaml:"reference_limit"`
	LookupTimeout  time.Duration `yaml:"lookup_timeout"`
	DossierPrefix  string        `yaml:"dossier_prefix"`
}

// StorageConfig covers the local fallback for records.
type StorageConfig struct {
	FallbackDir string `yaml:"fallback_dir"`
}

// AuthConfig configures bearer-token checks on the API.
type AuthConfig struct {
	Secret   string            `yaml:"secret"`
	Issuer   string            `yaml:"issuer"`
	TokenTTL time.Duration     `yaml:"token_ttl"`
	Disabled bool              `yaml:"disabled"`
	Users    []OperatorAccount `yaml:"users"`
}

// OperatorAccount is one login allowed on /api/login.
type OperatorAccount struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
	Role         string `yaml:"role"`
}
