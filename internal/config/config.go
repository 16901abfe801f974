package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is created once per
// process and never mutated while runs are in flight.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Blob      BlobConfig      `yaml:"blob" mapstructure:"blob"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run record backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BlobConfig configures where input documents and diagrams are stored.
type BlobConfig struct {
	Driver        string    `yaml:"driver" mapstructure:"driver"`
	Dir           string    `yaml:"dir" mapstructure:"dir"`
	BaseURL       string    `yaml:"base_url" mapstructure:"base_url"`
	SigningKey    string    `yaml:"signing_key" mapstructure:"signing_key"`
	URLTTLMinutes int       `yaml:"url_ttl_minutes" mapstructure:"url_ttl_minutes"`
	FTP           FTPConfig `yaml:"ftp" mapstructure:"ftp"`
}

// FTPConfig holds settings for the FTP archive backend.
type FTPConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	Root        string `yaml:"root" mapstructure:"root"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings for extraction and verification.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	ExtractionModel   string  `yaml:"extraction_model" mapstructure:"extraction_model"`
	VerificationModel string  `yaml:"verification_model" mapstructure:"verification_model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// GeminiConfig holds Google GenAI settings for diagram generation.
type GeminiConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	ImageModel        string  `yaml:"image_model" mapstructure:"image_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	PdfToTextPath   string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	ScannedMinChars int    `yaml:"scanned_min_chars" mapstructure:"scanned_min_chars"`
}

// PipelineConfig configures the orchestrator and stage adapters.
type PipelineConfig struct {
	AccuracyThreshold       float64 `yaml:"accuracy_threshold" mapstructure:"accuracy_threshold"`
	MaxVerificationAttempts int     `yaml:"max_verification_attempts" mapstructure:"max_verification_attempts"`
	ExtractionRetries       int     `yaml:"extraction_retries" mapstructure:"extraction_retries"`
	GenerationRetries       int     `yaml:"generation_retries" mapstructure:"generation_retries"`
	InitialBackoffMs        int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs            int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	MinDiagramBytes         int     `yaml:"min_diagram_bytes" mapstructure:"min_diagram_bytes"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FLOWCHART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a real default are registered empty so AutomaticEnv
	// can fill them during Unmarshal.
	for _, key := range []string{
		"store.database_url",
		"blob.signing_key",
		"blob.ftp.addr",
		"blob.ftp.user",
		"blob.ftp.password",
		"anthropic.key",
		"gemini.key",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("blob.driver", "local")
	v.SetDefault("blob.dir", "./data/blobs")
	v.SetDefault("blob.base_url", "http://localhost:8080/blobs")
	v.SetDefault("blob.url_ttl_minutes", 60)
	v.SetDefault("blob.ftp.root", "/statement-flow")
	v.SetDefault("blob.ftp.timeout_secs", 30)
	v.SetDefault("anthropic.extraction_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.verification_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.requests_per_second", 2.0)
	v.SetDefault("gemini.image_model", "gemini-2.5-flash-image")
	v.SetDefault("gemini.requests_per_second", 1.0)
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.scanned_min_chars", 200)
	v.SetDefault("pipeline.accuracy_threshold", 0.001)
	v.SetDefault("pipeline.max_verification_attempts", 3)
	v.SetDefault("pipeline.extraction_retries", 2)
	v.SetDefault("pipeline.generation_retries", 2)
	v.SetDefault("pipeline.initial_backoff_ms", 1000)
	v.SetDefault("pipeline.max_backoff_ms", 10000)
	v.SetDefault("pipeline.min_diagram_bytes", 1024)
	v.SetDefault("batch.max_concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 25)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command mode needs. Modes: "pipeline" (run,
// batch), "serve", "store" (run history commands).
func (c *Config) Validate(mode string) error {
	var missing []string
	require := func(ok bool, msg string) {
		if !ok {
			missing = append(missing, msg)
		}
	}

	checkStore := func() {
		switch c.Store.Driver {
		case "postgres":
			require(c.Store.DatabaseURL != "", "store.database_url is required")
		case "sqlite":
		default:
			missing = append(missing, "store.driver must be postgres or sqlite")
		}
	}

	checkPipeline := func() {
		checkStore()
		require(c.Anthropic.Key != "", "anthropic.key is required")
		require(c.Gemini.Key != "", "gemini.key is required")
		require(c.Pipeline.AccuracyThreshold > 0 && c.Pipeline.AccuracyThreshold < 1,
			"pipeline.accuracy_threshold must be within (0,1)")
		require(c.Pipeline.MaxVerificationAttempts >= 1 && c.Pipeline.MaxVerificationAttempts <= 3,
			"pipeline.max_verification_attempts must be within 1-3")
		require(c.Pipeline.ExtractionRetries >= 0, "pipeline.extraction_retries must be >= 0")
		require(c.Pipeline.GenerationRetries >= 0, "pipeline.generation_retries must be >= 0")
		switch c.Blob.Driver {
		case "local":
			require(c.Blob.Dir != "", "blob.dir is required")
		case "ftp":
			require(c.Blob.FTP.Addr != "", "blob.ftp.addr is required")
		default:
			missing = append(missing, "blob.driver must be local or ftp")
		}
	}

	switch mode {
	case "pipeline":
		checkPipeline()
	case "serve":
		checkPipeline()
		require(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be between 1 and 65535")
	case "store":
		checkStore()
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
