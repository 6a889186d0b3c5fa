package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Cleanup    CleanupConfig    `yaml:"cleanup" mapstructure:"cleanup"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ExtractConfig configures metric extraction from document text.
type ExtractConfig struct {
	ContextChars  int     `yaml:"context_chars" mapstructure:"context_chars"`
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// CleanupConfig configures duplicate resolution and context rules.
type CleanupConfig struct {
	ProtectedTerms []string       `yaml:"protected_terms" mapstructure:"protected_terms"`
	SurveyTerms    []string       `yaml:"survey_terms" mapstructure:"survey_terms"`
	CompoundTerms  []string       `yaml:"compound_terms" mapstructure:"compound_terms"`
	RulesFile      string         `yaml:"rules_file" mapstructure:"rules_file"`
	MaxRemovalRate float64        `yaml:"max_removal_rate" mapstructure:"max_removal_rate"`
	QualityWeights QualityWeights `yaml:"quality_weights" mapstructure:"quality_weights"`
}

// QualityWeights controls the relative importance of each quality dimension.
type QualityWeights struct {
	Confidence   float64 `yaml:"confidence" mapstructure:"confidence"`
	Completeness float64 `yaml:"completeness" mapstructure:"completeness"`
	Diversity    float64 `yaml:"diversity" mapstructure:"diversity"`
	Uniqueness   float64 `yaml:"uniqueness" mapstructure:"uniqueness"`
}

// OutputConfig configures report files.
type OutputConfig struct {
	Dir  string `yaml:"dir" mapstructure:"dir"`
	XLSX bool   `yaml:"xlsx" mapstructure:"xlsx"`
}

// BatchConfig configures multi-source processing.
type BatchConfig struct {
	MaxConcurrentSources int `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
}

// ServerConfig configures the read-only run API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run-health alerting for the serve command.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	RemovalRateThreshold float64 `yaml:"removal_rate_threshold" mapstructure:"removal_rate_threshold"`
	MinQualityScore      float64 `yaml:"min_quality_score" mapstructure:"min_quality_score"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultProtectedTerms are sector keywords whose records are never removed.
var DefaultProtectedTerms = []string{
	"ict",
	"information and communication technology",
	"information and communications technology",
	"telecommunication",
	"digital economy",
	"digital sector",
	"software",
	"semiconductor",
	"data centre",
	"data center",
	"cloud computing",
}

// DefaultSurveyTerms mark contexts in which a zero is a real observation.
var DefaultSurveyTerms = []string{
	"survey",
	"surveyed",
	"respondent",
	"questionnaire",
	"share of",
	"percent of",
	"% of",
	"none of",
	"no firms",
	"reported",
}

// DefaultCompoundTerms are alphanumeric names whose digits are never metrics.
var DefaultCompoundTerms = []string{
	"COVID-19",
	"SARS-CoV-2",
	"Industry 4.0",
	"Web 3.0",
	"Web3",
	"G7",
	"G20",
	"5G",
	"4G",
	"S&P 500",
	"Fortune 500",
	"Scope 3",
	"GPT-4",
	"GPT-3",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("METRICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "metrics.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent_sources", 4)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("extract.context_chars", 240)
	v.SetDefault("extract.min_confidence", 0.0)
	v.SetDefault("cleanup.protected_terms", DefaultProtectedTerms)
	v.SetDefault("cleanup.survey_terms", DefaultSurveyTerms)
	v.SetDefault("cleanup.compound_terms", DefaultCompoundTerms)
	v.SetDefault("cleanup.max_removal_rate", 0.5)
	v.SetDefault("cleanup.quality_weights.confidence", 0.50)
	v.SetDefault("cleanup.quality_weights.completeness", 0.25)
	v.SetDefault("cleanup.quality_weights.diversity", 0.15)
	v.SetDefault("cleanup.quality_weights.uniqueness", 0.10)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.xlsx", false)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.removal_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_quality_score", 0.5)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)

	// Read config file (optional)
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

// Validate checks the configuration for the given command mode
// ("cleanup", "batch", or "serve") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of sqlite, postgres, none", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}
	if c.Cleanup.MaxRemovalRate < 0 || c.Cleanup.MaxRemovalRate > 1 {
		problems = append(problems, "cleanup.max_removal_rate must be between 0 and 1")
	}
	w := c.Cleanup.QualityWeights
	if w.Confidence < 0 || w.Completeness < 0 || w.Diversity < 0 || w.Uniqueness < 0 {
		problems = append(problems, "cleanup.quality_weights values must be >= 0")
	}

	switch mode {
	case "cleanup":
	case "batch":
		if c.Batch.MaxConcurrentSources < 1 || c.Batch.MaxConcurrentSources > 32 {
			problems = append(problems, "batch.max_concurrent_sources must be between 1 and 32")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Store.Driver == "none" {
			problems = append(problems, "serve requires a store driver other than none")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration:\n  %s", strings.Join(problems, "\n  "))
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
