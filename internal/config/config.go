package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"eraeval/domain/evaluation"
	"eraeval/internal/errors"
)

// ConfigPathEnv names the environment variable holding the YAML config path
const ConfigPathEnv = "ERAEVAL_CONFIG"

// Config represents the complete application configuration
type Config struct {
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Neutralizer NeutralizerConfig `yaml:"neutralizer"`
	Penalizer   PenalizerConfig   `yaml:"penalizer"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	LogLevel    string            `yaml:"log_level" validate:"oneof=ERROR WARN INFO DEBUG TRACE"`
}

// EvaluationConfig holds the evaluator options
type EvaluationConfig struct {
	EraCol     string `yaml:"era_col" validate:"required"`
	TargetCol  string `yaml:"target_col" validate:"required"`
	ExampleCol string `yaml:"example_col" validate:"required"`
	FastMode   bool   `yaml:"fast_mode"`
	TBSize     int    `yaml:"tb" validate:"min=1"`
	Workers    int    `yaml:"workers" validate:"min=1"`
}

// NeutralizerConfig holds FeatureNeutralizer settings
type NeutralizerConfig struct {
	Proportion float64 `yaml:"proportion" validate:"gte=0,lte=1"`
	Suffix     string  `yaml:"suffix"`
}

// PenalizerConfig holds FeaturePenalizer settings
type PenalizerConfig struct {
	MaxExposure   float64 `yaml:"max_exposure" validate:"gte=0,lte=1"`
	MaxIterations int     `yaml:"max_iterations" validate:"min=1"`
	RankNormalize bool    `yaml:"rank_normalize"`
	Suffix        string  `yaml:"suffix"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string `yaml:"port" validate:"required,numeric"`
}

// DatabaseConfig holds report storage settings. An empty URL disables storage.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Settings converts the evaluation section to the options recorded on reports
func (c EvaluationConfig) Settings() evaluation.Settings {
	return evaluation.Settings{
		EraCol:     c.EraCol,
		TargetCol:  c.TargetCol,
		ExampleCol: c.ExampleCol,
		FastMode:   c.FastMode,
		TBSize:     c.TBSize,
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Evaluation: EvaluationConfig{
			EraCol:     "era",
			TargetCol:  "target",
			ExampleCol: "example_preds",
			TBSize:     200,
			Workers:    4,
		},
		Neutralizer: NeutralizerConfig{Proportion: 0.5},
		Penalizer: PenalizerConfig{
			MaxExposure:   0.1,
			MaxIterations: 1_000_000,
			RankNormalize: true,
		},
		Server:   ServerConfig{Port: "8080"},
		LogLevel: "INFO",
	}
}

var validate = validator.New()

// Load reads configuration with priority env > file > defaults and validates it.
// path may be empty, in which case ERAEVAL_CONFIG is consulted.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if err := loadConfigFile(path, config); err != nil {
			return nil, errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	loadConfigFromEnv(config)

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("parse yaml: %v", err))
	}
	return nil
}

func loadConfigFromEnv(config *Config) {
	ev := &config.Evaluation
	ev.EraCol = getEnvOrDefault("ERA_COL", ev.EraCol)
	ev.TargetCol = getEnvOrDefault("TARGET_COL", ev.TargetCol)
	ev.ExampleCol = getEnvOrDefault("EXAMPLE_COL", ev.ExampleCol)
	ev.FastMode = getEnvBoolOrDefault("FAST_MODE", ev.FastMode)
	ev.TBSize = getEnvIntOrDefault("TB_SIZE", ev.TBSize)
	ev.Workers = getEnvIntOrDefault("WORKERS", ev.Workers)

	config.Neutralizer.Proportion = getEnvFloatOrDefault("NEUTRALIZE_PROPORTION", config.Neutralizer.Proportion)
	config.Penalizer.MaxExposure = getEnvFloatOrDefault("MAX_EXPOSURE", config.Penalizer.MaxExposure)
	config.Penalizer.MaxIterations = getEnvIntOrDefault("PENALIZER_MAX_ITERATIONS", config.Penalizer.MaxIterations)

	config.Server.Port = getEnvOrDefault("PORT", config.Server.Port)
	config.Database.URL = getEnvOrDefault("DATABASE_URL", config.Database.URL)
	config.LogLevel = strings.ToUpper(getEnvOrDefault("LOG_LEVEL", config.LogLevel))
}

func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
			}
			return errors.ConfigInvalid(strings.Join(msgs, "; "))
		}
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
