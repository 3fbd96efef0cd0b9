package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/clara-platform/clara-backend/internal/platform/envutil"
)

// Config is the single typed configuration object injected into components.
// Values come from an optional YAML file, then environment overrides.
type Config struct {
	Mode string `yaml:"mode"`
	Port int    `yaml:"port"`

	// Root of the on-disk project tree (the CLARA path). Ignored when the
	// object-store backend is selected.
	FileStoreRoot    string `yaml:"file_store_root"`
	FileStoreBackend string `yaml:"file_store_backend"` // local | gcs

	AI     AIConfig     `yaml:"ai"`
	TTS    TTSConfig    `yaml:"tts"`
	Images ImagesConfig `yaml:"images"`
	Worker WorkerConfig `yaml:"worker"`
	Redis  RedisConfig  `yaml:"redis"`
}

type AIConfig struct {
	Provider string `yaml:"provider"` // openai | deepseek
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	TimeoutSeconds int `yaml:"timeout_seconds"`

	// RetryLimit bounds retries of transport and JSON-shape failures.
	// Content-policy rewrites are capped separately at 3.
	RetryLimit int `yaml:"retry_limit"`

	// MaxAnnotationElements bounds the number of content elements per
	// annotation chunk sent to the model.
	MaxAnnotationElements int `yaml:"max_annotation_elements"`
}

type TTSConfig struct {
	Engine string `yaml:"engine"`
	Voice  string `yaml:"voice"`
}

type ImagesConfig struct {
	NExpandedDescriptions          int `yaml:"n_expanded_descriptions"`
	NImagesPerDescription          int `yaml:"n_images_per_description"`
	MaxDescriptionGenerationRounds int `yaml:"max_description_generation_rounds"`

	// AcceptableScore is the 0-4 evaluation score at which a page image is
	// considered good enough to stop retrying descriptions.
	AcceptableScore int `yaml:"acceptable_score"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

func Default() Config {
	return Config{
		Mode:             "dev",
		Port:             8080,
		FileStoreRoot:    "",
		FileStoreBackend: "local",
		AI: AIConfig{
			Provider:              "openai",
			Model:                 "gpt-4o",
			TimeoutSeconds:        180,
			RetryLimit:            3,
			MaxAnnotationElements: 200,
		},
		TTS: TTSConfig{
			Engine: "openai_tts",
			Voice:  "alloy",
		},
		Images: ImagesConfig{
			NExpandedDescriptions:          2,
			NImagesPerDescription:          2,
			MaxDescriptionGenerationRounds: 2,
			AcceptableScore:                3,
		},
		Worker: WorkerConfig{Concurrency: 4},
		Redis:  RedisConfig{Channel: "clara_jobs"},
	}
}

// Load reads the YAML file at path (if non-empty), then applies environment
// overrides. Missing file with empty path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Mode = envutil.Str("CLARA_MODE", cfg.Mode)
	cfg.Port = envutil.Int("PORT", cfg.Port)
	cfg.FileStoreRoot = envutil.Str("CLARA", cfg.FileStoreRoot)
	cfg.FileStoreBackend = envutil.Str("CLARA_FILE_STORE", cfg.FileStoreBackend)

	cfg.AI.Provider = envutil.Str("CLARA_AI_PROVIDER", cfg.AI.Provider)
	cfg.AI.Model = envutil.Str("CLARA_AI_MODEL", cfg.AI.Model)
	cfg.AI.BaseURL = envutil.Str("CLARA_AI_BASE_URL", cfg.AI.BaseURL)
	cfg.AI.TimeoutSeconds = envutil.Int("CLARA_AI_TIMEOUT_SECONDS", cfg.AI.TimeoutSeconds)
	cfg.AI.RetryLimit = envutil.Int("CLARA_AI_RETRY_LIMIT", cfg.AI.RetryLimit)
	cfg.AI.MaxAnnotationElements = envutil.Int("CLARA_MAX_ANNOTATION_ELEMENTS", cfg.AI.MaxAnnotationElements)

	cfg.TTS.Engine = envutil.Str("CLARA_TTS_ENGINE", cfg.TTS.Engine)
	cfg.TTS.Voice = envutil.Str("CLARA_TTS_VOICE", cfg.TTS.Voice)

	cfg.Worker.Concurrency = envutil.Int("WORKER_CONCURRENCY", cfg.Worker.Concurrency)

	cfg.Redis.Addr = envutil.Str("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Channel = envutil.Str("REDIS_CHANNEL", cfg.Redis.Channel)
}

func (c Config) Validate() error {
	switch c.FileStoreBackend {
	case "local", "gcs":
	default:
		return fmt.Errorf("invalid file_store_backend %q", c.FileStoreBackend)
	}
	if c.FileStoreBackend == "local" && strings.TrimSpace(c.FileStoreRoot) == "" {
		return fmt.Errorf("missing file store root (set CLARA)")
	}
	if c.AI.RetryLimit < 0 {
		return fmt.Errorf("retry_limit must be >= 0")
	}
	if c.AI.MaxAnnotationElements < 1 {
		return fmt.Errorf("max_annotation_elements must be >= 1")
	}
	return nil
}
