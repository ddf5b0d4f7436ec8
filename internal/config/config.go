// Package config loads vidsum settings: defaults, then an optional YAML
// file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forPelevin/vidsum/internal/domain/highlights"
	"github.com/forPelevin/vidsum/internal/llm"
	"github.com/forPelevin/vidsum/internal/ports/adapters/gemini"
	"github.com/forPelevin/vidsum/internal/ports/adapters/openrouter"
	"github.com/forPelevin/vidsum/internal/ports/adapters/whispercpp"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	OutputDir string        `yaml:"output_dir"`
	LogLevel  string        `yaml:"log_level"`
	LLM       LLMConfig     `yaml:"llm"`
	Whisper   WhisperConfig `yaml:"whisper"`
	FFmpeg    FFmpegConfig  `yaml:"ffmpeg"`
	Store     StoreConfig   `yaml:"store"`
	Redis     RedisConfig   `yaml:"redis"`
	Server    ServerConfig  `yaml:"server"`
	Clips     ClipsConfig   `yaml:"clips"`
}

type LLMConfig struct {
	Provider               string        `yaml:"provider"`
	OpenRouterAPIKey       string        `yaml:"openrouter_api_key"`
	OpenRouterModel        string        `yaml:"openrouter_model"`
	OpenRouterBaseURL      string        `yaml:"openrouter_base_url"`
	OpenRouterAllowedHosts []string      `yaml:"openrouter_allowed_hosts"`
	MaxTokens              int           `yaml:"max_tokens"`
	Temperature            float64       `yaml:"temperature"`
	GoogleAPIKey           string        `yaml:"google_api_key"`
	GoogleModel            string        `yaml:"google_model"`
	MaxRetries             int           `yaml:"max_retries"`
	RetryDelay             time.Duration `yaml:"retry_delay"`
}

type WhisperConfig struct {
	Bin      string `yaml:"bin"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	Threads  int    `yaml:"threads"`
}

type FFmpegConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DataDir     string `yaml:"data_dir"`
	DatabaseURL string `yaml:"database_url"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type ClipsConfig struct {
	Count      int     `yaml:"count"`
	MinSeconds float64 `yaml:"min_seconds"`
	MaxSeconds float64 `yaml:"max_seconds"`
}

func Defaults() Config {
	return Config{
		OutputDir: "./output",
		LogLevel:  "info",
		LLM: LLMConfig{
			Provider:          llm.ProviderOpenRouter,
			OpenRouterModel:   openrouter.DefaultModel,
			OpenRouterBaseURL: "https://openrouter.ai",
			MaxTokens:         openrouter.DefaultMaxTokens,
			Temperature:       openrouter.DefaultTemperature,
			GoogleModel:       gemini.DefaultModel,
			MaxRetries:        3,
			RetryDelay:        time.Second,
		},
		Whisper: WhisperConfig{
			Bin:      "whisper-cli",
			Language: whispercpp.DefaultLanguage,
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Store: StoreConfig{
			Driver:  StoreMemory,
			DataDir: "./data",
		},
		Server: ServerConfig{Addr: "127.0.0.1:8000"},
		Clips: ClipsConfig{
			Count:      highlights.DefaultCount,
			MinSeconds: highlights.DefaultMinDuration,
			MaxSeconds: highlights.DefaultMaxDuration,
		},
	}
}

// Load builds the configuration. path names an optional YAML file; an empty
// path skips it. Environment variables win over the file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Bounds().Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderOpenRouter, "":
		if err := openrouter.ValidateBaseURL(c.LLM.OpenRouterBaseURL, c.LLM.OpenRouterAllowedHosts); err != nil {
			return err
		}
	case llm.ProviderGoogle:
	default:
		return fmt.Errorf("unknown provider: %s. Use 'google' or 'openrouter'", c.LLM.Provider)
	}
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("postgres store requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown store driver %q (memory, sqlite, postgres)", c.Store.Driver)
	}
	if c.OutputDir == "" {
		return errors.New("output dir is empty")
	}
	return nil
}

func (c Config) Bounds() highlights.Bounds {
	return highlights.Bounds{
		Count:       c.Clips.Count,
		MinDuration: c.Clips.MinSeconds,
		MaxDuration: c.Clips.MaxSeconds,
	}
}

// LLMSettings returns the provider settings. A non-empty provider or model
// replaces the configured one.
func (c Config) LLMSettings(provider, model string) llm.Config {
	l := c.LLM
	out := llm.Config{
		Provider:               l.Provider,
		OpenRouterAPIKey:       l.OpenRouterAPIKey,
		OpenRouterModel:        l.OpenRouterModel,
		OpenRouterBaseURL:      l.OpenRouterBaseURL,
		OpenRouterAllowedHosts: l.OpenRouterAllowedHosts,
		GoogleAPIKey:           l.GoogleAPIKey,
		GoogleModel:            l.GoogleModel,
		MaxTokens:              l.MaxTokens,
		Temperature:            l.Temperature,
		MaxRetries:             l.MaxRetries,
		RetryDelay:             l.RetryDelay,
	}
	if provider != "" {
		out.Provider = provider
	}
	if model != "" {
		out.OpenRouterModel = model
		out.GoogleModel = model
	}
	return out
}
