package config

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

type kind int

const (
	kString kind = iota
	kInt
	kFloat
	kDuration
	kList
)

type envSpec struct {
	env   string
	typ   kind
	apply func(*Config, any)
}

var specs = []envSpec{
	{"OUTPUT_DIR", kString, func(c *Config, v any) { c.OutputDir = v.(string) }},
	{"LOG_LEVEL", kString, func(c *Config, v any) { c.LogLevel = v.(string) }},

	{"LLM_PROVIDER", kString, func(c *Config, v any) { c.LLM.Provider = v.(string) }},
	{"OPENROUTER_API_KEY", kString, func(c *Config, v any) { c.LLM.OpenRouterAPIKey = v.(string) }},
	{"OPENROUTER_MODEL", kString, func(c *Config, v any) { c.LLM.OpenRouterModel = v.(string) }},
	{"OPENROUTER_BASE_URL", kString, func(c *Config, v any) { c.LLM.OpenRouterBaseURL = v.(string) }},
	{"OPENROUTER_ALLOWED_HOSTS", kList, func(c *Config, v any) { c.LLM.OpenRouterAllowedHosts = v.([]string) }},
	{"OPENROUTER_MAX_TOKENS", kInt, func(c *Config, v any) { c.LLM.MaxTokens = v.(int) }},
	{"OPENROUTER_TEMPERATURE", kFloat, func(c *Config, v any) { c.LLM.Temperature = v.(float64) }},
	{"GOOGLE_API_KEY", kString, func(c *Config, v any) { c.LLM.GoogleAPIKey = v.(string) }},
	{"GOOGLE_MODEL", kString, func(c *Config, v any) { c.LLM.GoogleModel = v.(string) }},
	{"LLM_MAX_RETRIES", kInt, func(c *Config, v any) { c.LLM.MaxRetries = v.(int) }},
	{"LLM_RETRY_DELAY", kDuration, func(c *Config, v any) { c.LLM.RetryDelay = v.(time.Duration) }},

	{"WHISPER_BIN", kString, func(c *Config, v any) { c.Whisper.Bin = v.(string) }},
	{"WHISPER_MODEL", kString, func(c *Config, v any) { c.Whisper.Model = v.(string) }},
	{"WHISPER_LANGUAGE", kString, func(c *Config, v any) { c.Whisper.Language = v.(string) }},
	{"WHISPER_THREADS", kInt, func(c *Config, v any) { c.Whisper.Threads = v.(int) }},

	{"FFMPEG_PATH", kString, func(c *Config, v any) { c.FFmpeg.FFmpegPath = v.(string) }},
	{"FFPROBE_PATH", kString, func(c *Config, v any) { c.FFmpeg.FFprobePath = v.(string) }},

	{"STORE_DRIVER", kString, func(c *Config, v any) { c.Store.Driver = v.(string) }},
	{"DATA_DIR", kString, func(c *Config, v any) { c.Store.DataDir = v.(string) }},
	{"DATABASE_URL", kString, func(c *Config, v any) { c.Store.DatabaseURL = v.(string) }},
	{"REDIS_URL", kString, func(c *Config, v any) { c.Redis.URL = v.(string) }},
	{"HTTP_ADDR", kString, func(c *Config, v any) { c.Server.Addr = v.(string) }},

	{"CLIPS_COUNT", kInt, func(c *Config, v any) { c.Clips.Count = v.(int) }},
	{"CLIP_MIN_SECONDS", kFloat, func(c *Config, v any) { c.Clips.MinSeconds = v.(float64) }},
	{"CLIP_MAX_SECONDS", kFloat, func(c *Config, v any) { c.Clips.MaxSeconds = v.(float64) }},
}

// applyEnvOverrides applies every set variable. Unparsable values are
// logged and the previous value is kept.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	for _, s := range specs {
		raw, ok := lookup(s.env)
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			continue
		}
		var (
			v   any
			err error
		)
		switch s.typ {
		case kString:
			v = raw
		case kInt:
			v, err = strconv.Atoi(raw)
		case kFloat:
			v, err = strconv.ParseFloat(raw, 64)
		case kDuration:
			v, err = time.ParseDuration(raw)
		case kList:
			v = splitList(raw)
		}
		if err != nil {
			slog.Warn("ignoring unparsable environment variable", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseLogLevel maps debug, info, warn and error to slog levels. Anything
// else is info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
