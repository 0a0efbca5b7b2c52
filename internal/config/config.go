package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	discordTokenEnv   = "DISCORD_TOKEN"
	channelIDEnv      = "YOUR_CHANNEL_ID"
	webhookURLEnv     = "DISCORD_WEBHOOK_URL"
	hfTokenEnv        = "HF_TOKEN"
	geminiAPIKeyEnv   = "GEMINI_API_KEY"
	legistarAPIKeyEnv = "LEGISTAR_API_KEY"
	logLevelEnv       = "LOG_LEVEL"
)

// DotEnvPath is loaded into the process environment before the config file
// is read. Variables that are already set are not overridden.
var DotEnvPath = ".env"

type Config struct {
	Schedule   string           `yaml:"schedule"`
	RunOnStart *bool            `yaml:"run_on_start"`
	LogLevel   string           `yaml:"log_level"`
	Source     SourceConfig     `yaml:"source"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Publisher  PublisherConfig  `yaml:"publisher"`
	Health     HealthConfig     `yaml:"health"`
}

type SourceConfig struct {
	Type    string        `yaml:"type"`
	Timeout time.Duration `yaml:"timeout"`
	HTML    HTMLConfig    `yaml:"html"`
	API     APIConfig     `yaml:"api"`
}

// HTMLConfig describes the scraped Legistar listing page.
type HTMLConfig struct {
	URL         string   `yaml:"url"`
	UserAgent   string   `yaml:"user_agent"`
	TableMarker string   `yaml:"table_marker"`
	RowClasses  []string `yaml:"row_classes"`
}

// APIConfig describes the Legistar REST endpoint.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	DetailURL string        `yaml:"detail_url"`
	APIKey    string        `yaml:"api_key"`
	KeyHeader string        `yaml:"key_header"`
	Lookback  time.Duration `yaml:"lookback"`
}

type SummarizerConfig struct {
	Type        string            `yaml:"type"`
	Timeout     time.Duration     `yaml:"timeout"`
	HuggingFace HuggingFaceConfig `yaml:"huggingface"`
	Gemini      GeminiConfig      `yaml:"gemini"`
}

type HuggingFaceConfig struct {
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	MaxLength     int    `yaml:"max_length"`
	MinLength     int    `yaml:"min_length"`
	MaxInputChars int    `yaml:"max_input_chars"`
}

type GeminiConfig struct {
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	MaxInputChars int    `yaml:"max_input_chars"`
}

type PublisherConfig struct {
	Type    string        `yaml:"type"`
	Discord DiscordConfig `yaml:"discord"`
}

type DiscordConfig struct {
	Token      string `yaml:"token"`
	ChannelID  string `yaml:"channel_id"`
	WebhookURL string `yaml:"webhook_url"`
}

type HealthConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ShouldRunOnStart reports whether a cycle runs as soon as the bot is ready.
func (c *Config) ShouldRunOnStart() bool {
	return c.RunOnStart == nil || *c.RunOnStart
}

// HealthEnabled reports whether the liveness endpoint is served.
func (h HealthConfig) HealthEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

var unresolvedRegex = regexp.MustCompile(`^\$\{[^}]+\}$`)

// clearUnresolved blanks credential and id fields whose ${VAR} placeholder
// had no value in the environment, so they read as unset.
func clearUnresolved(cfg *Config) {
	for _, field := range []*string{
		&cfg.Publisher.Discord.Token,
		&cfg.Publisher.Discord.ChannelID,
		&cfg.Publisher.Discord.WebhookURL,
		&cfg.Summarizer.HuggingFace.Token,
		&cfg.Summarizer.Gemini.APIKey,
		&cfg.Source.API.APIKey,
	} {
		if unresolvedRegex.MatchString(strings.TrimSpace(*field)) {
			*field = ""
		}
	}
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{discordTokenEnv, &cfg.Publisher.Discord.Token},
		{channelIDEnv, &cfg.Publisher.Discord.ChannelID},
		{webhookURLEnv, &cfg.Publisher.Discord.WebhookURL},
		{hfTokenEnv, &cfg.Summarizer.HuggingFace.Token},
		{geminiAPIKeyEnv, &cfg.Summarizer.Gemini.APIKey},
		{legistarAPIKeyEnv, &cfg.Source.API.APIKey},
		{logLevelEnv, &cfg.LogLevel},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.target = v
		}
	}
}

func setDefaults(cfg *Config) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 30m"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.Source.Type == "" {
		cfg.Source.Type = "html"
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = 30 * time.Second
	}
	if cfg.Source.HTML.URL == "" {
		cfg.Source.HTML.URL = "https://milwaukee.legistar.com/Legislation.aspx?TimeFrame=Last%202%20Weeks"
	}
	if cfg.Source.HTML.UserAgent == "" {
		cfg.Source.HTML.UserAgent = "Milwaukee Proposal Bot/1.0"
	}
	if cfg.Source.HTML.TableMarker == "" {
		cfg.Source.HTML.TableMarker = "gridLegislation"
	}
	if len(cfg.Source.HTML.RowClasses) == 0 {
		cfg.Source.HTML.RowClasses = []string{"Row", "AltRow"}
	}
	if cfg.Source.API.BaseURL == "" {
		cfg.Source.API.BaseURL = "https://webapi.legistar.com/v1/milwaukee"
	}
	if cfg.Source.API.DetailURL == "" {
		cfg.Source.API.DetailURL = "https://milwaukee.legistar.com/LegislationDetail.aspx"
	}
	if cfg.Source.API.KeyHeader == "" {
		cfg.Source.API.KeyHeader = "X-Api-Key"
	}
	if cfg.Source.API.Lookback == 0 {
		cfg.Source.API.Lookback = 7 * 24 * time.Hour
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "huggingface"
	}
	if cfg.Summarizer.Timeout == 0 {
		cfg.Summarizer.Timeout = 60 * time.Second
	}
	if cfg.Summarizer.HuggingFace.URL == "" {
		cfg.Summarizer.HuggingFace.URL = "https://api-inference.huggingface.co/models/facebook/bart-large-cnn"
	}
	if cfg.Summarizer.HuggingFace.MaxLength == 0 {
		cfg.Summarizer.HuggingFace.MaxLength = 100
	}
	if cfg.Summarizer.HuggingFace.MinLength == 0 {
		cfg.Summarizer.HuggingFace.MinLength = 25
	}
	if cfg.Summarizer.HuggingFace.MaxInputChars == 0 {
		cfg.Summarizer.HuggingFace.MaxInputChars = 3000
	}
	if cfg.Summarizer.Gemini.Model == "" {
		cfg.Summarizer.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.Summarizer.Gemini.MaxInputChars == 0 {
		cfg.Summarizer.Gemini.MaxInputChars = 3000
	}

	if cfg.Publisher.Type == "" {
		cfg.Publisher.Type = "bot"
	}
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = "0.0.0.0:8080"
	}
}

func validate(cfg *Config) error {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return fmt.Errorf("config: invalid schedule %q: %w", cfg.Schedule, err)
	}
	switch cfg.Source.Type {
	case "html", "api":
	default:
		return fmt.Errorf("config: unsupported source type %q (supported: html, api)", cfg.Source.Type)
	}
	switch cfg.Summarizer.Type {
	case "huggingface", "gemini":
	default:
		return fmt.Errorf("config: unsupported summarizer type %q (supported: huggingface, gemini)", cfg.Summarizer.Type)
	}
	hf := cfg.Summarizer.HuggingFace
	if hf.MinLength < 0 || hf.MaxLength < hf.MinLength {
		return fmt.Errorf("config: summarizer.huggingface.max_length (%d) must be >= min_length (%d)", hf.MaxLength, hf.MinLength)
	}
	switch cfg.Publisher.Type {
	case "bot", "webhook", "stdout":
	default:
		return fmt.Errorf("config: unsupported publisher type %q (supported: bot, webhook, stdout)", cfg.Publisher.Type)
	}
	if cfg.Publisher.Type == "bot" && cfg.Publisher.Discord.Token == "" {
		return fmt.Errorf("config: publisher.discord.token is required for bot publisher (set %s env var)", discordTokenEnv)
	}
	if cfg.Publisher.Type == "webhook" && cfg.Publisher.Discord.WebhookURL == "" {
		return fmt.Errorf("config: publisher.discord.webhook_url is required for webhook publisher")
	}
	if id := cfg.Publisher.Discord.ChannelID; id != "" {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return fmt.Errorf("config: publisher.discord.channel_id %q is not numeric", id)
		}
	}
	return nil
}

// Load reads the .env file and the optional config file, expands environment
// variables, applies overrides and defaults, and validates the result. An
// empty path means defaults plus environment only.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(DotEnvPath); err != nil {
		return nil, err
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}

		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	clearUnresolved(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
