package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"NewsAggregator/internal/domain"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "NEWS_AGGREGATOR_CONFIG"
	envFileEnv      = "ENV_FILE"
	databaseDSNEnv  = "DATABASE_DSN"
	llmAPIKeyEnv    = "LLM_API_KEY"
	llmModelEnv     = "LLM_MODEL"
	llmBaseURLEnv   = "LLM_BASE_URL"
	embedAPIKeyEnv  = "EMBEDDING_API_KEY"
	embedModelEnv   = "EMBEDDING_MODEL"
	logLevelEnv     = "LOG_LEVEL"
	logFormatEnv    = "LOG_FORMAT"
	httpAddrEnv     = "HTTP_ADDR"
	telegramToken   = "TELEGRAM_BOT_TOKEN"
	telegramChatID  = "TELEGRAM_CHAT_ID"
	backfillDaysEnv = "BACKFILL_DAYS"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	LLM           LLMConfig          `yaml:"llm"`
	Embedding     EmbeddingConfig    `yaml:"embedding"`
	Notifications NotificationConfig `yaml:"notifications"`
	HTTP          HTTPConfig         `yaml:"http"`
	Log           LogConfig          `yaml:"log"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN keeps
// everything in memory.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// PipelineConfig tunes a single run.
type PipelineConfig struct {
	BackfillDays    int           `yaml:"backfillDays"`
	SourceTimeout   time.Duration `yaml:"sourceTimeout"`
	Concurrency     int           `yaml:"concurrency"`
	MaxRetries      int           `yaml:"maxRetries"`
	RetryDelay      time.Duration `yaml:"retryDelay"`
	MaxContentRunes int           `yaml:"maxContentRunes"`
	maxRetriesSet   bool          `yaml:"-"`
}

// LLMConfig defines how to contact the OpenAI-compatible chat API.
type LLMConfig struct {
	BaseURL     string  `yaml:"baseUrl"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"apiKey"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"maxTokens"`
	temperatureSet bool    `yaml:"-"`
}

// EmbeddingConfig defines the embedding model. Embeddings are skipped when
// no API key is set.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"baseUrl"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"apiKey"`
	Dimensions int    `yaml:"dimensions"`
}

// Enabled reports whether an embedding client can be built.
func (e EmbeddingConfig) Enabled() bool {
	return e.APIKey != ""
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects log level and handler format (text or json).
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SourceConfig describes one upstream and the collector kind that reads it.
type SourceConfig struct {
	Kind string `yaml:"kind"`
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DomainSources converts the configured sources into domain values. A source
// without an explicit id is identified by its URL.
func (c Config) DomainSources() []domain.Source {
	out := make([]domain.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		id := s.ID
		if id == "" {
			id = s.URL
		}
		out = append(out, domain.Source{
			Kind:     domain.SourceKind(s.Kind),
			ID:       id,
			Name:     s.Name,
			Endpoint: s.URL,
		})
	}
	return out
}

// Load reads .env files, YAML configuration (if present) and applies
// environment overrides.
func Load() Config {
	if err := loadEnvFiles(); err != nil {
		log.Printf("config: %v (continuing without it)", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg
}

func loadEnvFiles() error {
	if path := os.Getenv(envFileEnv); path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}

	// Zero is a meaningful value for these keys, so record whether the file set them.
	var explicit struct {
		Pipeline struct {
			MaxRetries *int `yaml:"maxRetries"`
		} `yaml:"pipeline"`
		LLM struct {
			Temperature *float64 `yaml:"temperature"`
		} `yaml:"llm"`
	}
	if err := yaml.Unmarshal(raw, &explicit); err != nil {
		return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	fileCfg.Pipeline.maxRetriesSet = explicit.Pipeline.MaxRetries != nil
	fileCfg.LLM.temperatureSet = explicit.LLM.Temperature != nil
	return fileCfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(llmBaseURLEnv); v != "" {
		c.LLM.BaseURL = v
	}

	if v := os.Getenv(embedAPIKeyEnv); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv(embedModelEnv); v != "" {
		c.Embedding.Model = v
	}

	if v := os.Getenv(telegramToken); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatID); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv(backfillDaysEnv); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			log.Printf("config: ignoring %s=%q", backfillDaysEnv, v)
		} else {
			c.Pipeline.BackfillDays = days
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Pipeline.BackfillDays > 0 {
		base.Pipeline.BackfillDays = override.Pipeline.BackfillDays
	}
	if override.Pipeline.SourceTimeout > 0 {
		base.Pipeline.SourceTimeout = override.Pipeline.SourceTimeout
	}
	if override.Pipeline.Concurrency > 0 {
		base.Pipeline.Concurrency = override.Pipeline.Concurrency
	}
	if override.Pipeline.MaxRetries > 0 || override.Pipeline.maxRetriesSet {
		base.Pipeline.MaxRetries = override.Pipeline.MaxRetries
	}
	if override.Pipeline.RetryDelay > 0 {
		base.Pipeline.RetryDelay = override.Pipeline.RetryDelay
	}
	if override.Pipeline.MaxContentRunes > 0 {
		base.Pipeline.MaxContentRunes = override.Pipeline.MaxContentRunes
	}

	if override.LLM.BaseURL != "" {
		base.LLM.BaseURL = override.LLM.BaseURL
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.Temperature > 0 || override.LLM.temperatureSet {
		base.LLM.Temperature = override.LLM.Temperature
	}
	if override.LLM.MaxTokens > 0 {
		base.LLM.MaxTokens = override.LLM.MaxTokens
	}

	if override.Embedding.BaseURL != "" {
		base.Embedding.BaseURL = override.Embedding.BaseURL
	}
	if override.Embedding.Model != "" {
		base.Embedding.Model = override.Embedding.Model
	}
	if override.Embedding.APIKey != "" {
		base.Embedding.APIKey = override.Embedding.APIKey
	}
	if override.Embedding.Dimensions > 0 {
		base.Embedding.Dimensions = override.Embedding.Dimensions
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}
	if override.Log.Level != "" {
		base.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		base.Log.Format = override.Log.Format
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Pipeline: PipelineConfig{
			BackfillDays:    0,
			SourceTimeout:   30 * time.Second,
			Concurrency:     5,
			MaxRetries:      2,
			RetryDelay:      500 * time.Millisecond,
			MaxContentRunes: 8000,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   2000,
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		HTTP: HTTPConfig{Addr: ":8000"},
		Log:  LogConfig{Level: "info", Format: "text"},
		Sources: []SourceConfig{
			{Kind: "feed", Name: "LangChain Blog", URL: "https://blog.langchain.dev/rss/"},
			{Kind: "feed", Name: "OpenAI Blog", URL: "https://openai.com/blog/rss.xml"},
			{Kind: "feed", Name: "Google AI Blog", URL: "https://blog.google/technology/ai/rss/"},
			{Kind: "feed", Name: "Lenny's Newsletter", URL: "https://www.lennysnewsletter.com/feed"},
			{Kind: "feed", Name: "Hugo Bowne-Anderson", URL: "https://hugobowne.substack.com/feed"},
			{Kind: "feed", Name: "Decoding AI", URL: "https://www.decodingai.com/feed"},
			{Kind: "feed", Name: "Ben's Bites", URL: "https://www.bensbites.com/feed"},
			{Kind: "feed", Name: "One Useful Thing", URL: "https://www.oneusefulthing.org/feed"},
		},
	}
}
