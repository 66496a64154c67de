package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure. Every tunable has a default
// applied by Load; a minimal config file only needs credentials and DSNs.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Provider  ProviderConfig  `json:"provider"`
	Embedding EmbeddingConfig `json:"embedding"`
	Gateway   GatewayConfig   `json:"gateway"`
	Lesson    LessonConfig    `json:"lesson"`
	SRS       SRSConfig       `json:"srs"`
	LLM       LLMConfig       `json:"llm"`
	Notify    NotifyConfig    `json:"notify"`
	Selector  SelectorConfig  `json:"selector"`
	DefaultTZ string          `json:"default_tz"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ProviderConfig selects and configures the model provider.
type ProviderConfig struct {
	Type     string `json:"type"` // openai | anthropic
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type EmbeddingConfig struct {
	Endpoint  string `json:"endpoint"`
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

type GatewayConfig struct {
	Discord DiscordGatewayConfig `json:"discord"`
	Slack   SlackGatewayConfig   `json:"slack"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	AppToken string `json:"app_token"`
}

type LessonConfig struct {
	WordsPerLesson         int `json:"words_per_lesson"`
	MasteredThreshold      int `json:"mastered_threshold"`
	ChoiceToInputThreshold int `json:"choice_to_input_threshold"`
	FuzzyThreshold         int `json:"fuzzy_threshold"`
	TimeoutSeconds         int `json:"lesson_timeout_s"`
}

func (c LessonConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type SRSConfig struct {
	DefaultEF float64 `json:"sr_default_ef"`
	MinEF     float64 `json:"sr_min_ef"`
}

type LLMConfig struct {
	RatePerMin             int `json:"llm_rate_per_min"`
	MaxInflight            int `json:"llm_max_inflight"`
	CircuitFailThreshold   int `json:"llm_circuit_fail_threshold"`
	CircuitRecoverySeconds int `json:"llm_circuit_recovery_s"`
	CallTimeoutSeconds     int `json:"llm_call_timeout_s"`
}

func (c LLMConfig) CircuitRecovery() time.Duration {
	return time.Duration(c.CircuitRecoverySeconds) * time.Second
}

func (c LLMConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

type NotifyConfig struct {
	InactiveHours      int    `json:"notify_inactive_hours"`
	WindowStart        string `json:"notify_window_start"` // "HH:MM"
	WindowEnd          string `json:"notify_window_end"`
	SweepPeriodSeconds int    `json:"notify_sweep_period_s"`
}

func (c NotifyConfig) SweepPeriod() time.Duration {
	return time.Duration(c.SweepPeriodSeconds) * time.Second
}

func (c NotifyConfig) InactiveWindow() time.Duration {
	return time.Duration(c.InactiveHours) * time.Hour
}

type SelectorConfig struct {
	SemanticDistractors bool `json:"semantic_distractors"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references
// and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a Config with every tunable at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Lesson.WordsPerLesson == 0 {
		c.Lesson.WordsPerLesson = 30
	}
	if c.Lesson.MasteredThreshold == 0 {
		c.Lesson.MasteredThreshold = 30
	}
	if c.Lesson.ChoiceToInputThreshold == 0 {
		c.Lesson.ChoiceToInputThreshold = 3
	}
	if c.Lesson.FuzzyThreshold == 0 {
		c.Lesson.FuzzyThreshold = 2
	}
	if c.Lesson.TimeoutSeconds == 0 {
		c.Lesson.TimeoutSeconds = 7200
	}
	if c.SRS.DefaultEF == 0 {
		c.SRS.DefaultEF = 2.5
	}
	if c.SRS.MinEF == 0 {
		c.SRS.MinEF = 1.3
	}
	if c.LLM.RatePerMin == 0 {
		c.LLM.RatePerMin = 2500
	}
	if c.LLM.MaxInflight == 0 {
		c.LLM.MaxInflight = 10
	}
	if c.LLM.CircuitFailThreshold == 0 {
		c.LLM.CircuitFailThreshold = 5
	}
	if c.LLM.CircuitRecoverySeconds == 0 {
		c.LLM.CircuitRecoverySeconds = 60
	}
	if c.LLM.CallTimeoutSeconds == 0 {
		c.LLM.CallTimeoutSeconds = 30
	}
	if c.Notify.InactiveHours == 0 {
		c.Notify.InactiveHours = 6
	}
	if c.Notify.WindowStart == "" {
		c.Notify.WindowStart = "07:00"
	}
	if c.Notify.WindowEnd == "" {
		c.Notify.WindowEnd = "23:00"
	}
	if c.Notify.SweepPeriodSeconds == 0 {
		c.Notify.SweepPeriodSeconds = 900
	}
	if c.DefaultTZ == "" {
		c.DefaultTZ = "UTC"
	}
	if c.Provider.Type == "" {
		c.Provider.Type = "openai"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 1536
	}
}

func (c *Config) validate() error {
	if _, err := ParseClock(c.Notify.WindowStart); err != nil {
		return fmt.Errorf("notify_window_start: %w", err)
	}
	if _, err := ParseClock(c.Notify.WindowEnd); err != nil {
		return fmt.Errorf("notify_window_end: %w", err)
	}
	if _, err := time.LoadLocation(c.DefaultTZ); err != nil {
		return fmt.Errorf("default_tz: %w", err)
	}
	if c.SRS.MinEF < 1.0 {
		return fmt.Errorf("sr_min_ef must be >= 1.0, got %v", c.SRS.MinEF)
	}
	return nil
}

// ClockTime is a minutes-since-midnight wall-clock time.
type ClockTime int

// ParseClock parses "HH:MM".
func ParseClock(s string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

// Minutes returns the minutes-since-midnight value.
func (t ClockTime) Minutes() int { return int(t) }
