package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"xnom/internal/model"
)

// Config is the application's configuration model.
// It captures credentials, notification and engagement strategy, and the
// surrounding service (storage, server, push sinks).
type Config struct {
	Account       AccountConfig      `yaml:"account"`
	Credentials   CredentialsConfig  `yaml:"credentials"`
	Notifications NotificationConfig `yaml:"notifications"`
	Engagement    EngagementConfig   `yaml:"engagement"`
	LLM           LLMConfig          `yaml:"llm"`
	Storage       StorageConfig      `yaml:"storage"`
	Server        ServerConfig       `yaml:"server"`
	Auth          AuthConfig         `yaml:"auth"`
	Telegram      TelegramConfig     `yaml:"telegram"`
	// Quiet hours (UTC) post ideas are never scheduled into
	QuietHours []int     `yaml:"quietHours"`
	Log        LogConfig `yaml:"log"`
}

type AccountConfig struct {
	Username string `yaml:"username"`
}

type CredentialsConfig struct {
	// X/Twitter API bearer token. If empty, read from env X_BEARER_TOKEN
	BearerToken string `yaml:"bearerToken"`
	// User-context token for write actions (like/retweet/reply). If empty, read X_USER_TOKEN
	UserToken string `yaml:"userToken"`
}

type NotificationConfig struct {
	PollInterval time.Duration              `yaml:"pollInterval"`
	Toggles      model.NotificationSettings `yaml:"toggles"`
}

type EngagementConfig struct {
	model.EngagementSettings `yaml:",inline"`
	Interval                 time.Duration `yaml:"interval"`
	InitialDelay             time.Duration `yaml:"initialDelay"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai", "gemini" or "none"
	Model    string `yaml:"model"`
	// If empty, read from env OPENAI_API_KEY or GEMINI_API_KEY
	APIKey     string  `yaml:"apiKey"`
	Creativity float64 `yaml:"creativity"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DBPath string `yaml:"dbPath"`
	// Postgres connection string. If empty, read DATABASE_URL
	DSN string `yaml:"dsn"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// Separate metrics listener; when empty /metrics is served on Addr
	MetricsAddr string `yaml:"metricsAddr"`
}

type AuthConfig struct {
	// If empty, read JWT_SECRET
	JWTSecret string        `yaml:"jwtSecret"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`
}

type TelegramConfig struct {
	// If empty, read TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID
	BotToken    string         `yaml:"botToken"`
	ChatID      string         `yaml:"chatID"`
	MinPriority model.Priority `yaml:"minPriority"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultExcludeKeywords keeps the loop away from content we never want to be seen liking.
var DefaultExcludeKeywords = []string{
	"porn", "nsfw", "adult", "gambling", "casino", "crypto scam",
	"hate", "racist", "nazi", "terrorist", "violence", "kill",
	"spam", "bot", "fake", "scam", "fraud",
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Account: AccountConfig{Username: ""},
		Notifications: NotificationConfig{
			PollInterval: 30 * time.Second,
			Toggles: model.NotificationSettings{
				Mentions: true, Replies: true, Likes: false,
				Retweets: false, Follows: true, DMs: true,
			},
		},
		Engagement: EngagementConfig{
			EngagementSettings: model.EngagementSettings{
				AutoEngageEnabled:   false,
				Action:              model.ActionLike,
				EngagementThreshold: 100,
				MaxActionsPerHour:   50,
				InterActionDelayMs:  2000,
				TargetKeywords:      []string{},
				ExcludeKeywords:     append([]string(nil), DefaultExcludeKeywords...),
			},
			Interval:     5 * time.Minute,
			InitialDelay: 5 * time.Second,
		},
		LLM:        LLMConfig{Provider: "none", Model: "gpt-4o-mini", APIKey: "", Creativity: 0.7},
		Storage:    StorageConfig{Driver: "sqlite", DBPath: "./data/xnom.db"},
		Server:     ServerConfig{Addr: ":3000"},
		Auth:       AuthConfig{TokenTTL: 7 * 24 * time.Hour},
		Telegram:   TelegramConfig{MinPriority: model.PriorityHigh},
		QuietHours: []int{0, 1, 2, 3, 4, 5},
		Log:        LogConfig{Level: "info"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
// A few variables override the file outright, matching how the service is
// usually deployed.
func (c *Config) ResolveEnv() {
	if c.Credentials.BearerToken == "" {
		c.Credentials.BearerToken = os.Getenv("X_BEARER_TOKEN")
	}
	if c.Credentials.UserToken == "" {
		c.Credentials.UserToken = os.Getenv("X_USER_TOKEN")
	}
	if c.Account.Username == "" {
		c.Account.Username = os.Getenv("X_USERNAME")
	}
	if c.LLM.APIKey == "" {
		switch strings.ToLower(c.LLM.Provider) {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = os.Getenv("DATABASE_URL")
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if c.Telegram.BotToken == "" {
		c.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if c.Telegram.ChatID == "" {
		c.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")
	}
	if v := os.Getenv("AUTO_ENGAGEMENT_ENABLED"); v != "" {
		c.Engagement.AutoEngageEnabled = v == "true"
	}
	if n, ok := envInt("HIGH_ENGAGEMENT_THRESHOLD"); ok {
		c.Engagement.EngagementThreshold = n
	}
	if n, ok := envInt("MAX_LIKES_PER_HOUR"); ok {
		c.Engagement.MaxActionsPerHour = n
	}
	if n, ok := envInt("ENGAGEMENT_DELAY_MS"); ok {
		c.Engagement.InterActionDelayMs = n
	}
	if n, ok := envInt("CHECK_NOTIFICATIONS_INTERVAL"); ok {
		c.Notifications.PollInterval = time.Duration(n) * time.Millisecond
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := os.Getenv("XNOM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Load reads YAML config from path on top of Default. A missing file is not
// an error: the defaults plus environment are used. A .env file next to the
// working directory is loaded first.
func Load(path string) (Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// DefaultSettings builds the settings row used until the user saves their own.
func (c Config) DefaultSettings() model.Settings {
	eng := c.Engagement.EngagementSettings
	eng.TargetKeywords = append([]string(nil), eng.TargetKeywords...)
	eng.ExcludeKeywords = append([]string(nil), eng.ExcludeKeywords...)
	return model.Settings{
		ID:            "default",
		XUserID:       "user_default",
		Notifications: c.Notifications.Toggles,
		Engagement:    eng,
		AI: model.AIPreferences{
			Provider:        c.LLM.Provider,
			Model:           c.LLM.Model,
			CreativityLevel: c.LLM.Creativity,
		},
	}
}
